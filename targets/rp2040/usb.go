//go:build rp2040

package main

import (
	"machine"
)

// InitUSB configures USB CDC. On the RP2040 machine.Serial is the USB
// port, not a UART.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes waiting on USB.
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead drains up to len(buf) buffered bytes.
func USBRead(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// USBWriteBytes writes data to USB.
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
