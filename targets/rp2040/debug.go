//go:build rp2040

package main

import (
	"machine"

	"ccflash/hal"
)

// InitDebugUART routes hal debug output to UART0 on GP0 (TX) and GP1
// (RX) at 115200 baud. USB carries the host protocol and cannot be
// shared.
func InitDebugUART() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}
	hal.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
	hal.SetDebugEnabled(true)
	hal.InitAsyncDebug()
	hal.DebugPrintln("=== CC25xx flasher debug UART ===")
}
