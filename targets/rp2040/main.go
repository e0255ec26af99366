//go:build rp2040

package main

import (
	_ "embed"
	"machine"
	"time"

	"ccflash/config"
	"ccflash/hal"
	"ccflash/link"
	"ccflash/protocol"
	"ccflash/remote"
	"ccflash/status"
	"ccflash/targets/pio"
	"ccflash/transfer"
)

//go:embed board.json
var boardJSON []byte

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	server       *remote.Server

	indicator status.Indicator = status.Nop{}

	msgerrors                uint32
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable a watchdog left running by the previous image
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	cfg, err := config.Load(boardJSON)
	if err != nil {
		cfg = config.Default()
	}
	if cfg.Debug {
		InitDebugUART()
	}
	if err != nil {
		hal.DebugPrintln("[BOOT] board.json rejected, using defaults: " + err.Error())
	}

	if cfg.Pins.Status != "" {
		if pin, err := config.ParsePin(cfg.Pins.Status); err == nil {
			indicator = status.NewLED(machine.Pin(pin))
		}
	}
	status.Blink(indicator, status.Init, 2, 150*time.Millisecond, time.Sleep)

	driver, err := newDriver(cfg)
	if err != nil {
		hal.DebugPrintln("[BOOT] no link driver: " + err.Error())
		indicator.Set(status.Error)
		for {
			time.Sleep(time.Second)
		}
	}

	session := cfg.Session()
	// a missing target is retried, but not on every host command
	gate := &transfer.Gate{
		Clock:      link.SystemClock{},
		RetryDelay: cfg.RetryDelay(),
		Attempts:   cfg.RetryAttempts,
		Status:     indicator,
		Open: func() (transfer.Session, error) {
			s, err := transfer.Open(driver, link.SystemClock{}, session)
			if err != nil {
				return nil, err
			}
			indicator.Set(status.Running)
			return ledSession{s}, nil
		},
	}
	server = remote.NewServer(nil, gate.Acquire)

	inputBuffer = protocol.NewFifoBuffer(1024)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, server.Handle)
	transport.SetResetCallback(func() {
		// host restarted: drop any half-finished session
		inputBuffer.Reset()
		outputBuffer.Reset()
		server.Close()
	})
	// responses must reach the host before the ack that follows them
	transport.SetFlushCallback(writeUSB)
	server.Bind(transport)

	hal.DebugPrintln("[BOOT] ready, link " + cfg.Link)

	buf := make([]byte, 64)
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
					server.Close()
					indicator.Set(status.Error)
				}
			}()

			if n := USBRead(buf[:min(len(buf), inputBuffer.Free())]); n > 0 {
				if usbWasDisconnected {
					usbWasDisconnected = false
					transport.Reset()
					consecutiveWriteFailures = 0
				}
				inputBuffer.Write(buf[:n])
			}
			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}
			writeUSB()
		}()

		time.Sleep(50 * time.Microsecond)
	}
}

// newDriver builds the link backend named in the board configuration.
func newDriver(cfg *config.Config) (link.Driver, error) {
	pins := cfg.LinkPins()
	if cfg.Link == config.LinkBitbang {
		hal.SetGPIODriver(&pio.SIOGPIO{})
		return link.NewBitbang(hal.MustGPIO(), pins, pio.HalfPeriod), nil
	}
	return pio.NewLinkDriver(pins, cfg.PIOFrequency)
}

// ledSession turns the status LED off when the host is done with the
// target.
type ledSession struct {
	*transfer.DebugSession
}

func (s ledSession) Close() error {
	indicator.Set(status.Off)
	return s.DebugSession.Close()
}

// writeUSB drains the output buffer. Repeated failures mean the host went
// away; stale output is dropped and the sequence restarts on the next
// byte received.
func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
