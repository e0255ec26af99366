//go:build !tinygo

// Package flasher connects to a flasher board over a serial port and
// exposes it as a transfer.Target.
package flasher

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"ccflash/host/serial"
	"ccflash/protocol"
	"ccflash/remote"
)

// Conn is an open connection to a flasher board.
type Conn struct {
	*remote.Client

	transport *protocol.HostTransport
}

// settle gives a board that was just enumerated time to start its
// command loop.
const settle = 100 * time.Millisecond

// Connect opens the device with default serial settings.
func Connect(device string) (*Conn, error) {
	return ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the port described by cfg.
func ConnectWithConfig(cfg *serial.Config) (*Conn, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		glog.Warningf("flush %s: %v", cfg.Device, err)
	}
	time.Sleep(settle)

	c := Dial(port)
	glog.V(1).Infof("connected to %s", cfg.Device)
	return c, nil
}

// Dial wraps an already open port.
func Dial(port serial.Port) *Conn {
	t := protocol.NewHostTransport(port)
	return &Conn{Client: remote.NewClient(t), transport: t}
}

// Transport exposes the message layer, mostly for the console.
func (c *Conn) Transport() *protocol.HostTransport {
	return c.transport
}

// Close stops the transport, which releases the port. Later calls return
// the result of the first.
func (c *Conn) Close() error {
	if err := c.Client.Close(); err != nil {
		return fmt.Errorf("flasher: close: %w", err)
	}
	return nil
}
