//go:build !tinygo

package remote

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"ccflash/command"
	"ccflash/protocol"
)

// Client drives a flasher over a HostTransport and implements
// transfer.Target.
type Client struct {
	t *protocol.HostTransport

	// Timeout bounds quick commands; EraseTimeout covers a chip erase.
	Timeout      time.Duration
	EraseTimeout time.Duration
}

// NewClient wraps a connected transport.
func NewClient(t *protocol.HostTransport) *Client {
	return &Client{t: t, Timeout: 5 * time.Second, EraseTimeout: 45 * time.Second}
}

// Close closes the transport.
func (c *Client) Close() error {
	return c.t.Close()
}

func (c *Client) Identify() (command.ChipIdentity, error) {
	if err := c.t.Send(CmdIdentify, nil, c.Timeout); err != nil {
		return command.ChipIdentity{}, err
	}
	id, args, err := c.next()
	if err != nil {
		return command.ChipIdentity{}, err
	}
	if id != RspChipIdentity {
		if err := statusFrom(id, args); err != nil {
			return command.ChipIdentity{}, err
		}
		return command.ChipIdentity{}, fmt.Errorf("remote: unexpected response %d to identify", id)
	}
	chipID, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return command.ChipIdentity{}, err
	}
	rev, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return command.ChipIdentity{}, err
	}
	chip := command.NewChipIdentity(byte(chipID), byte(rev))
	glog.V(1).Infof("flasher reports %s", chip)
	return chip, nil
}

func (c *Client) Erase() error {
	if err := c.t.Send(CmdErase, nil, c.EraseTimeout); err != nil {
		return err
	}
	return c.statusWithin(c.EraseTimeout)
}

// WriteBlock stages data in the flasher buffer chunk by chunk, then has
// it programmed.
func (c *Client) WriteBlock(addr uint32, data []byte) error {
	for base := 0; base < len(data); base += BufferSize {
		block := data[base:min(base+BufferSize, len(data))]
		for off := 0; off < len(block); off += ChunkSize {
			chunk := block[off:min(off+ChunkSize, len(block))]
			o := uint32(off)
			err := c.t.Send(CmdLoadBuffer, func(out protocol.OutputBuffer) {
				protocol.EncodeVLQUint(out, o)
				protocol.EncodeVLQBytes(out, chunk)
			}, c.Timeout)
			if err != nil {
				return err
			}
			if err := c.status(); err != nil {
				return err
			}
		}
		a, n := addr+uint32(base), uint32(len(block))
		err := c.t.Send(CmdProgramBlock, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, a)
			protocol.EncodeVLQUint(out, n)
		}, c.Timeout)
		if err != nil {
			return err
		}
		if err := c.status(); err != nil {
			return fmt.Errorf("program 0x%05x: %w", a, err)
		}
	}
	return nil
}

func (c *Client) ReadBlock(addr uint32, buf []byte) error {
	for base := 0; base < len(buf); base += BufferSize {
		part := buf[base:min(base+BufferSize, len(buf))]
		a, n := addr+uint32(base), uint32(len(part))
		err := c.t.Send(CmdReadFlash, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, a)
			protocol.EncodeVLQUint(out, n)
		}, c.Timeout)
		if err != nil {
			return err
		}
		if err := c.collect(a, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) collect(addr uint32, part []byte) error {
	got := 0
	for {
		id, args, err := c.next()
		if err != nil {
			return err
		}
		if id != RspFlashData {
			if err := statusFrom(id, args); err != nil {
				return err
			}
			if got != len(part) {
				return fmt.Errorf("remote: short read at 0x%05x: %d of %d bytes", addr, got, len(part))
			}
			return nil
		}
		a, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			return err
		}
		data, err := protocol.DecodeVLQBytes(&args)
		if err != nil {
			return err
		}
		if a < addr || int(a-addr)+len(data) > len(part) {
			return fmt.Errorf("remote: flash data at 0x%05x outside request", a)
		}
		copy(part[a-addr:], data)
		got += len(data)
	}
}

func (c *Client) next() (uint16, []byte, error) {
	return c.nextWithin(c.Timeout)
}

func (c *Client) nextWithin(timeout time.Duration) (uint16, []byte, error) {
	m, err := c.t.Receive(timeout)
	if err != nil {
		return 0, nil, err
	}
	return m.Command()
}

func (c *Client) status() error {
	return c.statusWithin(c.Timeout)
}

func (c *Client) statusWithin(timeout time.Duration) error {
	id, args, err := c.nextWithin(timeout)
	if err != nil {
		return err
	}
	if id != RspOpStatus {
		return fmt.Errorf("remote: expected op_status, got response %d", id)
	}
	return statusFrom(id, args)
}

func statusFrom(id uint16, args []byte) error {
	if id != RspOpStatus {
		return fmt.Errorf("remote: unexpected response %d", id)
	}
	code, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return err
	}
	msg, err := protocol.DecodeVLQString(&args)
	if err != nil {
		return err
	}
	return StatusError(code, msg)
}
