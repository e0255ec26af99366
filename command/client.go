package command

import (
	"errors"
	"fmt"
	"time"

	"ccflash/link"
)

// ErrNotReady means the target kept DD high past the link timeout.
var ErrNotReady = errors.New("command: target not ready")

// Exchanger is the part of link.Engine the protocol needs.
type Exchanger interface {
	Exchange(frame []uint32) (uint32, error)
	Clock() link.Clock
	Timeout() time.Duration
}

// Client issues debug commands over an Exchanger. Link errors are returned
// unchanged so callers can match link.ErrTimeout.
type Client struct {
	link Exchanger
}

// NewClient creates a command client.
func NewClient(x Exchanger) *Client {
	return &Client{link: x}
}

// Do sends f and returns the bytes read. While the target reports
// not-ready, read-only frames are re-issued until it is, bounded by the
// link timeout.
func (c *Client) Do(f Frame) ([]byte, error) {
	words, err := f.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := c.link.Exchange(words)
	if err != nil {
		return nil, err
	}
	if f.ReadCount == 0 {
		return nil, nil
	}

	notReady, data := link.DecodeResponse(resp, f.ReadCount)
	if !notReady {
		return data, nil
	}

	retry, _ := ReadOnly(f.ReadCount).Encode()
	clock := c.link.Clock()
	start := clock.Now()
	for notReady {
		if clock.Now().Sub(start) >= c.link.Timeout() {
			return nil, fmt.Errorf("%w: opcode 0x%02x", ErrNotReady, f.Opcode)
		}
		resp, err = c.link.Exchange(retry)
		if err != nil {
			return nil, err
		}
		notReady, data = link.DecodeResponse(resp, f.ReadCount)
	}
	return data, nil
}

func (c *Client) do1(f Frame) (byte, error) {
	data, err := c.Do(f)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ChipErase starts a full flash erase. Completion is polled with ReadStatus.
func (c *Client) ChipErase() error {
	_, err := c.do1(Frame{Opcode: CmdChipErase, ReadCount: 1})
	return err
}

// ReadStatus returns the debug status byte.
func (c *Client) ReadStatus() (byte, error) {
	return c.do1(Frame{Opcode: CmdReadStatus, ReadCount: 1})
}

// WriteConfig writes the debug configuration byte.
func (c *Client) WriteConfig(cfg byte) error {
	_, err := c.do1(Frame{Opcode: CmdWrConfig, Args: []byte{cfg}, ReadCount: 1})
	return err
}

// ReadConfig returns the debug configuration byte.
func (c *Client) ReadConfig() (byte, error) {
	return c.do1(Frame{Opcode: CmdRdConfig, ReadCount: 1})
}

// Instr executes 1..3 bytes of 8051 code on the halted CPU and returns
// the accumulator.
func (c *Client) Instr(code ...byte) (byte, error) {
	if len(code) == 0 || len(code) > 3 {
		return 0, ErrArgCount
	}
	return c.do1(Instr(code...))
}

// BurstWrite streams data into the debug data register, one DMA trigger
// per byte. Returns the status byte acknowledging the transfer.
func (c *Client) BurstWrite(data []byte) (byte, error) {
	f, err := Burst(data)
	if err != nil {
		return 0, err
	}
	return c.do1(f)
}

// ChipID reads the chip id and revision.
func (c *Client) ChipID() (ChipIdentity, error) {
	data, err := c.Do(Frame{Opcode: CmdGetChipID, ReadCount: 2})
	if err != nil {
		return ChipIdentity{}, err
	}
	return NewChipIdentity(data[0], data[1]), nil
}
