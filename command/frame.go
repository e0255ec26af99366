package command

import (
	"errors"
	"fmt"

	"ccflash/link"
)

var (
	ErrArgCount  = errors.New("command: argument count does not match opcode")
	ErrReadCount = errors.New("command: at most 3 bytes can be read per frame")
	ErrBurstSize = errors.New("command: burst length must be 1..2048")
)

// Frame is one request/response unit. The header (opcode and counts)
// fully determines the wire length, nothing is delimited.
type Frame struct {
	Opcode    byte
	Args      []byte
	ReadCount int
}

// ReadOnly returns a frame that skips the write phase and only samples.
func ReadOnly(readCount int) Frame {
	return Frame{Opcode: CmdReadOnly, ReadCount: readCount}
}

// Burst returns the extended BURST_WRITE frame for data, expecting one
// status byte back.
func Burst(data []byte) (Frame, error) {
	n := len(data)
	if n == 0 || n > MaxBurst {
		return Frame{}, ErrBurstSize
	}
	// length 2048 is sent as 0 in the 11-bit field
	field := n & 0x7ff
	args := make([]byte, 0, n+1)
	args = append(args, byte(field))
	args = append(args, data...)
	return Frame{Opcode: CmdBurstWrite | byte(field>>8), Args: args, ReadCount: 1}, nil
}

// Instr returns a DEBUG_INSTR frame executing 1..3 bytes of 8051 code.
func Instr(code ...byte) Frame {
	return Frame{Opcode: CmdDebugInstr | byte(len(code)&3), Args: code, ReadCount: 1}
}

// WriteCount is the number of bytes clocked out for this frame.
func (f Frame) WriteCount() int {
	if f.Opcode == CmdReadOnly {
		return 0
	}
	return 1 + len(f.Args)
}

// Validate checks the frame against the framing rules.
func (f Frame) Validate() error {
	if f.ReadCount < 0 || f.ReadCount > 3 {
		return ErrReadCount
	}
	switch {
	case f.Opcode == CmdReadOnly:
		if len(f.Args) != 0 {
			return ErrArgCount
		}
	case isBurst(f.Opcode):
		if len(f.Args) < 2 {
			return ErrBurstSize
		}
		want := int(f.Opcode&0x07)<<8 | int(f.Args[0])
		if want == 0 {
			want = MaxBurst
		}
		if want != len(f.Args)-1 {
			return fmt.Errorf("%w: header says %d, payload is %d", ErrBurstSize, want, len(f.Args)-1)
		}
	default:
		if int(f.Opcode&0x03) != len(f.Args) {
			return fmt.Errorf("%w: opcode 0x%02x with %d bytes", ErrArgCount, f.Opcode, len(f.Args))
		}
	}
	return nil
}

// Encode returns the control word followed by the payload words.
func (f Frame) Encode() ([]uint32, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	wc := f.WriteCount()
	if wc > link.MaxWriteCount {
		return nil, link.ErrFrameTooLong
	}
	words := []uint32{link.ControlWord(wc, f.ReadCount)}
	if wc == 0 {
		return words, nil
	}
	payload := make([]byte, 0, wc)
	payload = append(payload, f.Opcode)
	payload = append(payload, f.Args...)
	return append(words, link.PackPayload(payload)...), nil
}
