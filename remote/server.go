package remote

import (
	"fmt"

	"ccflash/command"
	"ccflash/hal"
	"ccflash/protocol"
	"ccflash/transfer"
)

// Sender is the transport side a Server answers through.
type Sender interface {
	Send(cmdID uint16, args func(protocol.OutputBuffer))
	Flush()
}

// Server executes remote commands against a Target. Open is called lazily
// so the debug link is only claimed while the host is using it.
type Server struct {
	open   func() (transfer.Session, error)
	target transfer.Session
	out    Sender

	buf   [BufferSize]byte
	chunk [ChunkSize]byte
}

// NewServer answers through out and opens targets with open.
func NewServer(out Sender, open func() (transfer.Session, error)) *Server {
	return &Server{out: out, open: open}
}

// Bind sets the transport used for replies.
func (s *Server) Bind(out Sender) {
	s.out = out
}

// Handle is a protocol.CommandHandler.
func (s *Server) Handle(cmdID uint16, args *[]byte) error {
	switch cmdID {
	case CmdIdentify:
		return s.identify()
	case CmdErase:
		return s.status(s.withTarget(func(t transfer.Target) error { return t.Erase() }))
	case CmdLoadBuffer:
		return s.status(s.loadBuffer(args))
	case CmdProgramBlock:
		return s.status(s.programBlock(args))
	case CmdReadFlash:
		return s.status(s.readFlash(args))
	}
	hal.DebugAsync("[REMOTE] unknown command")
	s.status(fmt.Errorf("%w: command %d", ErrBadRequest, cmdID))
	return ErrBadRequest
}

// Close releases the target, if one is open.
func (s *Server) Close() {
	if s.target != nil {
		s.target.Close()
		s.target = nil
	}
}

func (s *Server) withTarget(fn func(transfer.Target) error) error {
	if s.target == nil {
		t, err := s.open()
		if err != nil {
			return err
		}
		s.target = t
	}
	err := fn(s.target)
	if err != nil {
		// a failed session is not reused
		s.Close()
	}
	return err
}

func (s *Server) identify() error {
	var chip command.ChipIdentity
	err := s.withTarget(func(t transfer.Target) error {
		var err error
		chip, err = t.Identify()
		return err
	})
	if err != nil {
		return s.status(err)
	}
	s.out.Send(RspChipIdentity, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(chip.ID))
		protocol.EncodeVLQUint(o, uint32(chip.Revision))
		protocol.EncodeVLQString(o, chip.Name)
	})
	s.out.Flush()
	return nil
}

func (s *Server) loadBuffer(args *[]byte) error {
	off, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	data, err := protocol.DecodeVLQBytes(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if int(off)+len(data) > len(s.buf) {
		return fmt.Errorf("%w: load past end of buffer", ErrBadRequest)
	}
	copy(s.buf[off:], data)
	return nil
}

func (s *Server) programBlock(args *[]byte) error {
	addr, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	n, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if n == 0 || n > BufferSize {
		return fmt.Errorf("%w: block length %d", ErrBadRequest, n)
	}
	return s.withTarget(func(t transfer.Target) error {
		return t.WriteBlock(addr, s.buf[:n])
	})
}

func (s *Server) readFlash(args *[]byte) error {
	addr, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	count, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if count > BufferSize {
		return fmt.Errorf("%w: read length %d", ErrBadRequest, count)
	}
	chunk := s.chunk[:]
	return s.withTarget(func(t transfer.Target) error {
		for done := uint32(0); done < count; {
			n := count - done
			if n > ChunkSize {
				n = ChunkSize
			}
			if err := t.ReadBlock(addr+done, chunk[:n]); err != nil {
				return err
			}
			a := addr + done
			s.out.Send(RspFlashData, func(o protocol.OutputBuffer) {
				protocol.EncodeVLQUint(o, a)
				protocol.EncodeVLQBytes(o, chunk[:n])
			})
			s.out.Flush()
			done += n
		}
		return nil
	})
}

func (s *Server) status(err error) error {
	code := StatusCode(err)
	msg := "ok"
	if err != nil {
		msg = err.Error()
		if len(msg) > 96 {
			msg = msg[:96]
		}
	}
	s.out.Send(RspOpStatus, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, code)
		protocol.EncodeVLQString(o, msg)
	})
	s.out.Flush()
	return nil
}
