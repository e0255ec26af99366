// Package remote carries flasher operations over the protocol link. The
// firmware runs a Server in front of its debug session; the host tool uses
// a Client, which is itself a transfer.Target.
package remote

import (
	"errors"
	"fmt"

	"ccflash/command"
	"ccflash/flash"
	"ccflash/link"
	"ccflash/transfer"
)

// Host to flasher commands.
const (
	CmdIdentify     uint16 = 1 // -> chip_identity
	CmdErase        uint16 = 2 // -> op_status
	CmdLoadBuffer   uint16 = 3 // offset, data -> op_status
	CmdProgramBlock uint16 = 4 // addr, len -> op_status
	CmdReadFlash    uint16 = 5 // addr, count -> flash_data*, op_status
)

// Flasher to host responses.
const (
	RspChipIdentity uint16 = 101 // id, rev, name
	RspOpStatus     uint16 = 102 // code, message
	RspFlashData    uint16 = 103 // addr, data
)

// ChunkSize is the largest data run in one message.
const ChunkSize = 128

// BufferSize is the staging buffer filled by load_buffer.
const BufferSize = command.MaxBurst

// Status codes carried by op_status.
const (
	StatusOK uint32 = iota
	StatusLinkTimeout
	StatusNotReady
	StatusEraseTimeout
	StatusProgramTimeout
	StatusUnidentified
	StatusBadRequest
	StatusBusy
	StatusFailed = 255
)

var ErrBadRequest = errors.New("remote: bad request")

var statusErrors = []struct {
	code uint32
	err  error
}{
	{StatusLinkTimeout, link.ErrTimeout},
	{StatusNotReady, command.ErrNotReady},
	{StatusEraseTimeout, flash.ErrEraseTimeout},
	{StatusProgramTimeout, flash.ErrProgramTimeout},
	{StatusUnidentified, transfer.ErrChipUnidentified},
	{StatusBadRequest, ErrBadRequest},
	{StatusBusy, link.ErrBusy},
}

// StatusCode maps an error to its wire code.
func StatusCode(err error) uint32 {
	if err == nil {
		return StatusOK
	}
	for _, se := range statusErrors {
		if errors.Is(err, se.err) {
			return se.code
		}
	}
	return StatusFailed
}

// StatusError rebuilds an error from a wire code so errors.Is keeps
// working on the host.
func StatusError(code uint32, msg string) error {
	if code == StatusOK {
		return nil
	}
	for _, se := range statusErrors {
		if se.code == code {
			return fmt.Errorf("%w (flasher: %s)", se.err, msg)
		}
	}
	return fmt.Errorf("remote: flasher failed: %s", msg)
}
