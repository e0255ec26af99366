package transfer

import (
	"errors"
	"fmt"

	"ccflash/command"
	"ccflash/flash"
	"ccflash/hal"
	"ccflash/status"
)

var (
	// ErrChipUnidentified stops a transfer before anything is erased.
	ErrChipUnidentified = errors.New("transfer: chip not identified")
	ErrBadPlan          = errors.New("transfer: block size must be a multiple of 4 dividing the flash size")
)

// Options for Write and Read.
type Options struct {
	FlashSize int
	BlockSize int
	// Progress is called after every block.
	Progress func(Progress)
	Status   status.Indicator
}

// DefaultOptions covers the full 256 KiB part in 512 byte blocks.
func DefaultOptions() Options {
	return Options{FlashSize: flash.FlashSize, BlockSize: 512}
}

// Progress reports one finished block.
type Progress struct {
	Block   int
	Blocks  int
	Address uint32
}

// Result summarises a finished transfer.
type Result struct {
	Chip   command.ChipIdentity
	Blocks int
	Bytes  int
	// SourceExhausted is set when Write stopped before the end of flash.
	SourceExhausted bool
}

// Plan returns the number of blocks covering flashSize. It is checked
// before the target is touched, so a plan the programmer would refuse
// never gets as far as an erase.
func Plan(flashSize, blockSize int) (int, error) {
	if blockSize <= 0 || blockSize%4 != 0 ||
		flashSize <= 0 || flashSize > flash.FlashSize || flashSize%blockSize != 0 {
		return 0, fmt.Errorf("%w: %d / %d", ErrBadPlan, flashSize, blockSize)
	}
	return flashSize / blockSize, nil
}

func (o *Options) fill() {
	def := DefaultOptions()
	if o.FlashSize == 0 {
		o.FlashSize = def.FlashSize
	}
	if o.BlockSize == 0 {
		o.BlockSize = def.BlockSize
	}
	if o.Status == nil {
		o.Status = status.Nop{}
	}
}

func identify(t Target, ind status.Indicator) (command.ChipIdentity, error) {
	ind.Set(status.Init)
	chip, err := t.Identify()
	if err != nil {
		return chip, err
	}
	if !chip.Known() {
		return chip, fmt.Errorf("%w: id 0x%02x", ErrChipUnidentified, chip.ID)
	}
	return chip, nil
}

// Write erases the chip and programs src from address 0. A short block is
// padded with 0xFF and ends the transfer.
func Write(t Target, src Source, opts Options) (res Result, err error) {
	opts.fill()
	defer func() { finish(opts.Status, err) }()

	blocks, err := Plan(opts.FlashSize, opts.BlockSize)
	if err != nil {
		return res, err
	}
	if res.Chip, err = identify(t, opts.Status); err != nil {
		return res, err
	}

	opts.Status.Set(status.Running)
	if err = t.Erase(); err != nil {
		return res, fmt.Errorf("erase: %w", err)
	}

	buf := make([]byte, opts.BlockSize)
	for i := 0; i < blocks; i++ {
		n, ferr := src.Fill(buf)
		if ferr != nil {
			return res, fmt.Errorf("source: %w", ferr)
		}
		if n == 0 {
			res.SourceExhausted = true
			break
		}
		for j := n; j < len(buf); j++ {
			buf[j] = 0xFF
		}
		addr := uint32(i * opts.BlockSize)
		if err = t.WriteBlock(addr, buf); err != nil {
			return res, fmt.Errorf("write block %d: %w", i, err)
		}
		res.Blocks++
		res.Bytes += n
		report(opts, i, blocks, addr)
		if n < len(buf) {
			res.SourceExhausted = true
			break
		}
	}
	hal.DebugAsync("[TRANSFER] write finished")
	return res, nil
}

// Read copies the whole flash into sink.
func Read(t Target, sink Sink, opts Options) (res Result, err error) {
	opts.fill()
	defer func() { finish(opts.Status, err) }()

	blocks, err := Plan(opts.FlashSize, opts.BlockSize)
	if err != nil {
		return res, err
	}
	if res.Chip, err = identify(t, opts.Status); err != nil {
		return res, err
	}

	opts.Status.Set(status.Running)
	buf := make([]byte, opts.BlockSize)
	for i := 0; i < blocks; i++ {
		addr := uint32(i * opts.BlockSize)
		if err = t.ReadBlock(addr, buf); err != nil {
			return res, fmt.Errorf("read block %d: %w", i, err)
		}
		if err = sink.Append(buf); err != nil {
			return res, fmt.Errorf("sink: %w", err)
		}
		res.Blocks++
		res.Bytes += len(buf)
		report(opts, i, blocks, addr)
	}
	return res, nil
}

func report(opts Options, i, blocks int, addr uint32) {
	opts.Status.Progress(i+1, blocks)
	if opts.Progress != nil {
		opts.Progress(Progress{Block: i, Blocks: blocks, Address: addr})
	}
}

func finish(ind status.Indicator, err error) {
	if err != nil {
		ind.Set(status.Error)
		return
	}
	ind.Set(status.Success)
}
