package flash

import (
	"errors"
	"fmt"
	"time"

	"ccflash/command"
	"ccflash/hal"
	"ccflash/link"
	"ccflash/xdata"
)

var (
	ErrEraseTimeout   = errors.New("flash: chip erase did not complete")
	ErrProgramTimeout = errors.New("flash: flash controller stayed busy")
	ErrAlignment      = errors.New("flash: address must be 4-byte aligned")
	ErrBlockSize      = errors.New("flash: block must be 4..512 bytes and a multiple of 4")
)

// FlashSize is the largest flash in the supported family.
const FlashSize = 256 * 1024

// State of the program pipeline.
type State uint8

const (
	Idle State = iota
	Erasing
	ConfiguringDMA
	BurstLoading
	Programming
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Erasing:
		return "erasing"
	case ConfiguringDMA:
		return "configuring-dma"
	case BurstLoading:
		return "burst-loading"
	case Programming:
		return "programming"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config bounds the busy-poll loops.
type Config struct {
	EraseTimeout   time.Duration
	ErasePoll      time.Duration
	ProgramTimeout time.Duration
	ProgramPoll    time.Duration
}

// DefaultConfig returns ceilings well above the data sheet figures.
func DefaultConfig() Config {
	return Config{
		EraseTimeout:   10 * time.Second,
		ErasePoll:      50 * time.Millisecond,
		ProgramTimeout: time.Second,
		ProgramPoll:    0,
	}
}

// Programmer runs the erase/program pipeline for one debug session.
type Programmer struct {
	x     *xdata.Access
	clock link.Clock
	cfg   Config

	state      State
	dmaEnabled bool
}

// NewProgrammer creates a pipeline in the Idle state.
func NewProgrammer(x *xdata.Access, clock link.Clock, cfg Config) *Programmer {
	if clock == nil {
		clock = link.SystemClock{}
	}
	return &Programmer{x: x, clock: clock, cfg: cfg}
}

// State returns the current pipeline state.
func (p *Programmer) State() State {
	return p.state
}

func (p *Programmer) fail(err error) error {
	p.state = Failed
	return err
}

// Erase issues CHIP_ERASE and polls READ_STATUS until the busy flag
// clears. On ErrEraseTimeout the flash contents are indeterminate.
func (p *Programmer) Erase() error {
	p.state = Erasing
	cmd := p.x.Command()
	if err := cmd.ChipErase(); err != nil {
		return p.fail(fmt.Errorf("chip erase: %w", err))
	}
	start := p.clock.Now()
	for {
		s, err := cmd.ReadStatus()
		if err != nil {
			return p.fail(fmt.Errorf("chip erase: %w", err))
		}
		if s&command.StatusChipEraseBusy == 0 {
			break
		}
		if p.clock.Now().Sub(start) >= p.cfg.EraseTimeout {
			return p.fail(ErrEraseTimeout)
		}
		p.clock.Sleep(p.cfg.ErasePoll)
	}
	hal.DebugAsync("[FLASH] chip erased")
	p.state = Idle
	return nil
}

// EnableDMA unpauses DMA while the CPU is halted. Needed once per session.
func (p *Programmer) EnableDMA() error {
	if p.dmaEnabled {
		return nil
	}
	if err := p.x.Command().WriteConfig(command.ConfigEnableDMA); err != nil {
		return fmt.Errorf("enable dma: %w", err)
	}
	p.dmaEnabled = true
	return nil
}

// CheckBlock reports whether Program accepts a block of length n at
// address.
func CheckBlock(address uint32, n int) error {
	if address%4 != 0 {
		return ErrAlignment
	}
	if n <= 0 || n > BufferSize || n%4 != 0 {
		return ErrBlockSize
	}
	if int(address)+n > FlashSize {
		return fmt.Errorf("flash: program 0x%05x+%d beyond end of flash", address, n)
	}
	return nil
}

// Program writes data at address. The block is streamed into the staging
// buffer by a burst write and then moved into flash by the controller.
func (p *Programmer) Program(address uint32, data []byte) error {
	if err := CheckBlock(address, len(data)); err != nil {
		return err
	}

	p.state = ConfiguringDMA
	if err := p.EnableDMA(); err != nil {
		return p.fail(err)
	}
	if err := p.configure(address, len(data)); err != nil {
		return p.fail(fmt.Errorf("program 0x%05x: %w", address, err))
	}

	p.state = BurstLoading
	if err := p.x.Store(xdata.RegDMAARM, ChDbgToBuffer); err != nil {
		return p.fail(fmt.Errorf("program 0x%05x: %w", address, err))
	}
	if _, err := p.x.Command().BurstWrite(data); err != nil {
		return p.fail(fmt.Errorf("program 0x%05x: burst: %w", address, err))
	}

	p.state = Programming
	if err := p.x.Store(xdata.RegDMAARM, ChBufferToFlash); err != nil {
		return p.fail(fmt.Errorf("program 0x%05x: %w", address, err))
	}
	if err := p.x.Store(xdata.RegFCTL, xdata.FCTLCM|xdata.FCTLWrite); err != nil {
		return p.fail(fmt.Errorf("program 0x%05x: %w", address, err))
	}
	if err := p.waitController(); err != nil {
		return p.fail(fmt.Errorf("program 0x%05x: %w", address, err))
	}
	p.state = Done
	return nil
}

func (p *Programmer) configure(address uint32, length int) error {
	desc0, desc1 := Descriptors(length)
	block := append(desc0[:], desc1[:]...)
	if err := p.x.WriteBlock(Desc0Addr, block); err != nil {
		return err
	}
	regs := []struct {
		addr uint16
		v    byte
	}{
		{xdata.RegDMA0CFGH, hi(Desc0Addr)},
		{xdata.RegDMA0CFGL, lo(Desc0Addr)},
		{xdata.RegDMA1CFGH, hi(Desc1Addr)},
		{xdata.RegDMA1CFGL, lo(Desc1Addr)},
		{xdata.RegFADDRH, byte(address >> 10)},
		{xdata.RegFADDRL, byte(address >> 2)},
	}
	for _, r := range regs {
		if err := p.x.Store(r.addr, r.v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Programmer) waitController() error {
	start := p.clock.Now()
	for {
		v, err := p.x.Load(xdata.RegFCTL)
		if err != nil {
			return err
		}
		if v&xdata.FCTLBusy == 0 {
			return nil
		}
		if p.clock.Now().Sub(start) >= p.cfg.ProgramTimeout {
			return ErrProgramTimeout
		}
		p.clock.Sleep(p.cfg.ProgramPoll)
	}
}

// Read fills buf from flash starting at address.
func (p *Programmer) Read(address uint32, buf []byte) error {
	if int(address)+len(buf) > FlashSize {
		return fmt.Errorf("flash: read 0x%05x+%d beyond end of flash", address, len(buf))
	}
	return p.x.ReadBlockBanked(address, buf)
}
