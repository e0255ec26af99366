//go:build rp2040 || rp2350

package pio

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"ccflash/link"
)

var (
	errNoStateMachine = errors.New("pio: no free state machine")
	errLoaded         = errors.New("pio: variant already loaded")
	errUnknown        = errors.New("pio: unknown variant")
)

const programOrigin = 0 // jump addresses assume offset 0

// LinkDriver runs the debug link sequencer on one PIO state machine.
// DC and RST are driven by side-set and must be consecutive pins.
type LinkDriver struct {
	pio *rp2pio.PIO
	sm  rp2pio.StateMachine

	dd, dc, rst machine.Pin
	freq        uint32

	loaded  link.Variant
	program []uint16
	offset  uint8
}

// NewLinkDriver takes the next free state machine. freq is the PIO clock;
// one DC period takes at least two PIO cycles.
func NewLinkDriver(pins link.Pins, freq uint32) (*LinkDriver, error) {
	pioNum, smNum, ok := allocatePIO()
	if !ok {
		return nil, errNoStateMachine
	}
	p := block(pioNum)
	return &LinkDriver{
		pio:  p,
		sm:   p.StateMachine(smNum),
		dd:   machine.Pin(pins.DD),
		dc:   machine.Pin(pins.DC),
		rst:  machine.Pin(pins.RST),
		freq: freq,
	}, nil
}

func (d *LinkDriver) TryClaim() bool {
	return d.sm.TryClaim()
}

func (d *LinkDriver) Unclaim() {
	d.sm.Unclaim()
}

func (d *LinkDriver) Load(v link.Variant) error {
	if d.loaded != link.VariantNone {
		return errLoaded
	}
	var program []uint16
	switch v {
	case link.VariantAttach:
		program = buildAttachProgram()
	case link.VariantCommand:
		program = buildCommandProgram()
	default:
		return errUnknown
	}
	offset, err := d.pio.AddProgram(program, programOrigin)
	if err != nil {
		return err
	}
	d.program, d.offset = program, offset

	mode := machine.PinConfig{Mode: d.pio.PinMode()}
	d.dd.Configure(mode)
	d.dc.Configure(mode)
	d.rst.Configure(mode)

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(d.dd, 1)
	cfg.SetOutPins(d.dd, 1)
	cfg.SetInPins(d.dd)
	cfg.SetJmpPin(d.dd)
	cfg.SetSidesetParams(2, false, false)
	cfg.SetSidesetPins(d.dc)
	// MSB first both ways, explicit pull and push
	cfg.SetOutShift(false, false, 32)
	cfg.SetInShift(false, false, 32)
	cfg.SetWrap(offset, offset+uint8(len(program))-1)
	whole, frac := clockDivider(machine.CPUFrequency(), d.freq)
	cfg.SetClkDivIntFrac(whole, frac)

	d.sm.Init(offset, cfg)

	// pin directions after Init
	d.sm.SetPindirsConsecutive(d.dc, 2, true)
	d.sm.SetPinsConsecutive(d.dc, 1, false)
	d.sm.SetPinsConsecutive(d.rst, 1, true)
	d.sm.SetPindirsConsecutive(d.dd, 1, false)

	d.sm.SetEnabled(true)
	d.loaded = v
	return nil
}

func (d *LinkDriver) Unload() {
	if d.loaded == link.VariantNone {
		return
	}
	d.sm.SetEnabled(false)
	d.sm.ClearFIFOs()
	d.pio.ClearProgramSection(d.offset, uint8(len(d.program)))
	d.loaded = link.VariantNone
	d.program = nil
}

func (d *LinkDriver) Put(word uint32) bool {
	if d.sm.IsTxFIFOFull() {
		return false
	}
	d.sm.TxPut(word)
	return true
}

func (d *LinkDriver) Ready() bool {
	return !d.sm.IsRxFIFOEmpty()
}

func (d *LinkDriver) Get() uint32 {
	return d.sm.RxGet()
}

// Abort restarts the loaded program at its entry point.
func (d *LinkDriver) Abort() {
	if d.loaded == link.VariantNone {
		return
	}
	d.sm.SetEnabled(false)
	d.sm.ClearFIFOs()
	d.sm.Restart()
	d.sm.Exec(rp2pio.AssemblerV0{SidesetBits: 2}.Jmp(d.offset, rp2pio.JmpAlways).Side(sideIdle).Encode())
	d.sm.SetPindirsConsecutive(d.dd, 1, false)
	d.sm.SetEnabled(true)
}

// clockDivider splits cpu/freq into the 16.8 fixed point divider.
func clockDivider(cpu, freq uint32) (uint16, uint8) {
	if freq == 0 || freq >= cpu {
		return 1, 0
	}
	whole := cpu / freq
	frac := (uint64(cpu%freq) << 8) / uint64(freq)
	if whole > 0xffff {
		return 0xffff, 0
	}
	return uint16(whole), uint8(frac)
}
