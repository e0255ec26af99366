// Package simtarget is a word-level model of a CC253x behind the debug
// link. It implements link.Driver, decodes frames the way the target's
// debug unit would, and emulates the handful of 8051 instructions, DMA
// channels and flash controller behaviour the flasher relies on.
package simtarget

import (
	"ccflash/command"
	"ccflash/link"
	"ccflash/xdata"
)

// FlashSize is the modelled flash size (CC2530F256 / CC2531F256).
const FlashSize = 256 * 1024

// Options shapes the simulated target's behaviour.
type Options struct {
	ChipID   byte
	Revision byte

	// EraseBusyPolls is how many READ_STATUS answers still report the
	// erase busy flag after CHIP_ERASE.
	EraseBusyPolls int
	// ProgramBusyPolls is how many FCTL reads report busy after a write.
	ProgramBusyPolls int
	// ClockPolls is how many CLKCONSTA reads lag behind CLKCONCMD.
	ClockPolls int
	// NotReady is how many responses are flagged not-ready before data.
	NotReady int
	// Hang makes the sequencer never produce a response.
	Hang bool
	// EraseNeverEnds keeps the erase busy flag set forever.
	EraseNeverEnds bool
}

// DefaultOptions models a CC2530 revision 0x24.
func DefaultOptions() Options {
	return Options{ChipID: 0xA5, Revision: 0x24, EraseBusyPolls: 2, ProgramBusyPolls: 1}
}

// Target is a simulated chip and sequencer.
type Target struct {
	opts Options

	claimed  bool
	loaded   link.Variant
	attached bool

	Flash [FlashSize]byte
	XData [0x10000]byte

	dptr       uint16
	acc        byte
	config     byte
	armed      byte
	eraseBusy  int
	progBusy   int
	clockPolls int
	notReady   int
	pending    []byte

	tx []uint32
	rx []uint32

	// Counters for assertions.
	Attaches    int
	StatusPolls int
	Erases      int
	Programs    int
	Bursts      int
	Aborts      int
	Loads       []link.Variant
}

// New returns a target with flash holding random-looking old contents.
func New(opts Options) *Target {
	t := &Target{opts: opts, config: command.ConfigDMAPause}
	for i := range t.Flash {
		t.Flash[i] = byte(i*7 + 3)
	}
	return t
}

func (t *Target) TryClaim() bool {
	if t.claimed {
		return false
	}
	t.claimed = true
	return true
}

func (t *Target) Unclaim() { t.claimed = false }

func (t *Target) Load(v link.Variant) error {
	t.loaded = v
	t.Loads = append(t.Loads, v)
	if v == link.VariantAttach && !t.opts.Hang {
		t.attached = true
		t.Attaches++
		t.rx = append(t.rx, 0)
	}
	return nil
}

func (t *Target) Unload() {
	t.tx = nil
	t.rx = nil
	t.loaded = link.VariantNone
}

func (t *Target) Put(w uint32) bool {
	if t.loaded != link.VariantCommand {
		return true
	}
	t.tx = append(t.tx, w)
	wc, rc := link.SplitControlWord(t.tx[0])
	if len(t.tx) < 1+(wc+3)/4 {
		return true
	}
	payload := make([]byte, wc)
	for i := range payload {
		payload[i] = link.PayloadByte(t.tx[1:], i)
	}
	t.tx = nil
	if t.opts.Hang {
		return true
	}
	t.rx = append(t.rx, t.respond(payload, rc))
	return true
}

func (t *Target) Ready() bool { return len(t.rx) > 0 }

func (t *Target) Get() uint32 {
	w := t.rx[0]
	t.rx = t.rx[1:]
	return w
}

func (t *Target) Abort() {
	t.Aborts++
	t.tx = nil
	t.rx = nil
}

// Image returns a copy of the flash contents.
func (t *Target) Image() []byte {
	out := make([]byte, FlashSize)
	copy(out, t.Flash[:])
	return out
}

// DMAEnabled reports whether WR_CONFIG left DMA unpaused.
func (t *Target) DMAEnabled() bool {
	return t.config&command.ConfigDMAPause == 0
}

func (t *Target) respond(payload []byte, rc int) uint32 {
	if len(payload) > 0 {
		t.pending = t.execute(payload)
		if t.attached {
			t.notReady = t.opts.NotReady
		}
	}
	if rc == 0 {
		return 0
	}
	data := make([]byte, rc)
	copy(data, t.pending)

	flag := uint32(0)
	if !t.attached {
		flag = 1
	} else if t.notReady > 0 {
		t.notReady--
		flag = 1
		for i := range data {
			data[i] = 0xFF
		}
	}
	w := flag
	for _, b := range data {
		w = w<<8 | uint32(b)
	}
	return w
}

func (t *Target) execute(p []byte) []byte {
	if !t.attached {
		return nil
	}
	op := p[0]
	switch {
	case op == command.CmdGetChipID:
		return []byte{t.opts.ChipID, t.opts.Revision}
	case op == command.CmdReadStatus:
		t.StatusPolls++
		s := t.status()
		if t.eraseBusy > 0 {
			t.eraseBusy--
		}
		return []byte{s}
	case op == command.CmdChipErase:
		s := t.status()
		t.Erases++
		for i := range t.Flash {
			t.Flash[i] = 0xFF
		}
		t.eraseBusy = t.opts.EraseBusyPolls
		return []byte{s}
	case op == command.CmdWrConfig:
		t.config = p[1]
		return []byte{t.status()}
	case op == command.CmdRdConfig:
		return []byte{t.config}
	case op&0xFC == command.CmdDebugInstr:
		return []byte{t.instr(p[1:])}
	case op&0xF8 == command.CmdBurstWrite:
		t.burst(p[2:])
		return []byte{t.status()}
	default:
		return []byte{t.status()}
	}
}

func (t *Target) status() byte {
	s := byte(command.StatusCPUHalted | command.StatusOscStable)
	if t.opts.EraseNeverEnds && t.Erases > 0 {
		return s | command.StatusChipEraseBusy
	}
	if t.eraseBusy > 0 {
		s |= command.StatusChipEraseBusy
	}
	return s
}

func (t *Target) instr(code []byte) byte {
	if len(code) == 0 {
		return t.acc
	}
	switch code[0] {
	case command.OpMovDPTR:
		if len(code) == 3 {
			t.dptr = uint16(code[1])<<8 | uint16(code[2])
		}
	case command.OpMovA:
		if len(code) == 2 {
			t.acc = code[1]
		}
	case command.OpMovxStor:
		t.write(t.dptr, t.acc)
	case command.OpMovxLoad:
		t.acc = t.read(t.dptr)
	case command.OpIncDPTR:
		t.dptr++
	}
	return t.acc
}

type descriptor struct {
	src, dst uint16
	length   int
}

func (t *Target) descriptor(hi, lo uint16) descriptor {
	p := uint16(t.XData[hi])<<8 | uint16(t.XData[lo])
	x := t.XData[p : p+8]
	return descriptor{
		src:    uint16(x[0])<<8 | uint16(x[1]),
		dst:    uint16(x[2])<<8 | uint16(x[3]),
		length: int(x[4]&0x1f)<<8 | int(x[5]),
	}
}

func (t *Target) burst(data []byte) {
	t.Bursts++
	if t.armed&0x01 == 0 || !t.DMAEnabled() {
		return
	}
	d := t.descriptor(xdata.RegDMA0CFGH, xdata.RegDMA0CFGL)
	for i := 0; i < d.length && i < len(data); i++ {
		t.XData[d.dst+uint16(i)] = data[i]
	}
	t.armed &^= 0x01
}

func (t *Target) write(addr uint16, v byte) {
	t.XData[addr] = v
	switch addr {
	case xdata.RegDMAARM:
		t.armed |= v & 0x1f
	case xdata.RegFCTL:
		if v&xdata.FCTLWrite != 0 && t.armed&0x02 != 0 && t.DMAEnabled() {
			d := t.descriptor(xdata.RegDMA1CFGH, xdata.RegDMA1CFGL)
			base := (int(t.XData[xdata.RegFADDRH])<<8 | int(t.XData[xdata.RegFADDRL])) * 4
			for i := 0; i < d.length && base+i < FlashSize; i++ {
				// NOR flash can only clear bits
				t.Flash[base+i] &= t.XData[d.src+uint16(i)]
			}
			t.armed &^= 0x02
			t.progBusy = t.opts.ProgramBusyPolls
			t.Programs++
		}
	case xdata.RegCLKCONCMD:
		t.clockPolls = t.opts.ClockPolls
	}
}

func (t *Target) read(addr uint16) byte {
	switch {
	case addr >= xdata.BankWindow:
		bank := int(t.XData[xdata.RegMEMCTR] & 0x07)
		return t.Flash[bank*xdata.BankSize+int(addr-xdata.BankWindow)]
	case addr == xdata.RegFCTL:
		if t.progBusy > 0 {
			t.progBusy--
			return xdata.FCTLBusy
		}
		return 0
	case addr == xdata.RegCLKCONSTA:
		if t.clockPolls > 0 {
			t.clockPolls--
			return 0
		}
		return t.XData[xdata.RegCLKCONCMD]
	}
	return t.XData[addr]
}

// SetHang switches response suppression on or off at runtime.
func (t *Target) SetHang(v bool) { t.opts.Hang = v }

// Attached builds an Engine around t and runs the attach sequence.
func Attached(t *Target, clock link.Clock, cfg link.Config) (*link.Engine, error) {
	e, err := link.NewEngine(t, clock, cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Attach(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}
