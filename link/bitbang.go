package link

import (
	"errors"

	"ccflash/hal"
)

// Pins names the three debug lines.
type Pins struct {
	DD  hal.GPIOPin // data, bidirectional
	DC  hal.GPIOPin // clock
	RST hal.GPIOPin // RESET_N
}

// BitbangWaitBytes is how many busy bytes Bitbang drops before it gives up
// and reports not-ready. Frames run inside Put, so the wait is bounded
// here; the command client retries.
const BitbangWaitBytes = 32

// Bitbang runs the sequencer contract on plain GPIO. It executes a frame
// synchronously once its last word is queued, so it is only as jitter-free
// as the caller's loop; the half-period delay must give the target at
// least ~100ns per phase.
type Bitbang struct {
	gpio  hal.GPIODriver
	pins  Pins
	delay func()

	claimed bool
	loaded  Variant
	ddOut   bool

	tx []uint32
	rx []uint32
}

// NewBitbang creates a bit-bang driver. delay is called once per clock
// half period; nil means no extra delay.
func NewBitbang(gpio hal.GPIODriver, pins Pins, delay func()) *Bitbang {
	if delay == nil {
		delay = func() {}
	}
	return &Bitbang{gpio: gpio, pins: pins, delay: delay}
}

func (b *Bitbang) TryClaim() bool {
	if b.claimed {
		return false
	}
	b.claimed = true
	return true
}

func (b *Bitbang) Unclaim() {
	b.claimed = false
}

func (b *Bitbang) Load(v Variant) error {
	if b.loaded != VariantNone {
		return errors.New("bitbang: variant already loaded")
	}
	if err := b.gpio.ConfigureOutput(b.pins.DC); err != nil {
		return err
	}
	if err := b.gpio.ConfigureOutput(b.pins.RST); err != nil {
		return err
	}
	b.gpio.SetPin(b.pins.DC, false)
	b.gpio.SetPin(b.pins.RST, true)
	if err := b.dataInput(); err != nil {
		return err
	}
	b.loaded = v

	switch v {
	case VariantAttach:
		b.attach()
		b.rx = append(b.rx, 0)
	case VariantCommand:
	default:
		b.loaded = VariantNone
		return errors.New("bitbang: unknown variant")
	}
	return nil
}

func (b *Bitbang) Unload() {
	b.Abort()
	b.loaded = VariantNone
}

func (b *Bitbang) Put(word uint32) bool {
	if b.loaded != VariantCommand {
		return true
	}
	b.tx = append(b.tx, word)
	wc, _ := SplitControlWord(b.tx[0])
	if len(b.tx) < 1+(wc+3)/4 {
		return true
	}
	resp := b.runFrame(b.tx)
	b.tx = b.tx[:0]
	b.rx = append(b.rx, resp)
	return true
}

func (b *Bitbang) Ready() bool {
	return len(b.rx) > 0
}

func (b *Bitbang) Get() uint32 {
	w := b.rx[0]
	b.rx = b.rx[1:]
	return w
}

func (b *Bitbang) Abort() {
	b.tx = b.tx[:0]
	b.rx = b.rx[:0]
	b.gpio.SetPin(b.pins.DC, false)
	b.dataInput()
}

// attach: RST low, two falling DC edges, RST high.
func (b *Bitbang) attach() {
	b.gpio.SetPin(b.pins.RST, false)
	b.gpio.SetPin(b.pins.DC, false)
	b.hold(4)
	for i := 0; i < 2; i++ {
		b.gpio.SetPin(b.pins.DC, true)
		b.hold(2)
		b.gpio.SetPin(b.pins.DC, false)
		b.hold(2)
	}
	b.hold(2)
	b.gpio.SetPin(b.pins.RST, true)
	b.hold(4)
}

func (b *Bitbang) runFrame(frame []uint32) uint32 {
	wc, rc := SplitControlWord(frame[0])
	if wc > 0 {
		b.dataOutput()
		for i := 0; i < wc; i++ {
			v := PayloadByte(frame[1:], i)
			for bit := 7; bit >= 0; bit-- {
				b.writeBit(v>>uint(bit)&1 != 0)
			}
		}
		b.dataInput()
		// DD turnaround, the target needs ~83ns before driving it
		b.hold(2)
	}
	if rc == 0 {
		return 0
	}
	for n := 0; b.gpio.ReadPin(b.pins.DD); n++ {
		if n == BitbangWaitBytes {
			return 1 << (8 * uint(rc))
		}
		for i := 0; i < 8; i++ {
			b.readBit()
		}
	}
	var resp uint32
	for i := 0; i < 8*rc; i++ {
		resp = resp<<1 | bit(b.readBit())
	}
	return resp
}

func (b *Bitbang) writeBit(v bool) {
	b.gpio.SetPin(b.pins.DD, v)
	b.gpio.SetPin(b.pins.DC, true)
	b.delay()
	b.gpio.SetPin(b.pins.DC, false)
	b.delay()
}

// readBit: the target shifts on the rising edge, we sample on the falling one.
func (b *Bitbang) readBit() bool {
	b.gpio.SetPin(b.pins.DC, true)
	b.delay()
	b.gpio.SetPin(b.pins.DC, false)
	v := b.gpio.ReadPin(b.pins.DD)
	b.delay()
	return v
}

func (b *Bitbang) dataOutput() error {
	if b.ddOut {
		return nil
	}
	if err := b.gpio.ConfigureOutput(b.pins.DD); err != nil {
		return err
	}
	b.ddOut = true
	return nil
}

func (b *Bitbang) dataInput() error {
	if err := b.gpio.ConfigureInputPullUp(b.pins.DD); err != nil {
		return err
	}
	b.ddOut = false
	return nil
}

func (b *Bitbang) hold(n int) {
	for i := 0; i < n; i++ {
		b.delay()
	}
}

func bit(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
