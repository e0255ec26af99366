//go:build rp2040 || rp2350

package pio

import (
	"device/arm"
	"device/rp"
	"machine"

	"ccflash/hal"
)

// SIOGPIO is a hal.GPIODriver on the single-cycle IO block. Direction
// changes only touch the output enable register, so the bit-bang link can
// turn DD around without reconfiguring the pad.
type SIOGPIO struct {
	configured uint32
}

func (g *SIOGPIO) configure(pin hal.GPIOPin, mode machine.PinMode) {
	mask := uint32(1) << pin
	if g.configured&mask != 0 && mode == machine.PinOutput {
		return
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: mode})
	g.configured |= mask
}

func (g *SIOGPIO) ConfigureOutput(pin hal.GPIOPin) error {
	g.configure(pin, machine.PinOutput)
	rp.SIO.GPIO_OE_SET.Set(1 << pin)
	return nil
}

func (g *SIOGPIO) ConfigureInputPullUp(pin hal.GPIOPin) error {
	rp.SIO.GPIO_OE_CLR.Set(1 << pin)
	if g.configured&(1<<pin) == 0 {
		g.configure(pin, machine.PinInputPullup)
	}
	return nil
}

func (g *SIOGPIO) SetPin(pin hal.GPIOPin, value bool) error {
	if value {
		rp.SIO.GPIO_OUT_SET.Set(1 << pin)
	} else {
		rp.SIO.GPIO_OUT_CLR.Set(1 << pin)
	}
	return nil
}

func (g *SIOGPIO) ReadPin(pin hal.GPIOPin) bool {
	return rp.SIO.GPIO_IN.Get()&(1<<pin) != 0
}

// HalfPeriod keeps each DC phase above 100ns at 125MHz.
func HalfPeriod() {
	arm.Asm("nop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop\nnop")
}
