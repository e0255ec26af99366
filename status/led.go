//go:build tinygo

package status

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// LED shows levels on a single WS2812 pixel.
type LED struct {
	dev   ws2812.Device
	level Level
}

// NewLED configures pin and returns the indicator.
func NewLED(pin machine.Pin) *LED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	l := &LED{dev: ws2812.NewWS2812(pin)}
	l.Set(Off)
	return l
}

func (l *LED) Set(level Level) {
	l.level = level
	l.write(Color(level, 0))
}

func (l *LED) Progress(done, total int) {
	l.write(Color(Running, done))
}

func (l *LED) write(c color.RGBA) {
	l.dev.WriteColors([]color.RGBA{c})
}
