// Package status signals the flasher's state to the operator.
package status

import (
	"image/color"
	"time"
)

// Level is the coarse state shown on an indicator.
type Level uint8

const (
	Off Level = iota
	Init
	Running
	Error
	Success
)

func (l Level) String() string {
	switch l {
	case Off:
		return "off"
	case Init:
		return "init"
	case Running:
		return "running"
	case Error:
		return "error"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

// Indicator shows levels and block progress. Implementations must not
// block for long, they are called from the transfer loop.
type Indicator interface {
	Set(l Level)
	Progress(done, total int)
}

// Color returns the LED color for a level. Running alternates between two
// shades with the block counter so activity is visible.
func Color(l Level, tick int) color.RGBA {
	switch l {
	case Init:
		return color.RGBA{R: 10, G: 20, B: 10}
	case Running:
		if tick%2 == 0 {
			return color.RGBA{R: 16, G: 10}
		}
		return color.RGBA{R: 10, G: 16}
	case Error:
		return color.RGBA{R: 20}
	case Success:
		return color.RGBA{G: 20}
	}
	return color.RGBA{}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Set(Level) {}
func (Nop) Progress(int, int) {}

// Blink toggles l on and off count times.
func Blink(ind Indicator, l Level, count int, interval time.Duration, sleep func(time.Duration)) {
	for i := 0; i < count; i++ {
		ind.Set(l)
		sleep(interval)
		ind.Set(Off)
		sleep(interval)
	}
}

// Recorder keeps every level it is given, for tests and logs.
type Recorder struct {
	Levels []Level
	Last   [2]int
}

func (r *Recorder) Set(l Level) { r.Levels = append(r.Levels, l) }

func (r *Recorder) Progress(done, total int) { r.Last = [2]int{done, total} }
