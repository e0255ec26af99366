//go:build !tinygo

package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Console draws the status line on a terminal.
type Console struct {
	w     io.Writer
	width int
	level Level
}

// NewConsole writes to w with a progress bar of width characters.
func NewConsole(w io.Writer, width int) *Console {
	if width <= 0 {
		width = 40
	}
	return &Console{w: w, width: width}
}

var levelColors = map[Level]*color.Color{
	Init:    color.New(color.FgCyan),
	Running: color.New(color.FgYellow),
	Error:   color.New(color.FgRed, color.Bold),
	Success: color.New(color.FgGreen, color.Bold),
}

func (c *Console) Set(l Level) {
	if l == c.level || l == Off {
		c.level = l
		return
	}
	if c.level == Running {
		fmt.Fprintln(c.w)
	}
	c.level = l
	if l == Running {
		return
	}
	levelColors[l].Fprintf(c.w, "[%s]\n", l)
}

func (c *Console) Progress(done, total int) {
	if total <= 0 {
		return
	}
	fill := done * c.width / total
	levelColors[Running].Fprintf(c.w, "\r[%s%s] %d/%d",
		strings.Repeat("=", fill), strings.Repeat(" ", c.width-fill), done, total)
}
