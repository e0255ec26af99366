// Package config loads the flasher's board configuration from JSON and
// fills in the board defaults for anything left out.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ccflash/hal"
	"ccflash/link"
	"ccflash/transfer"
)

// Link backends
const (
	LinkPIO     = "pio"
	LinkBitbang = "bitbang"
)

var ErrInvalid = errors.New("config: invalid")

// Pins names the GPIOs in "gpioN" form.
type Pins struct {
	DD     string `json:"dd"`
	DC     string `json:"dc"`
	RST    string `json:"rst"`
	Status string `json:"status,omitempty"`
}

// Config is the board configuration. Durations are in milliseconds.
type Config struct {
	Link         string `json:"link"`
	Pins         Pins   `json:"pins"`
	PIOFrequency uint32 `json:"pio_frequency"`

	LinkTimeoutMS    int `json:"link_timeout_ms"`
	EraseTimeoutMS   int `json:"erase_timeout_ms"`
	ErasePollMS      int `json:"erase_poll_ms"`
	ProgramTimeoutMS int `json:"program_timeout_ms"`
	ClockTimeoutMS   int `json:"clock_timeout_ms"`

	RetryDelayMS  int `json:"retry_delay_ms"`
	RetryAttempts int `json:"retry_attempts"`

	Debug bool `json:"debug"`
}

// Load parses JSON, applies defaults and validates the result.
func Load(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the reference board: DD/DC/RST on GP27/28/29, PIO at
// 25 MHz.
func Default() *Config {
	c := &Config{}
	applyDefaults(c)
	return c
}

func applyDefaults(c *Config) {
	if c.Link == "" {
		c.Link = LinkPIO
	}
	if c.Pins.DD == "" {
		c.Pins.DD = "gpio27"
	}
	if c.Pins.DC == "" {
		c.Pins.DC = "gpio28"
	}
	if c.Pins.RST == "" {
		c.Pins.RST = "gpio29"
	}
	if c.PIOFrequency == 0 {
		c.PIOFrequency = 25_000_000
	}
	if c.LinkTimeoutMS == 0 {
		c.LinkTimeoutMS = 30_000
	}
	if c.EraseTimeoutMS == 0 {
		c.EraseTimeoutMS = 10_000
	}
	if c.ErasePollMS == 0 {
		c.ErasePollMS = 50
	}
	if c.ProgramTimeoutMS == 0 {
		c.ProgramTimeoutMS = 1_000
	}
	if c.ClockTimeoutMS == 0 {
		c.ClockTimeoutMS = 1_000
	}
	if c.RetryDelayMS == 0 {
		c.RetryDelayMS = 5_000
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
}

// Validate checks the constraints the link drivers rely on.
func (c *Config) Validate() error {
	if c.Link != LinkPIO && c.Link != LinkBitbang {
		return fmt.Errorf("%w: link %q", ErrInvalid, c.Link)
	}
	dd, err := ParsePin(c.Pins.DD)
	if err != nil {
		return err
	}
	dc, err := ParsePin(c.Pins.DC)
	if err != nil {
		return err
	}
	rst, err := ParsePin(c.Pins.RST)
	if err != nil {
		return err
	}
	if dd == dc || dd == rst || dc == rst {
		return fmt.Errorf("%w: DD, DC and RST must be distinct", ErrInvalid)
	}
	if c.Link == LinkPIO && rst != dc+1 {
		return fmt.Errorf("%w: PIO side-set needs RST right after DC", ErrInvalid)
	}
	if c.Pins.Status != "" {
		if _, err := ParsePin(c.Pins.Status); err != nil {
			return err
		}
	}
	return nil
}

// ParsePin accepts "gpioN" or a bare number.
func ParsePin(name string) (hal.GPIOPin, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(name), "gpio"))
	if err != nil || n < 0 || n > 29 {
		return 0, fmt.Errorf("%w: pin %q", ErrInvalid, name)
	}
	return hal.GPIOPin(n), nil
}

// LinkPins returns the parsed debug pins. Only valid after Validate.
func (c *Config) LinkPins() link.Pins {
	dd, _ := ParsePin(c.Pins.DD)
	dc, _ := ParsePin(c.Pins.DC)
	rst, _ := ParsePin(c.Pins.RST)
	return link.Pins{DD: dd, DC: dc, RST: rst}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Session returns the session ceilings.
func (c *Config) Session() transfer.SessionConfig {
	s := transfer.DefaultSessionConfig()
	s.Link.Timeout = ms(c.LinkTimeoutMS)
	s.Flash.EraseTimeout = ms(c.EraseTimeoutMS)
	s.Flash.ErasePoll = ms(c.ErasePollMS)
	s.Flash.ProgramTimeout = ms(c.ProgramTimeoutMS)
	s.ClockTimeout = ms(c.ClockTimeoutMS)
	return s
}

// RetryDelay is how long the board holds off after RetryAttempts failed
// session opens.
func (c *Config) RetryDelay() time.Duration {
	return ms(c.RetryDelayMS)
}
