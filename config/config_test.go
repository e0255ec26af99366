package config

import (
	"errors"
	"testing"
	"time"

	"ccflash/link"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if got := c.LinkPins(); got != (link.Pins{DD: 27, DC: 28, RST: 29}) {
		t.Errorf("Unexpected pins %+v", got)
	}
	if c.PIOFrequency != 25_000_000 {
		t.Errorf("Expected 25 MHz, got %d", c.PIOFrequency)
	}
	s := c.Session()
	if s.Link.Timeout != 30*time.Second {
		t.Errorf("Expected 30s link ceiling, got %v", s.Link.Timeout)
	}
	if c.RetryAttempts != 3 || c.RetryDelay() != 5*time.Second {
		t.Errorf("Expected 3 attempts then 5s hold-off, got %d, %v", c.RetryAttempts, c.RetryDelay())
	}
}

func TestLoadOverrides(t *testing.T) {
	c, err := Load([]byte(`{"link":"bitbang","pins":{"dd":"gpio2","dc":"gpio5","rst":"gpio3"},"retry_attempts":1,"erase_poll_ms":500}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Link != LinkBitbang || c.RetryAttempts != 1 {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.Session().Flash.ErasePoll != 500*time.Millisecond {
		t.Errorf("Expected 500ms erase poll, got %v", c.Session().Flash.ErasePoll)
	}
	if c.RetryDelay() != 5*time.Second {
		t.Errorf("Expected default retry delay, got %v", c.RetryDelay())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"pio pins not consecutive", `{"pins":{"dd":"gpio2","dc":"gpio5","rst":"gpio3"}}`},
		{"bad pin", `{"pins":{"dd":"gpio99"}}`},
		{"duplicate pin", `{"pins":{"dd":"gpio28"}}`},
		{"link", `{"link":"spi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load([]byte(tt.json)); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
	if _, err := Load([]byte(`{`)); err == nil {
		t.Errorf("Expected a JSON error")
	}
}

func TestParsePin(t *testing.T) {
	for name, want := range map[string]uint32{"gpio0": 0, "GPIO16": 16, "29": 29} {
		got, err := ParsePin(name)
		if err != nil || uint32(got) != want {
			t.Errorf("ParsePin(%q): expected %d, got %d (%v)", name, want, got, err)
		}
	}
}
