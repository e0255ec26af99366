package serial

import (
	"io"
)

// Port is the byte stream to a flasher board.
type Port interface {
	io.ReadWriteCloser

	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud is ignored by USB CDC boards but required by some adapters.
	Baud int

	// ReadTimeout in milliseconds (0 = blocking). The transport read loop
	// polls its stop channel between reads, so keep this short.
	ReadTimeout int
}

// DefaultConfig returns the settings used for the flasher board.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 50,
	}
}
