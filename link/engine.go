package link

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"ccflash/hal"
)

var (
	// ErrTimeout means the target did not respond within Config.Timeout.
	// The sequencer has already been reset when it is returned.
	ErrTimeout = errors.New("link: target did not respond")
	// ErrBusy is returned when the driver is owned elsewhere or the engine
	// is already inside an exchange.
	ErrBusy = errors.New("link: debug link in use")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("link: engine closed")
	// ErrFrameTooLong rejects payloads the control word cannot describe.
	ErrFrameTooLong = errors.New("link: frame exceeds write count field")
)

// Config bounds every wait on the target.
type Config struct {
	// Timeout is the ceiling for any single wait on the sequencer.
	Timeout time.Duration
	// PollInterval is slept between polls of the driver. Zero spins.
	PollInterval time.Duration
}

// DefaultConfig returns the board defaults: a 30 second ceiling and a
// spinning poll.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		PollInterval: 0,
	}
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Engine owns a Driver for its whole lifetime. It is the only path from
// higher layers to the signal lines.
type Engine struct {
	noCopy noCopy

	driver Driver
	clock  Clock
	cfg    Config

	loaded Variant
	inUse  uint32
	closed bool
}

// NewEngine claims d. It fails with ErrBusy if another engine owns it.
func NewEngine(d Driver, clock Clock, cfg Config) (*Engine, error) {
	if !d.TryClaim() {
		return nil, ErrBusy
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Engine{driver: d, clock: clock, cfg: cfg}, nil
}

// Clock returns the engine's time source so upper layers share it.
func (e *Engine) Clock() Clock {
	return e.clock
}

// Timeout returns the configured wait ceiling.
func (e *Engine) Timeout() time.Duration {
	return e.cfg.Timeout
}

// Loaded returns the currently loaded variant.
func (e *Engine) Loaded() Variant {
	return e.loaded
}

// Attach resets the target into debug mode and leaves the command variant
// loaded.
func (e *Engine) Attach() error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if err := e.ensure(VariantAttach); err != nil {
		return err
	}
	if _, err := e.receive(e.clock.Now()); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return e.ensure(VariantCommand)
}

// Exchange sends one frame (control word plus payload words) and waits for
// its response word.
func (e *Engine) Exchange(frame []uint32) (uint32, error) {
	if len(frame) == 0 {
		return 0, errors.New("link: empty frame")
	}
	if err := e.acquire(); err != nil {
		return 0, err
	}
	defer e.release()

	if err := e.ensure(VariantCommand); err != nil {
		return 0, err
	}

	start := e.clock.Now()
	for _, w := range frame {
		for !e.driver.Put(w) {
			if e.expired(start) {
				e.abort("transmit")
				return 0, ErrTimeout
			}
			e.clock.Sleep(e.cfg.PollInterval)
		}
	}
	return e.receive(start)
}

// Close tears the loaded variant down and releases the driver.
func (e *Engine) Close() error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if e.loaded != VariantNone {
		e.driver.Unload()
		e.loaded = VariantNone
	}
	e.driver.Unclaim()
	e.closed = true
	return nil
}

func (e *Engine) receive(start time.Time) (uint32, error) {
	for !e.driver.Ready() {
		if e.expired(start) {
			e.abort("receive")
			return 0, ErrTimeout
		}
		e.clock.Sleep(e.cfg.PollInterval)
	}
	return e.driver.Get(), nil
}

func (e *Engine) expired(start time.Time) bool {
	return e.clock.Now().Sub(start) >= e.cfg.Timeout
}

func (e *Engine) abort(phase string) {
	hal.DebugAsync("[LINK] timeout during " + phase + ", sequencer reset")
	e.driver.Abort()
}

// ensure switches variants. The old program is always fully unloaded
// before the new one is loaded.
func (e *Engine) ensure(v Variant) error {
	if e.loaded == v {
		return nil
	}
	if e.loaded != VariantNone {
		e.driver.Unload()
		e.loaded = VariantNone
	}
	if err := e.driver.Load(v); err != nil {
		return fmt.Errorf("link: load %s variant: %w", v, err)
	}
	e.loaded = v
	return nil
}

func (e *Engine) acquire() error {
	if !atomic.CompareAndSwapUint32(&e.inUse, 0, 1) {
		return ErrBusy
	}
	if e.closed {
		atomic.StoreUint32(&e.inUse, 0)
		return ErrClosed
	}
	return nil
}

func (e *Engine) release() {
	atomic.StoreUint32(&e.inUse, 0)
}
