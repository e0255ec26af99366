package transfer

import (
	"errors"
	"fmt"
	"time"

	"ccflash/hal"
	"ccflash/link"
	"ccflash/status"
)

// ErrGaveUp wraps the last error once every attempt failed.
var ErrGaveUp = errors.New("transfer: giving up")

// Supervisor restarts a failed operation from a fresh session after a
// delay, the way the stand-alone flasher reloads itself.
type Supervisor struct {
	Clock      link.Clock
	RetryDelay time.Duration
	Attempts   int
	Status     status.Indicator

	// Open starts a new session. The previous one is always closed first.
	Open func() (Session, error)
}

// Session is a Target that can be released.
type Session interface {
	Target
	Close() error
}

// Run calls op with a fresh session until it succeeds or Attempts runs
// out.
func (s *Supervisor) Run(op func(Target) error) error {
	ind := s.Status
	if ind == nil {
		ind = status.Nop{}
	}
	clock := s.Clock
	if clock == nil {
		clock = link.SystemClock{}
	}
	attempts := s.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			ind.Set(status.Error)
			clock.Sleep(s.RetryDelay)
		}
		err = s.once(op)
		if err == nil {
			return nil
		}
		hal.DebugAsync("[SUPERVISOR] attempt failed: " + err.Error())
	}
	ind.Set(status.Error)
	return fmt.Errorf("%w: %w", ErrGaveUp, err)
}

func (s *Supervisor) once(op func(Target) error) error {
	sess, err := s.Open()
	if err != nil {
		return err
	}
	defer sess.Close()
	return op(sess)
}

// ErrHoldOff is returned by Gate.Acquire while it waits out RetryDelay.
var ErrHoldOff = errors.New("transfer: holding off after failed attempts")

// Gate opens sessions for a server that cannot block. Once Attempts opens
// in a row have failed, Acquire refuses for RetryDelay and then lets the
// next attempt through. A successful open clears the count.
type Gate struct {
	Clock      link.Clock
	RetryDelay time.Duration
	Attempts   int
	Status     status.Indicator

	Open func() (Session, error)

	failures int
	lastErr  error
	heldAt   time.Time
}

// Acquire returns a fresh session or the reason none could be opened.
func (g *Gate) Acquire() (Session, error) {
	clock := g.Clock
	if clock == nil {
		clock = link.SystemClock{}
	}
	attempts := g.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	if g.failures >= attempts {
		if clock.Now().Sub(g.heldAt) < g.RetryDelay {
			return nil, fmt.Errorf("%w: %w", ErrHoldOff, g.lastErr)
		}
		g.failures = 0
	}

	sess, err := g.Open()
	if err != nil {
		g.failures++
		g.lastErr = err
		if g.failures >= attempts {
			g.heldAt = clock.Now()
		}
		if g.Status != nil {
			g.Status.Set(status.Error)
		}
		hal.DebugAsync("[GATE] open failed: " + err.Error())
		return nil, err
	}
	g.failures = 0
	g.lastErr = nil
	return sess, nil
}
