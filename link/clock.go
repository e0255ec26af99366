package link

import (
	"sync"
	"time"
)

// Clock is the time source used for every bounded wait. Tests inject a
// FakeClock so that timeouts fire without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock uses the runtime clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// FakeClock only moves when slept on, plus Step on every Now call.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	Step   time.Duration
	Sleeps int
}

// NewFakeClock returns a clock starting at an arbitrary fixed instant.
func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{now: time.Unix(1700000000, 0), Step: step}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.Step)
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sleeps++
	c.now = c.now.Add(d)
}

// Elapsed returns how far the clock moved since start.
func (c *FakeClock) Elapsed(start time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(start)
}
