// Package clock abstracts wall-clock time so timer-driven code can be tested
// with a hand-advanced clock.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// New returns a Clock backed by time.Now.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Managed is a Clock that only moves when told to. Intended for tests and
// for the headless simulator.
type Managed struct {
	mu     sync.RWMutex
	start  time.Time
	offset time.Duration
}

// NewManaged returns a Managed clock frozen at start.
func NewManaged(start time.Time) *Managed {
	return &Managed{start: start}
}

// Now returns the managed time.
func (c *Managed) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.start.Add(c.offset)
}

// Advance moves the clock forward by d and returns the new time. Negative
// durations are ignored; time never goes backwards.
func (c *Managed) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.offset += d
	}
	return c.start.Add(c.offset)
}
