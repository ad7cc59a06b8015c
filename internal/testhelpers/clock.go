package testhelpers

import (
	"sync"
	"time"
)

// Clock is a manually advanced time source for tests. Pass Clock.Now wherever a func() time.Time is expected.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock frozen at an arbitrary fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)} //nolint:mnd // arbitrary instant
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
