// Package playclock measures how long a story has actually been played, leaving out paused intervals.
package playclock

import (
	"sync"
	"time"
)

type State int

const (
	Unstarted State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Accumulator tracks active play time. The zero value is not usable, create one with New.
type Accumulator struct {
	now func() time.Time

	mu          sync.Mutex
	startedAt   time.Time
	pausedTotal time.Duration
	pausedAt    time.Time
	state       State
}

type Option func(*Accumulator)

// WithNow replaces the time source, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Accumulator) {
		a.now = now
	}
}

// New returns an unstarted Accumulator.
func New(opts ...Option) *Accumulator {
	a := &Accumulator{now: time.Now} //nolint:exhaustruct // zero values are the unstarted state
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins measuring from now. Any previously measured time is discarded, even while running.
func (a *Accumulator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startedAt = a.now()
	a.pausedTotal = 0
	a.pausedAt = time.Time{}
	a.state = Running
}

// Pause stops the clock. It does nothing unless the clock is running.
func (a *Accumulator) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Running {
		return
	}
	a.pausedAt = a.now()
	a.state = Paused
}

// Resume continues a paused clock. It does nothing unless the clock is paused.
func (a *Accumulator) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Paused {
		return
	}
	a.pausedTotal += a.now().Sub(a.pausedAt)
	a.pausedAt = time.Time{}
	a.state = Running
}

// Reset returns the clock to the unstarted state.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.startedAt = time.Time{}
	a.pausedTotal = 0
	a.pausedAt = time.Time{}
	a.state = Unstarted
}

// ElapsedSeconds returns the whole seconds played so far, truncated. Time spent paused never counts, including
// the pause in progress.
func (a *Accumulator) ElapsedSeconds() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Unstarted {
		return 0
	}
	now := a.now()
	active := now.Sub(a.startedAt) - a.pausedTotal
	if a.state == Paused {
		active -= now.Sub(a.pausedAt)
	}
	if active < 0 {
		return 0
	}
	// Truncate on milliseconds first so sub-millisecond clock noise never rounds a second up.
	return active.Milliseconds() / int64(time.Second/time.Millisecond)
}

func (a *Accumulator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}
