package sim

import "sync/atomic"

// Clock is the global tick counter: the single unit of time every
// component advances by in lock step.
//
// All trace events are stamped with a tick from this clock. Wall-clock
// time never appears anywhere in the model; replaying the same stimuli
// yields the same ticks and therefore the same trace.
//
// Thread-safety: Clock is safe for concurrent reads, though the core's
// single-writer design means only one goroutine advances it.
type Clock struct {
	tick atomic.Uint64
}

// NewClock creates a clock at tick 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resumed at a specific tick.
// Used by replay to continue from a stored run.
func NewClockAt(start uint64) *Clock {
	c := &Clock{}
	c.tick.Store(start)
	return c
}

// Advance moves to the next tick and returns the tick that just
// completed.
func (c *Clock) Advance() uint64 {
	return c.tick.Add(1) - 1
}

// Current returns the current tick without advancing.
func (c *Clock) Current() uint64 {
	return c.tick.Load()
}
