package reaction

import "sync/atomic"

// Sequencer stamps dispatches with strictly increasing logical sequence
// numbers. testutil.DeterministicClock satisfies it for tests.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for dispatch ordering.
//
// Dispatches are stamped with seq numbers, never wall-clock time, so the
// order of toggles is explicit and replayable.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
