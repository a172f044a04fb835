package engine

import (
	"sync/atomic"
	"time"
)

// Clock stamps import records and entity writes.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// StepClock is a deterministic clock: the n-th call to Now returns
// start + n*step. Used by tests and golden output.
//
// Thread-safety: StepClock is safe for concurrent use (atomic operations).
type StepClock struct {
	start time.Time
	step  time.Duration
	seq   atomic.Int64
}

// NewStepClock creates a clock whose first reading is start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start.UTC(), step: step}
}

// Now returns the next reading and advances the clock.
func (c *StepClock) Now() time.Time {
	n := c.seq.Add(1) - 1
	return c.start.Add(time.Duration(n) * c.step)
}

// Readings returns how many times Now has been called.
func (c *StepClock) Readings() int64 {
	return c.seq.Load()
}
