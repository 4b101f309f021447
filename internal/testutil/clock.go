package testutil

import (
	"sync"
	"time"
)

// StepClock is a wall clock for tests. Each Now call returns the current
// instant and then advances it by Step.
//
// Thread-safety: All methods are safe for concurrent use.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	Step  time.Duration
}

// NewStepClock returns a clock starting at start that advances by step.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, now: start, Step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Peek returns the current instant without advancing.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
