package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new StepClock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a deterministic time source for tests.
//
// Every call to Now advances the clock by a fixed step, so two runs of the
// same scenario stamp identical block timestamps and hashes.
//
// Thread-safety: all methods are safe for concurrent use.
type StepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepClock creates a clock starting at Epoch that advances by step.
// A zero step defaults to one millisecond.
func NewStepClock(step time.Duration) *StepClock {
	if step == 0 {
		step = time.Millisecond
	}
	return &StepClock{next: Epoch, step: step}
}

// Now returns the current instant and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next call to Now will return.
func (c *StepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to Epoch.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
