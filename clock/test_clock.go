package clock

import (
	"sync"
	"time"
)

// TestClock is a manually-advanced Clock for deterministic tests.
type TestClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*testWaiter
}

type testWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewTestClock returns a TestClock starting at now.
func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TickAfter returns a channel that fires once SetTime advances the clock
// past duration from the current time.
func (c *TestClock) TickAfter(duration time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(duration)
	if !deadline.After(c.now) {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, &testWaiter{deadline: deadline, ch: ch})
	return ch
}

// SetTime advances the clock to now, firing any waiters whose deadline has
// passed.
func (c *TestClock) SetTime(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(now) {
			w.ch <- now
			continue
		}
		remaining = append(remaining, w)
	}
	c.waiters = remaining
}
