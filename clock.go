package brood

import "time"

// Clock abstracts the scheduler's view of time so tests can run
// deadline-heavy code deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Until converts an absolute deadline into a poll timeout. It is
	// only called when the control thread is about to block with no
	// runnable tasks.
	Until(at time.Time) time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Until(at time.Time) time.Duration {
	d := time.Until(at)
	if d < 0 {
		return 0
	}
	return d
}

// MockClock is a manually-driven Clock for deterministic tests. Time
// only moves when Advance is called or, with AutoJump set, when the
// scheduler is about to block waiting for the next deadline, in which
// case the clock jumps straight to it.
//
// MockClock must only be used from the control thread (task code or
// entry-queue callbacks).
type MockClock struct {
	now      time.Time
	AutoJump bool
}

// NewMockClock returns a MockClock starting at the given time with
// AutoJump enabled.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, AutoJump: true}
}

// Now returns the mock's current time.
func (c *MockClock) Now() time.Time { return c.now }

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// Until jumps the clock to at when AutoJump is set, making the
// pending deadline fire on the next scheduler iteration without any
// real-time delay.
func (c *MockClock) Until(at time.Time) time.Duration {
	if !at.After(c.now) {
		return 0
	}
	if c.AutoJump {
		c.now = at
		return 0
	}
	return at.Sub(c.now)
}
