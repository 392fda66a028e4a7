// Package timeutil supplies the time source behind frame timing: processing
// durations and the measured frame rate.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used by the pipeline.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// MockClock only moves when told to. It is safe for concurrent use.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock returns a MockClock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// AdvanceFrames moves the clock forward by n frame periods at fps frames
// per second. Non-positive fps leaves the clock unchanged.
func (c *MockClock) AdvanceFrames(n int, fps float64) {
	if fps <= 0 {
		return
	}
	c.Advance(time.Duration(float64(n) * float64(time.Second) / fps))
}
