package timeutil

import (
	"sync"
	"time"
)

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// FromUnix converts provider epoch seconds to UTC. Zero maps to the zero time.
func FromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// FromUnixPtr is FromUnix for optional timestamps.
func FromUnixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// Clock abstracts the wall clock so services can be tested deterministically
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real UTC time
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time { return Now() }

// FixedClock is a settable clock for tests
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock returns a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t.UTC()}
}

// Now returns the frozen time
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
