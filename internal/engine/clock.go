package engine

import "time"

// MonotonicClock reports seconds since construction from the monotonic
// clock.
type MonotonicClock struct {
	start time.Time
}

// NewClock creates a clock anchored at now.
func NewClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Now returns elapsed seconds.
func (c *MonotonicClock) Now() float64 {
	return time.Since(c.start).Seconds()
}
