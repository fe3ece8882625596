package clock

import "time"

// Clock abstracts time so arrival stamps and reconnect delays can be driven
// by a virtual clock in tests. Nothing in Robomon calls time.Now directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time after duration d.
	After(d time.Duration) <-chan time.Time
}

// Millis returns the clock's current time as epoch milliseconds, the unit
// log entries are stamped in.
func Millis(c Clock) int64 {
	return c.Now().UnixMilli()
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
