// Package clock provides an injectable time source so components never read
// system time inline and tests can run against virtual time.
package clock

import "time"

// Clock is the time source used by all authguard components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// systemClock reads the real wall clock.
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System returns a Clock backed by time.Now.
func System() Clock {
	return systemClock{}
}
