// Package clock abstracts time.Now/time.After so that circuit-breaker
// cool-downs and MPP timeouts (spec §5) can be tested without real delays.
// The teacher's lightningnetwork/lnd/clock submodule was retrieved empty;
// this is authored fresh in the standard "Clock interface + TestClock"
// idiom used across the btcsuite/lnd ecosystem.
package clock

import "time"

// Clock is the subset of the time package the rest of the codebase depends
// on through an interface, so tests can substitute a deterministic clock.
type Clock interface {
	Now() time.Time
	TickAfter(duration time.Duration) <-chan time.Time
}

// DefaultClock is the real, wall-clock backed Clock.
type DefaultClock struct{}

// NewDefaultClock returns the real clock.
func NewDefaultClock() *DefaultClock {
	return &DefaultClock{}
}

func (DefaultClock) Now() time.Time {
	return time.Now()
}

func (DefaultClock) TickAfter(duration time.Duration) <-chan time.Time {
	return time.After(duration)
}
