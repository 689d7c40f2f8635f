// Package ticker provides a mockable alternative to time.Ticker so peer
// keep-alive and gossip batching intervals (spec §5: ping every 30s, gossip
// broadcast batching) can be driven deterministically in tests. The
// teacher's lightningnetwork/lnd/ticker submodule was retrieved empty, so
// this is authored fresh; the shape mirrors time.Ticker (a Chan() of
// tick times plus Start/Stop) since that is the idiom peer.go's
// `pingInterval`-driven loop expects.
package ticker

import "time"

// Ticker is the interface satisfied by both the real, wall-clock-driven
// ticker and a test Force ticker.
type Ticker interface {
	// Resume (re)starts the ticker.
	Resume()

	// Pause stops the ticker without releasing its resources.
	Pause()

	// Stop releases the ticker's resources permanently.
	Stop()

	// Chan returns the channel on which ticks are delivered.
	Chan() <-chan time.Time
}

// wallClockTicker wraps time.Ticker.
type wallClockTicker struct {
	interval time.Duration
	ticker   *time.Ticker
}

// New returns a Ticker that fires every interval using the real clock.
func New(interval time.Duration) Ticker {
	return &wallClockTicker{interval: interval}
}

func (w *wallClockTicker) Resume() {
	if w.ticker == nil {
		w.ticker = time.NewTicker(w.interval)
	}
}

func (w *wallClockTicker) Pause() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

func (w *wallClockTicker) Stop() {
	w.Pause()
}

func (w *wallClockTicker) Chan() <-chan time.Time {
	if w.ticker == nil {
		return nil
	}
	return w.ticker.C
}

// Force is a test Ticker whose ticks are driven explicitly by the test via
// the Force channel rather than by wall-clock time.
type Force struct {
	Force chan time.Time
}

// NewForce returns a test ticker. Send on the returned Force's Force
// channel to simulate a tick.
func NewForce(_ time.Duration) *Force {
	return &Force{Force: make(chan time.Time)}
}

func (f *Force) Resume()                {}
func (f *Force) Pause()                 {}
func (f *Force) Stop()                  {}
func (f *Force) Chan() <-chan time.Time { return f.Force }
