// Package engine hosts the matching engine: the registry of per-instrument
// order books, the trading session schedule and the auction timing
// configuration.
package engine

import "time"

// Clock abstracts wall time so the session schedule can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }
