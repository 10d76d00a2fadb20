// Package clock abstracts time so the reconciliation loops, retry backoffs
// and grace periods can be driven deterministically from tests.
package clock

import "time"

// Clock is the time source used by every timed wait in the facade.
type Clock interface {
	Now() time.Time
	// After behaves like time.After; d <= 0 fires immediately.
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers ticks on C until Stop is called.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// Sleep waits for d on c. It reports false when done closes first.
func Sleep(done <-chan struct{}, c Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-c.After(d):
		return true
	case <-done:
		return false
	}
}
