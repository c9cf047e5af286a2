// Package timeutil abstracts wall-clock reads and tickers so that
// time-driven loops (engine runtime, feed staleness, stream cadence)
// can be advanced deterministically in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time surface the pipeline consumes. RealClock defers to
// the time package; MockClock is advanced manually.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration

	// After delivers the clock's time once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// NewTicker delivers the clock's time every d until stopped.
	NewTicker(d time.Duration) Ticker
}

// Ticker is a re-armable periodic tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
	Reset(d time.Duration)
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return sysTicker{time.NewTicker(d)}
}

type sysTicker struct {
	t *time.Ticker
}

func (s sysTicker) C() <-chan time.Time   { return s.t.C }
func (s sysTicker) Stop()                 { s.t.Stop() }
func (s sysTicker) Reset(d time.Duration) { s.t.Reset(d) }

// MockClock is a hand-cranked Clock. Time stands still between calls
// to Advance/Set; advancing fires every waiter whose deadline has
// passed, in registration order.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

// waiter is a pending delivery: one-shot when period is zero (After),
// re-arming otherwise (ticker).
type waiter struct {
	ch      chan time.Time
	due     time.Time
	period  time.Duration
	stopped bool
}

// NewMockClock returns a MockClock frozen at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps the clock to t without firing waiters. Use Advance when
// pending tickers/After channels should observe the passage of time.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time. A periodic waiter fires at most
// once per Advance; its channel holds one tick, matching time.Ticker's
// drop-on-slow-receiver behavior.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	kept := c.waiters[:0]
	fired := []*waiter{}
	for _, w := range c.waiters {
		if w.stopped {
			// Kept in the list so a later Reset can revive it.
			kept = append(kept, w)
			continue
		}
		if !w.due.After(now) {
			fired = append(fired, w)
			if w.period > 0 {
				w.due = now.Add(w.period)
				kept = append(kept, w)
			}
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
	c.mu.Unlock()

	for _, w := range fired {
		select {
		case w.ch <- now:
		default:
		}
	}
}

func (c *MockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{ch: make(chan time.Time, 1), due: c.now.Add(d)}
	c.waiters = append(c.waiters, w)
	return w.ch
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{ch: make(chan time.Time, 1), due: c.now.Add(d), period: d}
	c.waiters = append(c.waiters, w)
	return &mockTicker{clock: c, w: w}
}

type mockTicker struct {
	clock *MockClock
	w     *waiter
}

func (t *mockTicker) C() <-chan time.Time { return t.w.ch }

func (t *mockTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = true
}

func (t *mockTicker) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = false
	t.w.period = d
	t.w.due = t.clock.now.Add(d)
}
