// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time moves only
// when Advance is called; every pending After, NewTicker, and Sleep
// waiter whose deadline falls inside the advance fires, in deadline
// order.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is the deterministic Clock used by tests. Watchdog gaps,
// challenge deadlines, and heartbeat cadence are all exercised by
// advancing a FakeClock past the instant under test.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*waiter
	changed *sync.Cond
}

// waiter is one registered wait: a one-shot (After, Sleep) or a
// periodic tick (every > 0).
type waiter struct {
	fireAt  time.Time
	ch      chan time.Time
	every   time.Duration
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has advanced
// past d from now. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &waiter{fireAt: c.now.Add(d), ch: ch})
	c.changed.Broadcast()
	return ch
}

// NewTicker registers a periodic waiter. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{fireAt: c.now.Add(d), ch: ch, every: d}
	c.pending = append(c.pending, w)
	c.changed.Broadcast()

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past d.
// Returns immediately if d <= 0.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, earliest first. Tickers fire
// once per elapsed interval; ticks that would overflow the channel
// buffer are dropped, matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	// Fire one waiter at a time, always the earliest expired, so
	// interleaved one-shots and ticker repeats come out in deadline
	// order.
	for {
		w := c.takeEarliest(target)
		if w == nil {
			return
		}
		select {
		case w.ch <- w.fireAt:
		default:
		}
		if w.every > 0 {
			c.reschedule(w)
		}
	}
}

// takeEarliest removes and returns the expired waiter with the
// earliest deadline, or nil when nothing is due at target.
func (c *FakeClock) takeEarliest(target time.Time) *waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	earliest := -1
	for i, w := range c.pending {
		if w.stopped || w.fireAt.After(target) {
			continue
		}
		if earliest < 0 || w.fireAt.Before(c.pending[earliest].fireAt) {
			earliest = i
		}
	}
	if earliest < 0 {
		// Drop stopped waiters while the lock is held.
		kept := c.pending[:0]
		for _, w := range c.pending {
			if !w.stopped {
				kept = append(kept, w)
			}
		}
		c.pending = kept
		return nil
	}

	w := c.pending[earliest]
	c.pending = append(c.pending[:earliest], c.pending[earliest+1:]...)
	return w
}

// reschedule re-registers a ticker waiter for its next interval.
func (c *FakeClock) reschedule(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.stopped {
		return
	}
	w.fireAt = w.fireAt.Add(w.every)
	c.pending = append(c.pending, w)
}

// WaitForTimers blocks until at least n waiters are registered and
// not yet fired. Tests use it to let a goroutine schedule its ticker
// or sleep before the test advances the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	n := 0
	for _, w := range c.pending {
		if !w.stopped {
			n++
		}
	}
	return n
}
