// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface used throughout Palisade. It is
// deliberately small: the daemons need the current time, one-shot
// waits, periodic ticks, and bounded pauses, and nothing else.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on its C channel
	// every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel has capacity 1; if
// the consumer falls behind, ticks are dropped rather than queued,
// matching time.Ticker. Call Stop when done.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. No ticks are delivered after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }
