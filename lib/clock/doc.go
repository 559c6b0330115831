// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Everything in Palisade that watches time, from the gate's watchdog
// tick to the sensor heartbeat cadence, accepts a Clock instead of
// calling the time package directly. Production code injects Real();
// tests inject Fake(initial) and drive it with Advance so that
// watchdog and deadline behavior is tested to the exact second
// without a single sleeping test.
//
// # FakeClock synchronization
//
// A goroutine calling After, NewTicker, or Sleep on a FakeClock
// registers a pending waiter. Tests call WaitForTimers(n) to block
// until n waiters are registered before advancing, which removes the
// race between a goroutine scheduling its timer and the test firing
// it:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go poller.Run(ctx) // registers a ticker
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second) // one heartbeat period, deterministically
package clock
