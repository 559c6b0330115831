// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package challenge

import "time"

// Session tracks one active challenge window. The gate creates a
// session on entering the challenge state and destroys it on any
// exit; the policy consequences of expiry and exhaustion live in the
// gate, not here.
type Session struct {
	// StartedAt is when the challenge opened.
	StartedAt time.Time

	// Deadline is StartedAt plus the configured challenge deadline.
	// The window is [StartedAt, Deadline): a submission at exactly
	// the deadline is too late.
	Deadline time.Time

	// AttemptsUsed counts failed password submissions.
	AttemptsUsed int

	// MaxAttempts is the configured attempt limit.
	MaxAttempts int
}

// NewSession opens a challenge window at now.
func NewSession(now time.Time, deadline time.Duration, maxAttempts int) *Session {
	return &Session{
		StartedAt:   now,
		Deadline:    now.Add(deadline),
		MaxAttempts: maxAttempts,
	}
}

// RecordFailure counts one failed submission.
func (s *Session) RecordFailure() {
	s.AttemptsUsed++
}

// Remaining reports how many submissions are left.
func (s *Session) Remaining() int {
	remaining := s.MaxAttempts - s.AttemptsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Exhausted reports whether every attempt has been used.
func (s *Session) Exhausted() bool {
	return s.AttemptsUsed >= s.MaxAttempts
}

// Expired reports whether the deadline has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Deadline)
}
