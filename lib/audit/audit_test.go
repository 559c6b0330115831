// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/palisade-systems/palisade/lib/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordAndRecent(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.Fake(base)
	path := filepath.Join(t.TempDir(), "audit.db")

	journal, err := Open(path, fake, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer journal.Close()

	ctx := context.Background()
	if err := journal.Record(ctx, Entry{Event: EventStartup, ToState: "disarmed"}); err != nil {
		t.Fatalf("Record(startup): %v", err)
	}
	fake.Advance(time.Second)
	if err := journal.Record(ctx, Entry{
		Event:     EventTransition,
		FromState: "disarmed",
		ToState:   "armed",
		Reason:    "arm command",
	}); err != nil {
		t.Fatalf("Record(transition): %v", err)
	}
	fake.Advance(time.Second)
	if err := journal.Record(ctx, Entry{
		Event:     EventTransition,
		FromState: "armed",
		ToState:   "challenge_active",
		Reason:    "tamper:hall",
		Detail:    "case opened",
	}); err != nil {
		t.Fatalf("Record(transition): %v", err)
	}

	entries, err := journal.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(entries))
	}

	// Newest first.
	newest := entries[0]
	if newest.Event != EventTransition {
		t.Errorf("newest Event = %q, want %q", newest.Event, EventTransition)
	}
	if newest.FromState != "armed" || newest.ToState != "challenge_active" {
		t.Errorf("newest transition = %q → %q, want armed → challenge_active", newest.FromState, newest.ToState)
	}
	if newest.Reason != "tamper:hall" {
		t.Errorf("newest Reason = %q, want tamper:hall", newest.Reason)
	}
	if newest.Detail != "case opened" {
		t.Errorf("newest Detail = %q, want case opened", newest.Detail)
	}
	if want := base.Add(2 * time.Second); !newest.RecordedAt.Equal(want) {
		t.Errorf("newest RecordedAt = %v, want %v", newest.RecordedAt, want)
	}

	oldest := entries[2]
	if oldest.Event != EventStartup {
		t.Errorf("oldest Event = %q, want %q", oldest.Event, EventStartup)
	}
	if newest.ID <= oldest.ID {
		t.Errorf("IDs not ascending: newest %d, oldest %d", newest.ID, oldest.ID)
	}
}

func TestRecentLimit(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "audit.db")

	journal, err := Open(path, fake, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer journal.Close()

	ctx := context.Background()
	reasons := []string{"first", "second", "third", "fourth", "fifth"}
	for _, reason := range reasons {
		if err := journal.Record(ctx, Entry{Event: EventChallengeAttempt, Reason: reason}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		fake.Advance(time.Second)
	}

	entries, err := journal.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(entries))
	}
	if entries[0].Reason != "fifth" || entries[1].Reason != "fourth" {
		t.Errorf("Recent = [%q, %q], want newest two", entries[0].Reason, entries[1].Reason)
	}
}

func TestRecentEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	journal, err := Open(path, clock.Fake(time.Now()), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer journal.Close()

	entries, err := journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Recent on empty journal returned %d entries", len(entries))
	}
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	journal, err := Open(path, fake, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := journal.Record(ctx, Entry{Event: EventMarkerCreated, Reason: "attempts exhausted"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, fake, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Recent after reopen returned %d entries, want 1", len(entries))
	}
	if entries[0].Event != EventMarkerCreated {
		t.Errorf("Event = %q, want %q", entries[0].Event, EventMarkerCreated)
	}
}

func TestOpenUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "audit.db")

	journal, err := Open(path, clock.Fake(time.Now()), testLogger())
	if err == nil {
		// Pool connections open lazily; the failure may surface on
		// first use instead.
		err = journal.Record(context.Background(), Entry{Event: EventStartup})
		journal.Close()
	}
	if err == nil {
		t.Error("journal in a missing directory worked, want error")
	}
}
