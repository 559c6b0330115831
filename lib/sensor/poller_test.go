// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/ipc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSensor is a sensor whose reading the test can change while the
// poller runs.
type fakeSensor struct {
	name string

	mu       sync.Mutex
	tampered bool
	err      error
}

func (s *fakeSensor) Name() string { return s.name }

func (s *fakeSensor) Read() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.tampered, nil
}

func (s *fakeSensor) set(tampered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tampered = tampered
}

func (s *fakeSensor) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// channelWriter delivers every written envelope to a channel so the
// test can consume them in emission order.
type channelWriter struct {
	envelopes chan ipc.Envelope
}

func newChannelWriter() *channelWriter {
	return &channelWriter{envelopes: make(chan ipc.Envelope, 16)}
}

func (w *channelWriter) Write(envelope ipc.Envelope) error {
	w.envelopes <- envelope
	return nil
}

func receive(t *testing.T, envelopes <-chan ipc.Envelope) ipc.Envelope {
	t.Helper()
	select {
	case envelope := <-envelopes:
		return envelope
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return ipc.Envelope{}
	}
}

func TestPollerHeartbeatEveryInterval(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.Fake(base)
	hall := &fakeSensor{name: "hall"}
	writer := newChannelWriter()
	poller := NewPoller([]Sensor{hall}, writer, fake, 5*time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- poller.Run(ctx)
	}()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	first := receive(t, writer.envelopes)
	if first.Kind != ipc.KindHeartbeat {
		t.Fatalf("first envelope Kind = %q, want heartbeat", first.Kind)
	}
	if first.Heartbeat.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", first.Heartbeat.Sequence)
	}
	if want := base.Add(5 * time.Second); !first.Heartbeat.EmittedAt.Equal(want) {
		t.Errorf("EmittedAt = %v, want %v", first.Heartbeat.EmittedAt, want)
	}

	fake.Advance(5 * time.Second)
	second := receive(t, writer.envelopes)
	if second.Heartbeat == nil || second.Heartbeat.Sequence != 2 {
		t.Errorf("second envelope = %+v, want heartbeat sequence 2", second)
	}

	cancel()
	if err := <-result; err != nil {
		t.Errorf("Run after cancel: %v", err)
	}
}

func TestPollerTamperEdgeDetection(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := clock.Fake(base)
	hall := &fakeSensor{name: "hall"}
	light := &fakeSensor{name: "light"}
	writer := newChannelWriter()
	poller := NewPoller([]Sensor{hall, light}, writer, fake, 5*time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- poller.Run(ctx)
	}()
	fake.WaitForTimers(1)

	// Quiet cycle: heartbeat only.
	fake.Advance(5 * time.Second)
	if got := receive(t, writer.envelopes); got.Kind != ipc.KindHeartbeat {
		t.Fatalf("quiet cycle emitted %q first, want heartbeat", got.Kind)
	}

	// Hall trips: tamper event, then the cycle's heartbeat.
	hall.set(true)
	fake.Advance(5 * time.Second)
	tamper := receive(t, writer.envelopes)
	if tamper.Kind != ipc.KindTamper {
		t.Fatalf("tripped cycle emitted %q first, want tamper", tamper.Kind)
	}
	if tamper.Tamper.Source != "hall" {
		t.Errorf("Source = %q, want hall", tamper.Tamper.Source)
	}
	if want := base.Add(10 * time.Second); !tamper.Tamper.DetectedAt.Equal(want) {
		t.Errorf("DetectedAt = %v, want %v", tamper.Tamper.DetectedAt, want)
	}
	if got := receive(t, writer.envelopes); got.Kind != ipc.KindHeartbeat {
		t.Fatalf("tripped cycle second envelope = %q, want heartbeat", got.Kind)
	}

	// Still tripped: no repeat event, heartbeat only.
	fake.Advance(5 * time.Second)
	if got := receive(t, writer.envelopes); got.Kind != ipc.KindHeartbeat {
		t.Fatalf("held cycle emitted %q, want heartbeat only", got.Kind)
	}

	// Recovered: heartbeat only, edge re-armed.
	hall.set(false)
	fake.Advance(5 * time.Second)
	if got := receive(t, writer.envelopes); got.Kind != ipc.KindHeartbeat {
		t.Fatalf("recovered cycle emitted %q, want heartbeat only", got.Kind)
	}

	// Tripped again: a fresh event fires.
	hall.set(true)
	fake.Advance(5 * time.Second)
	again := receive(t, writer.envelopes)
	if again.Kind != ipc.KindTamper {
		t.Fatalf("re-tripped cycle emitted %q first, want tamper", again.Kind)
	}
	receive(t, writer.envelopes) // the cycle's heartbeat

	cancel()
	if err := <-result; err != nil {
		t.Errorf("Run after cancel: %v", err)
	}
}

func TestPollerReadErrorReadsAsTamper(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	light := &fakeSensor{name: "light"}
	writer := newChannelWriter()
	poller := NewPoller([]Sensor{light}, writer, fake, 5*time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- poller.Run(ctx)
	}()
	fake.WaitForTimers(1)

	light.fail(errors.New("sensor unplugged"))
	fake.Advance(5 * time.Second)

	tamper := receive(t, writer.envelopes)
	if tamper.Kind != ipc.KindTamper {
		t.Fatalf("failed-read cycle emitted %q first, want tamper", tamper.Kind)
	}
	if tamper.Tamper.Source != "light" {
		t.Errorf("Source = %q, want light", tamper.Tamper.Source)
	}

	cancel()
	<-result
}

func TestPollerInitialReadFailureFatal(t *testing.T) {
	hall := &fakeSensor{name: "hall"}
	hall.fail(errors.New("no such file"))
	poller := NewPoller([]Sensor{hall}, newChannelWriter(), clock.Fake(time.Now()), 5*time.Second, testLogger())

	err := poller.Run(context.Background())
	if err == nil {
		t.Fatal("Run with an unreadable sensor succeeded, want error")
	}
	if !strings.Contains(err.Error(), "hall") {
		t.Errorf("error = %q, want mention of the failing sensor", err)
	}
}

// failingWriter refuses every envelope.
type failingWriter struct{}

func (failingWriter) Write(ipc.Envelope) error {
	return errors.New("pipe gone")
}

func TestPollerDeliveryFailureFatal(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hall := &fakeSensor{name: "hall"}
	poller := NewPoller([]Sensor{hall}, failingWriter{}, fake, 5*time.Second, testLogger())

	result := make(chan error, 1)
	go func() {
		result <- poller.Run(context.Background())
	}()
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	select {
	case err := <-result:
		if err == nil {
			t.Fatal("Run with a failing writer returned nil, want error")
		}
		if !strings.Contains(err.Error(), "delivering") {
			t.Errorf("error = %q, want delivery failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after delivery failure")
	}
}
