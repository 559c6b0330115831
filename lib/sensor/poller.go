// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/ipc"
)

// EnvelopeWriter is the destination for poller output. *ipc.PipeWriter
// implements it; tests substitute an in-memory recorder.
type EnvelopeWriter interface {
	Write(envelope ipc.Envelope) error
}

// Poller samples the sensors at the heartbeat interval, emitting
// tamper events on transition edges and one heartbeat per cycle.
type Poller struct {
	sensors  []Sensor
	writer   EnvelopeWriter
	clk      clock.Clock
	interval time.Duration
	logger   *slog.Logger

	// tampered holds the previous reading per sensor, for edge
	// detection. A stuck-open case produces one event, and a sensor
	// that recovers re-arms its edge.
	tampered map[string]bool

	sequence uint64
}

// NewPoller builds a poller over the given sensors.
func NewPoller(sensors []Sensor, writer EnvelopeWriter, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		sensors:  sensors,
		writer:   writer,
		clk:      clk,
		interval: interval,
		logger:   logger,
		tampered: make(map[string]bool),
	}
}

// Run validates that every sensor is readable, then samples on each
// tick until the context is cancelled. An unreadable sensor at
// startup is fatal: it means misconfiguration, and a daemon that
// starts blind would report nothing but healthy heartbeats. A
// delivery failure after the bounded pipe retries is also fatal; the
// daemon dies and its heartbeat silence speaks for it.
func (p *Poller) Run(ctx context.Context) error {
	for _, s := range p.sensors {
		if _, err := s.Read(); err != nil {
			return fmt.Errorf("initial read of sensor %s: %w", s.Name(), err)
		}
	}

	ticker := p.clk.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.sample(); err != nil {
				return err
			}
		}
	}
}

// sample reads every sensor, emits a tamper event for each transition
// into the tampered state, and closes the cycle with a heartbeat.
func (p *Poller) sample() error {
	now := p.clk.Now()

	for _, s := range p.sensors {
		tampered, err := s.Read()
		if err != nil {
			// A sensor that stops answering may be a sensor that was
			// ripped out. The failure reads as tamper.
			p.logger.Warn("sensor read failed", "sensor", s.Name(), "error", err)
			tampered = true
		}

		if tampered && !p.tampered[s.Name()] {
			p.logger.Info("tamper detected", "sensor", s.Name())
			event := ipc.Envelope{
				Kind:   ipc.KindTamper,
				Tamper: &ipc.TamperEvent{Source: s.Name(), DetectedAt: now},
			}
			if err := p.writer.Write(event); err != nil {
				return fmt.Errorf("delivering tamper event: %w", err)
			}
		}
		p.tampered[s.Name()] = tampered
	}

	p.sequence++
	heartbeat := ipc.Envelope{
		Kind:      ipc.KindHeartbeat,
		Heartbeat: &ipc.Heartbeat{Sequence: p.sequence, EmittedAt: now},
	}
	if err := p.writer.Write(heartbeat); err != nil {
		return fmt.Errorf("delivering heartbeat: %w", err)
	}
	return nil
}
