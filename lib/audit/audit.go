// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit persists the gate's decision journal to SQLite. Every
// state transition, challenge attempt, and marker action gets a row;
// the journal is the forensic record of why a unit armed, challenged,
// or destroyed itself. Writes come only from the gate's event loop;
// the operator CLI reads concurrently through WAL mode.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/palisade-systems/palisade/lib/clock"
)

// Journal event kinds.
const (
	// EventStartup is recorded once when the gate starts.
	EventStartup = "startup"

	// EventTransition is recorded on every arming state change.
	EventTransition = "transition"

	// EventChallengeAttempt is recorded per password submission,
	// successful or not. The password itself is never recorded.
	EventChallengeAttempt = "challenge_attempt"

	// EventMarkerCreated is recorded when the gate creates the wipe
	// marker.
	EventMarkerCreated = "marker_created"

	// EventMarkerPresent is recorded when startup finds a marker
	// already on disk.
	EventMarkerPresent = "marker_present"

	// EventShutdown is recorded on graceful gate shutdown.
	EventShutdown = "shutdown"
)

// Entry is one journal row.
type Entry struct {
	// ID is the row identifier, assigned on insert.
	ID int64

	// RecordedAt is when the entry was written, at millisecond
	// precision.
	RecordedAt time.Time

	// Event is one of the Event constants.
	Event string

	// FromState and ToState bracket a transition; empty for
	// non-transition events.
	FromState string
	ToState   string

	// Reason is the cause in short form ("arm command",
	// "tamper:hall", "watchdog", "attempts exhausted").
	Reason string

	// Detail carries free-form elaboration.
	Detail string
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at INTEGER NOT NULL,
	event       TEXT NOT NULL,
	from_state  TEXT NOT NULL DEFAULT '',
	to_state    TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS audit_log_recorded_at ON audit_log (recorded_at);
`

// Journal is the SQLite-backed audit log.
type Journal struct {
	pool   *sqlitex.Pool
	clk    clock.Clock
	logger *slog.Logger
	path   string
}

// Open opens (creating if necessary) the journal database. The pool
// holds two connections: the gate's writer and room for a concurrent
// CLI-style reader within the same process.
func Open(path string, clk clock.Clock, logger *slog.Logger) (*Journal, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit journal %s: %w", path, err)
	}

	logger.Info("audit journal opened", "path", path)
	return &Journal{pool: pool, clk: clk, logger: logger, path: path}, nil
}

// prepareConnection applies the standard pragmas and ensures the
// schema exists. Runs once per pooled connection.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("audit: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("audit: creating schema: %w", err)
	}
	return nil
}

// Record writes one entry. RecordedAt is stamped here. A journal
// write failure is reported to the caller but must never gate the
// action being journaled: the gate logs it and proceeds.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit: take connection: %w", err)
	}
	defer j.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO audit_log (recorded_at, event, from_state, to_state, reason, detail)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				j.clk.Now().UnixMilli(),
				entry.Event,
				entry.FromState,
				entry.ToState,
				entry.Reason,
				entry.Detail,
			},
		})
	if err != nil {
		return fmt.Errorf("audit: inserting %s entry: %w", entry.Event, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: take connection: %w", err)
	}
	defer j.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn,
		`SELECT id, recorded_at, event, from_state, to_state, reason, detail
		 FROM audit_log ORDER BY id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, Entry{
					ID:         stmt.ColumnInt64(0),
					RecordedAt: time.UnixMilli(stmt.ColumnInt64(1)),
					Event:      stmt.ColumnText(2),
					FromState:  stmt.ColumnText(3),
					ToState:    stmt.ColumnText(4),
					Reason:     stmt.ColumnText(5),
					Detail:     stmt.ColumnText(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("audit: listing entries: %w", err)
	}
	return entries, nil
}

// Close closes the journal's connection pool.
func (j *Journal) Close() error {
	if err := j.pool.Close(); err != nil {
		return fmt.Errorf("audit: closing journal %s: %w", j.path, err)
	}
	j.logger.Info("audit journal closed", "path", j.path)
	return nil
}
