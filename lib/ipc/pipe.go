// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/codec"
)

// maxFrameBytes is PIPE_BUF on Linux: a pipe write of at most this
// many bytes is atomic. Envelopes are a few dozen bytes in practice;
// the limit is enforced so no future field can ever grow a frame into
// interleavable-write territory.
const maxFrameBytes = 4096

const (
	writeAttempts   = 3
	writeRetryDelay = 250 * time.Millisecond
)

// EnsurePipe creates the event pipe if it does not exist. An existing
// named pipe at the path is left alone; an existing file of any other
// type is an error. Mode 0620 lets the sensor daemon's group write
// while keeping the pipe unreadable to everyone else.
func EnsurePipe(path string) error {
	if err := unix.Mkfifo(path, 0620); err != nil {
		if !errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("creating event pipe %s: %w", path, err)
		}
		info, statErr := os.Stat(path)
		if statErr != nil {
			return fmt.Errorf("checking event pipe %s: %w", path, statErr)
		}
		if info.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("event pipe path %s exists and is not a named pipe", path)
		}
	}
	return nil
}

// OpenPipeReader opens the read side of the event pipe. The pipe is
// opened read-write: the open never blocks waiting for a writer, and
// the descriptor itself holds the write end alive, so a sensor daemon
// restart produces silence rather than EOF. Silence is exactly what
// the watchdog is built to notice.
//
// A read stalled on a quiet pipe is unblocked by closing the file.
func OpenPipeReader(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening event pipe %s: %w", path, err)
	}
	return file, nil
}

// PipeWriter writes envelopes to the event pipe, one atomic frame per
// envelope.
type PipeWriter struct {
	writer io.Writer
	closer io.Closer
	clk    clock.Clock
}

// OpenPipeWriter opens the write side of the event pipe. The open
// blocks until the gate has opened the read side, which orders sensor
// daemon startup after gate startup without any further coordination.
func OpenPipeWriter(path string, clk clock.Clock) (*PipeWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening event pipe %s: %w", path, err)
	}
	return &PipeWriter{writer: file, closer: file, clk: clk}, nil
}

// Write encodes the envelope and writes it as a single frame. A
// failed write is retried a bounded number of times with a short
// delay; persistent failure is returned to the caller, which for the
// sensor daemon is fatal. The gate then observes heartbeat silence,
// which is the intended escalation path.
func (w *PipeWriter) Write(envelope Envelope) error {
	frame, err := codec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	if len(frame) > maxFrameBytes {
		return fmt.Errorf("envelope frame is %d bytes, over the %d-byte atomic write limit", len(frame), maxFrameBytes)
	}

	var lastErr error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if attempt > 0 {
			w.clk.Sleep(writeRetryDelay)
		}
		if _, err := w.writer.Write(frame); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("writing envelope after %d attempts: %w", writeAttempts, lastErr)
}

// Close closes the underlying pipe.
func (w *PipeWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// ReadEnvelopes decodes envelopes from reader and delivers them to
// events until the context is cancelled or the stream fails. The
// send into events is abandoned on cancellation, so a stopped
// consumer cannot wedge the reader goroutine. Decode failures
// (including a closed reader) are returned; the gate logs them and
// leaves escalation to the watchdog.
func ReadEnvelopes(ctx context.Context, reader io.Reader, events chan<- Envelope) error {
	decoder := codec.NewDecoder(reader)
	for {
		var envelope Envelope
		if err := decoder.Decode(&envelope); err != nil {
			return fmt.Errorf("decoding envelope: %w", err)
		}
		select {
		case events <- envelope:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
