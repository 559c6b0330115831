// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/palisade-systems/palisade/lib/codec"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs Serve on a fresh socket with the given handler and
// returns the socket path. Cleanup stops the server.
func startServer(t *testing.T, handler Handler) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "gate.sock")
	listener, err := Listen(socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go Serve(ctx, listener, handler, testLogger())

	t.Cleanup(func() {
		cancel()
		listener.Close()
	})
	return socketPath
}

func TestListenSocketPermissions(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "gate.sock")

	listener, err := Listen(socketPath)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Errorf("mode %v is not a socket", info.Mode())
	}
	if got := info.Mode().Perm(); got != 0600 {
		t.Errorf("socket mode = %04o, want 0600", got)
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "gate.sock")
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	listener, err := Listen(socketPath)
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	listener.Close()
}

func TestServeAndCall(t *testing.T) {
	handler := func(ctx context.Context, request Request) Response {
		switch request.Action {
		case ActionStatus:
			return Response{OK: true, State: "armed", Detail: "last heartbeat 2s ago"}
		case ActionRespond:
			if request.Password == "correct horse" {
				return Response{OK: true, State: "armed"}
			}
			return Response{OK: false, State: "challenge_active", Error: "wrong password"}
		default:
			return Response{OK: false, Error: fmt.Sprintf("unknown action: %q", request.Action)}
		}
	}
	socketPath := startServer(t, handler)

	status, err := Call(socketPath, Request{Action: ActionStatus})
	if err != nil {
		t.Fatalf("Call(status): %v", err)
	}
	if !status.OK {
		t.Fatalf("status response not OK: %+v", status)
	}
	if status.State != "armed" {
		t.Errorf("State = %q, want %q", status.State, "armed")
	}
	if status.Detail != "last heartbeat 2s ago" {
		t.Errorf("Detail = %q, want heartbeat detail", status.Detail)
	}

	wrong, err := Call(socketPath, Request{Action: ActionRespond, Password: "guess"})
	if err != nil {
		t.Fatalf("Call(respond): %v", err)
	}
	if wrong.OK {
		t.Error("wrong password accepted")
	}
	if wrong.Error != "wrong password" {
		t.Errorf("Error = %q, want %q", wrong.Error, "wrong password")
	}

	right, err := Call(socketPath, Request{Action: ActionRespond, Password: "correct horse"})
	if err != nil {
		t.Fatalf("Call(respond): %v", err)
	}
	if !right.OK {
		t.Errorf("correct password rejected: %+v", right)
	}

	unknown, err := Call(socketPath, Request{Action: "reboot"})
	if err != nil {
		t.Fatalf("Call(reboot): %v", err)
	}
	if unknown.OK {
		t.Error("unknown action accepted")
	}
	if !strings.Contains(unknown.Error, "unknown action") {
		t.Errorf("Error = %q, want unknown-action message", unknown.Error)
	}
}

func TestServeEachConnectionIsolated(t *testing.T) {
	calls := make(chan string, 8)
	handler := func(ctx context.Context, request Request) Response {
		calls <- request.Action
		return Response{OK: true, State: "disarmed"}
	}
	socketPath := startServer(t, handler)

	for range 3 {
		if _, err := Call(socketPath, Request{Action: ActionStatus}); err != nil {
			t.Fatalf("Call: %v", err)
		}
	}
	if len(calls) != 3 {
		t.Errorf("handler ran %d times, want 3", len(calls))
	}
}

func TestServeMalformedRequest(t *testing.T) {
	handler := func(ctx context.Context, request Request) Response {
		t.Error("handler invoked for a malformed request")
		return Response{}
	}
	socketPath := startServer(t, handler)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	// 0xff is a bare CBOR break code: invalid as a top-level item.
	if _, err := conn.Write([]byte{0xff}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if response.OK {
		t.Error("malformed request reported OK")
	}
	if response.Error != "invalid request" {
		t.Errorf("Error = %q, want %q", response.Error, "invalid request")
	}
}

func TestCallNoListener(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "gate.sock")

	_, err := Call(socketPath, Request{Action: ActionStatus})
	if err == nil {
		t.Fatal("Call with no listener succeeded, want error")
	}
}
