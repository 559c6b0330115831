// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/palisade-systems/palisade/lib/codec"
)

// connectionDeadline bounds one request/response cycle on the control
// socket. Generous enough for an argon2id verification at the maximum
// permitted parameters on small hardware.
const connectionDeadline = 30 * time.Second

// Listen creates the control socket listener, removing any stale
// socket file from a previous run. The socket is chmodded to 0600 so
// only the gate's own user can issue control requests.
func Listen(socketPath string) (net.Listener, error) {
	socketDir := filepath.Dir(socketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return nil, fmt.Errorf("creating socket directory %s: %w", socketDir, err)
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return listener, nil
}

// Handler processes one control request and produces its response.
type Handler func(ctx context.Context, request Request) Response

// Serve accepts connections on the control socket and handles
// requests until the listener is closed. Each connection carries one
// request/response cycle and is handled in its own goroutine; the
// handler is responsible for its own serialization.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			// Check if the context was cancelled (shutdown).
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Error("accept error", "error", err)
			continue
		}
		go handleConnection(ctx, conn, handler, logger)
	}
}

// handleConnection processes a single control request/response cycle.
func handleConnection(ctx context.Context, conn net.Conn, handler Handler, logger *slog.Logger) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(connectionDeadline))

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	var request Request
	if err := decoder.Decode(&request); err != nil {
		logger.Error("decoding control request", "error", err)
		if err := encoder.Encode(Response{OK: false, Error: "invalid request"}); err != nil {
			logger.Error("encoding control error response", "error", err)
		}
		return
	}

	response := handler(ctx, request)

	if err := encoder.Encode(response); err != nil {
		logger.Error("encoding control response", "error", err)
	}
}

// Call sends one request to the gate's control socket and returns the
// response. Used by the operator CLI; each call is a fresh
// connection.
func Call(socketPath string, request Request) (Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return Response{}, fmt.Errorf("connecting to gate at %s: %w", socketPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(connectionDeadline))

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return Response{}, fmt.Errorf("sending control request: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return Response{}, fmt.Errorf("reading control response: %w", err)
	}
	return response, nil
}
