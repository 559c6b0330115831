// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"context"
	"fmt"

	"github.com/palisade-systems/palisade/lib/audit"
	"github.com/palisade-systems/palisade/lib/ipc"
)

// ControlRequest pairs a control request with its reply channel. The
// connection goroutine sends one and waits; the loop replies exactly
// once. Reply must be buffered so the loop never blocks on a client
// that gave up.
type ControlRequest struct {
	Request ipc.Request
	Reply   chan ipc.Response
}

// Run is the gate's event loop: the one goroutine multiplexing sensor
// frames, watchdog ticks, control requests, and shutdown. Every state
// machine method is called from here, which is what makes the machine
// lock-free.
//
// Run returns nil on context cancellation and an error only on a
// fatal condition, an unpersistable wipe authorization. Cancellation
// never clears an authorized wipe: the marker, once created, stays.
func (g *Gate) Run(ctx context.Context, events <-chan ipc.Envelope, requests <-chan ControlRequest) error {
	ticker := g.options.Clock.NewTicker(g.options.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.shutdown(context.WithoutCancel(ctx))
			return nil

		case envelope := <-events:
			g.HandleEnvelope(ctx, envelope)

		case <-ticker.C:
			if err := g.Tick(ctx); err != nil {
				return err
			}

		case request := <-requests:
			response, err := g.handleRequest(ctx, request.Request)
			request.Reply <- response
			if err != nil {
				return err
			}
		}
	}
}

// handleRequest dispatches one control request to the state machine.
func (g *Gate) handleRequest(ctx context.Context, request ipc.Request) (ipc.Response, error) {
	switch request.Action {
	case ipc.ActionStatus:
		return g.Status(), nil
	case ipc.ActionArm:
		return g.Arm(ctx), nil
	case ipc.ActionDisarm:
		return g.Disarm(ctx, request.Password)
	case ipc.ActionRespond:
		return g.Respond(ctx, request.Password)
	default:
		return ipc.Response{OK: false, State: string(g.state), Error: fmt.Sprintf("unknown action %q", request.Action)}, nil
	}
}

// shutdown records the clean exit. The marker and the state record
// are left exactly as they are.
func (g *Gate) shutdown(ctx context.Context) {
	g.options.Logger.Info("gate shutting down", "state", g.state)
	g.journal(ctx, audit.Entry{
		Event:     audit.EventShutdown,
		FromState: string(g.state),
		ToState:   string(g.state),
		Reason:    "shutdown requested",
	})
	g.writeStateRecord("shutdown")
}
