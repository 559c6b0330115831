// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate implements the arming state machine: the single
// decision point between sensor observations and authorized
// destruction. The machine is deliberately small (five states, a
// handful of transitions) and biased so every ambiguity while armed
// resolves toward escalation: heartbeat silence is tamper, a sensor
// read error is tamper, an unverifiable password is a failed attempt.
//
// All methods are called from one goroutine, the event loop in
// [Gate.Run]; there is no internal locking.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/palisade-systems/palisade/lib/audit"
	"github.com/palisade-systems/palisade/lib/challenge"
	"github.com/palisade-systems/palisade/lib/clock"
	"github.com/palisade-systems/palisade/lib/ipc"
	"github.com/palisade-systems/palisade/lib/secret"
	"github.com/palisade-systems/palisade/lib/statefile"
	"github.com/palisade-systems/palisade/lib/trigger"
)

// State is the gate's arming state.
type State string

const (
	// Disarmed is the initial state. Sensors may fire; nothing
	// escalates.
	Disarmed State = "disarmed"

	// Armed means tamper or heartbeat silence opens a challenge.
	Armed State = "armed"

	// ChallengeActive means a password window is open. Failure,
	// exhaustion, or expiry authorizes destruction.
	ChallengeActive State = "challenge_active"

	// WipeAuthorized means the trigger marker exists on disk and
	// destruction is in the executor's hands.
	WipeAuthorized State = "wipe_authorized"

	// Wiped is terminal: the executor consumed the marker without
	// powering the machine off.
	Wiped State = "wiped"
)

// Recorder is the audit sink. *audit.Journal implements it.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Options configure the gate.
type Options struct {
	// WatchdogTimeout is the maximum heartbeat gap tolerated while
	// armed before silence reads as tamper.
	WatchdogTimeout time.Duration

	// TickInterval paces the watchdog and deadline checks.
	TickInterval time.Duration

	// ChallengeDeadline is the length of the password window.
	ChallengeDeadline time.Duration

	// MaxAttempts is the challenge attempt limit.
	MaxAttempts int

	// PasswordHash is the stored argon2id PHC string, validated by
	// challenge.LoadHash at startup.
	PasswordHash string

	// MarkerPath is where the wipe-authorization marker is created.
	MarkerPath string

	// StatePath is the persisted state record.
	StatePath string

	// Activate requests wipe-executor activation. Failures are
	// logged, not fatal: the marker is durable and the next boot
	// retries.
	Activate func(ctx context.Context) error

	// Clock supplies time. Tests install a fake.
	Clock clock.Clock

	// Journal receives audit entries.
	Journal Recorder

	// Logger receives operational logging.
	Logger *slog.Logger
}

// Gate is the arming state machine.
type Gate struct {
	options Options

	state        State
	session      *challenge.Session
	sessionCause string

	armedAt       time.Time
	lastHeartbeat time.Time
	heartbeatSeen bool
	lastSequence  uint64
}

// New builds a gate in the Disarmed state. Call Start before Run.
func New(options Options) *Gate {
	return &Gate{options: options, state: Disarmed}
}

// State returns the current arming state.
func (g *Gate) State() State { return g.state }

// Start establishes the initial state. A wipe marker already on disk
// means a previous authorization was never consumed: the gate starts
// in WipeAuthorized, re-requests executor activation, and refuses
// everything but status until the marker is gone. Not knowing whether
// a marker exists is fatal: the gate cannot run without knowing
// whether destruction is authorized.
func (g *Gate) Start(ctx context.Context) error {
	if record, ok, err := statefile.Check(g.options.StatePath, time.Hour); err != nil {
		g.options.Logger.Warn("previous state record unreadable", "error", err)
	} else if ok {
		g.options.Logger.Info("previous instance state",
			"state", record.State, "reason", record.Reason, "pid", record.PID)
	}

	exists, err := trigger.Exists(g.options.MarkerPath)
	if err != nil {
		return fmt.Errorf("checking wipe marker at startup: %w", err)
	}

	if exists {
		g.state = WipeAuthorized
		g.options.Logger.Error("wipe marker present at startup; destruction is authorized and pending")
		g.journal(ctx, audit.Entry{
			Event:   audit.EventMarkerPresent,
			ToState: string(WipeAuthorized),
			Reason:  "marker found at startup",
		})
		g.writeStateRecord("marker found at startup")
		g.requestActivation(ctx)
		return nil
	}

	g.journal(ctx, audit.Entry{Event: audit.EventStartup, ToState: string(Disarmed)})
	g.writeStateRecord("startup")
	return nil
}

// HandleEnvelope processes one frame from the event pipe.
func (g *Gate) HandleEnvelope(ctx context.Context, envelope ipc.Envelope) {
	switch envelope.Kind {
	case ipc.KindHeartbeat:
		if envelope.Heartbeat == nil {
			g.options.Logger.Warn("heartbeat envelope without body")
			return
		}
		if g.heartbeatSeen && envelope.Heartbeat.Sequence <= g.lastSequence {
			g.options.Logger.Info("sensor daemon restarted", "sequence", envelope.Heartbeat.Sequence)
		}
		g.lastSequence = envelope.Heartbeat.Sequence
		g.lastHeartbeat = g.now()
		g.heartbeatSeen = true

	case ipc.KindTamper:
		if envelope.Tamper == nil {
			g.options.Logger.Warn("tamper envelope without body")
			return
		}
		source := envelope.Tamper.Source
		switch g.state {
		case Armed:
			g.openChallenge(ctx, "tamper:"+source)
		case Disarmed:
			g.options.Logger.Info("tamper observed while disarmed", "sensor", source)
		case ChallengeActive:
			g.options.Logger.Info("tamper during active challenge", "sensor", source)
		default:
			// WipeAuthorized, Wiped: nothing left to escalate.
		}

	default:
		g.options.Logger.Warn("unknown envelope kind", "kind", envelope.Kind)
	}
}

// Tick runs the periodic checks: the watchdog while armed, the
// deadline during a challenge, and marker consumption once
// authorized. Returns an error only when a wipe authorization could
// not be made durable, which is fatal.
func (g *Gate) Tick(ctx context.Context) error {
	now := g.now()

	switch g.state {
	case Armed:
		// Killing or unplugging the sensor daemon must be
		// indistinguishable from opening the case.
		if gap := now.Sub(g.lastHeartbeat); gap > g.options.WatchdogTimeout {
			g.options.Logger.Warn("heartbeat silence exceeds watchdog timeout",
				"gap", gap, "timeout", g.options.WatchdogTimeout)
			g.openChallenge(ctx, "watchdog")
		}

	case ChallengeActive:
		if g.session.Expired(now) {
			return g.authorizeWipe(ctx, "deadline expired")
		}

	case WipeAuthorized:
		exists, err := trigger.Exists(g.options.MarkerPath)
		if err != nil {
			g.options.Logger.Warn("checking wipe marker", "error", err)
			return nil
		}
		if !exists {
			g.transition(ctx, Wiped, "wipe completed", "marker consumed by executor")
		}
	}
	return nil
}

// Arm transitions Disarmed → Armed. The watchdog counts from the
// moment of arming, so a sensor daemon started moments later is not
// an instant timeout.
func (g *Gate) Arm(ctx context.Context) ipc.Response {
	switch g.state {
	case Disarmed:
		now := g.now()
		g.armedAt = now
		g.lastHeartbeat = now
		g.heartbeatSeen = false
		g.transition(ctx, Armed, "arm command", "")
		return ipc.Response{OK: true, State: string(g.state)}
	case Armed:
		return ipc.Response{OK: true, State: string(g.state), Detail: "already armed"}
	default:
		return ipc.Response{OK: false, State: string(g.state), Error: fmt.Sprintf("cannot arm from state %q", g.state)}
	}
}

// Disarm transitions Armed → Disarmed. During an active challenge the
// request must carry the password, and success lands in Disarmed
// instead of Armed.
func (g *Gate) Disarm(ctx context.Context, password string) (ipc.Response, error) {
	switch g.state {
	case Disarmed:
		return ipc.Response{OK: true, State: string(g.state), Detail: "already disarmed"}, nil
	case Armed:
		g.transition(ctx, Disarmed, "disarm command", "")
		return ipc.Response{OK: true, State: string(g.state)}, nil
	case ChallengeActive:
		if password == "" {
			return ipc.Response{OK: false, State: string(g.state), Error: "challenge active: password required to disarm"}, nil
		}
		return g.submit(ctx, password, true)
	default:
		return ipc.Response{OK: false, State: string(g.state), Error: fmt.Sprintf("cannot disarm from state %q", g.state)}, nil
	}
}

// Respond submits a challenge password.
func (g *Gate) Respond(ctx context.Context, password string) (ipc.Response, error) {
	if g.state != ChallengeActive {
		return ipc.Response{OK: false, State: string(g.state), Error: "no active challenge"}, nil
	}
	if password == "" {
		return ipc.Response{OK: false, State: string(g.state), Error: "password required"}, nil
	}
	return g.submit(ctx, password, false)
}

// Status reports the current state with a human-readable elaboration.
func (g *Gate) Status() ipc.Response {
	response := ipc.Response{OK: true, State: string(g.state)}
	now := g.now()

	switch g.state {
	case Armed:
		if g.heartbeatSeen {
			response.Detail = fmt.Sprintf("last heartbeat %s ago", now.Sub(g.lastHeartbeat).Truncate(time.Second))
		} else {
			response.Detail = fmt.Sprintf("armed %s ago; no heartbeat yet", now.Sub(g.armedAt).Truncate(time.Second))
		}
	case ChallengeActive:
		response.Detail = fmt.Sprintf("%d of %d attempts remaining; %s until deadline",
			g.session.Remaining(), g.session.MaxAttempts,
			g.session.Deadline.Sub(now).Truncate(time.Second))
	case WipeAuthorized:
		response.Detail = "wipe marker present; destruction pending"
	case Wiped:
		response.Detail = "wipe completed"
	}
	return response
}

// submit verifies one password and applies the outcome. Verification
// runs synchronously in the event loop; its cost is bounded by the
// parameter caps enforced when the hash was loaded.
func (g *Gate) submit(ctx context.Context, password string, disarmIntent bool) (ipc.Response, error) {
	now := g.now()

	if g.session.Expired(now) {
		// The deadline passed between ticks. The submission loses.
		err := g.authorizeWipe(ctx, "deadline expired")
		return ipc.Response{OK: false, State: string(g.state), Error: "challenge deadline expired"}, err
	}

	candidate, err := secret.NewFromBytes([]byte(password))
	if err != nil {
		g.options.Logger.Error("staging password for verification", "error", err)
		return ipc.Response{OK: false, State: string(g.state), Error: "verification unavailable"}, nil
	}
	defer candidate.Close()

	ok, err := challenge.Verify(candidate, g.options.PasswordHash)
	if err != nil {
		// The stored hash was validated at startup, so this is
		// abnormal. An unverifiable submission counts as a failed
		// one.
		g.options.Logger.Error("password verification failed", "error", err)
		ok = false
	}

	if ok {
		g.journal(ctx, audit.Entry{
			Event:  audit.EventChallengeAttempt,
			Reason: "accepted",
			Detail: fmt.Sprintf("attempt %d of %d", g.session.AttemptsUsed+1, g.session.MaxAttempts),
		})
		target, reason := Armed, "challenge passed"
		if disarmIntent {
			target, reason = Disarmed, "challenge passed (disarm)"
		}
		g.session = nil
		g.sessionCause = ""

		if target == Armed {
			// Returning to Armed restarts the watchdog grace window;
			// the operator gets a full timeout to revive the sensors.
			g.armedAt = now
			g.lastHeartbeat = now
			g.heartbeatSeen = false
		}
		g.transition(ctx, target, reason, "")
		return ipc.Response{OK: true, State: string(g.state)}, nil
	}

	g.session.RecordFailure()
	g.journal(ctx, audit.Entry{
		Event:  audit.EventChallengeAttempt,
		Reason: "rejected",
		Detail: fmt.Sprintf("attempt %d of %d", g.session.AttemptsUsed, g.session.MaxAttempts),
	})

	if g.session.Exhausted() {
		err := g.authorizeWipe(ctx, "attempts exhausted")
		return ipc.Response{OK: false, State: string(g.state), Error: "attempts exhausted"}, err
	}

	return ipc.Response{
		OK:     false,
		State:  string(g.state),
		Error:  "incorrect password",
		Detail: fmt.Sprintf("%d of %d attempts remaining", g.session.Remaining(), g.session.MaxAttempts),
	}, nil
}

// openChallenge moves to ChallengeActive and starts the password
// window.
func (g *Gate) openChallenge(ctx context.Context, cause string) {
	g.session = challenge.NewSession(g.now(), g.options.ChallengeDeadline, g.options.MaxAttempts)
	g.sessionCause = cause
	g.transition(ctx, ChallengeActive, cause,
		fmt.Sprintf("deadline %s, %d attempts", g.options.ChallengeDeadline, g.options.MaxAttempts))
}

// authorizeWipe makes destruction durable: transition, create the
// marker, request the executor. Marker creation failure is the one
// fatal error in the state machine: an authorization that cannot be
// persisted must crash the gate loudly rather than dissolve into an
// ambiguous armed state.
func (g *Gate) authorizeWipe(ctx context.Context, reason string) error {
	detail := g.sessionCause
	g.session = nil
	g.sessionCause = ""
	g.transition(ctx, WipeAuthorized, reason, detail)

	created, err := trigger.Create(g.options.MarkerPath, trigger.Marker{
		Reason:       reason,
		Detail:       detail,
		AuthorizedAt: g.now(),
		PID:          os.Getpid(),
	})
	if err != nil {
		return fmt.Errorf("persisting wipe authorization: %w", err)
	}
	if created {
		g.journal(ctx, audit.Entry{
			Event:   audit.EventMarkerCreated,
			ToState: string(WipeAuthorized),
			Reason:  reason,
			Detail:  detail,
		})
	} else {
		g.options.Logger.Info("wipe marker already present")
	}

	g.requestActivation(ctx)
	return nil
}

// requestActivation asks for the wipe executor to run. Fire and
// forget: once the marker exists the gate can trigger destruction
// but not prevent it, and a failed activation is retried at next
// boot because the marker persists.
func (g *Gate) requestActivation(ctx context.Context) {
	if g.options.Activate == nil {
		return
	}
	if err := g.options.Activate(ctx); err != nil {
		g.options.Logger.Error("wipe executor activation failed; marker remains for next boot", "error", err)
	}
}

func (g *Gate) now() time.Time { return g.options.Clock.Now() }

// journal writes an audit entry. Audit failure is logged and
// swallowed: the journal records decisions, it never gates them.
func (g *Gate) journal(ctx context.Context, entry audit.Entry) {
	if err := g.options.Journal.Record(ctx, entry); err != nil {
		g.options.Logger.Error("audit write failed", "event", entry.Event, "error", err)
	}
}

// writeStateRecord persists the informational state record. Failure
// is logged and swallowed; the marker alone carries authority.
func (g *Gate) writeStateRecord(reason string) {
	record := statefile.Record{
		State:     string(g.state),
		Reason:    reason,
		UpdatedAt: g.now(),
		PID:       os.Getpid(),
	}
	if err := statefile.Write(g.options.StatePath, record); err != nil {
		g.options.Logger.Error("state record write failed", "error", err)
	}
}

// transition changes state, logs, journals, and persists the record.
func (g *Gate) transition(ctx context.Context, to State, reason, detail string) {
	from := g.state
	g.state = to
	g.options.Logger.Info("state transition", "from", from, "to", to, "reason", reason)
	g.journal(ctx, audit.Entry{
		Event:     audit.EventTransition,
		FromState: string(from),
		ToState:   string(to),
		Reason:    reason,
		Detail:    detail,
	})
	g.writeStateRecord(reason)
}
