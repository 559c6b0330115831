// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "time"

// Envelope kinds carried on the event pipe.
const (
	// KindTamper marks an envelope carrying a TamperEvent.
	KindTamper = "tamper"

	// KindHeartbeat marks an envelope carrying a Heartbeat.
	KindHeartbeat = "heartbeat"
)

// Envelope is the single frame type on the event pipe. Exactly one of
// Tamper and Heartbeat is set, selected by Kind. Each envelope is
// encoded as one self-delimiting CBOR document small enough that the
// pipe write is atomic, so frames from a restarted sensor daemon can
// never interleave with frames from its predecessor.
type Envelope struct {
	// Kind is KindTamper or KindHeartbeat.
	Kind string `cbor:"kind"`

	// Tamper is set when Kind is KindTamper.
	Tamper *TamperEvent `cbor:"tamper,omitempty"`

	// Heartbeat is set when Kind is KindHeartbeat.
	Heartbeat *Heartbeat `cbor:"heartbeat,omitempty"`
}

// TamperEvent reports one transition of a sensor into the tampered
// physical state. The sensor daemon emits it on the transition edge,
// not continuously, so a stuck-open case produces one event rather
// than one per sample.
type TamperEvent struct {
	// Source names the sensor that fired ("hall", "light").
	Source string `cbor:"source"`

	// DetectedAt is when the sensor daemon observed the transition.
	DetectedAt time.Time `cbor:"detected_at"`
}

// Heartbeat is emitted at a fixed interval regardless of sensor
// state. The gate tracks only the arrival time of the most recent
// one; a gap longer than the watchdog timeout while armed is treated
// the same as a tamper event.
type Heartbeat struct {
	// Sequence increments by one per heartbeat for the lifetime of
	// the sensor daemon process. A reset to zero identifies a daemon
	// restart in the gate's logs.
	Sequence uint64 `cbor:"sequence"`

	// EmittedAt is when the sensor daemon produced the heartbeat.
	EmittedAt time.Time `cbor:"emitted_at"`
}

// Control socket actions.
const (
	// ActionStatus reports the gate's current state. Always served,
	// including after startup found an existing wipe marker.
	ActionStatus = "status"

	// ActionArm transitions Disarmed → Armed.
	ActionArm = "arm"

	// ActionDisarm transitions Armed → Disarmed. During an active
	// challenge the request must carry the challenge password; a
	// correct password then transitions to Disarmed instead of Armed.
	ActionDisarm = "disarm"

	// ActionRespond submits a challenge password. A correct password
	// before the deadline and attempt limit returns the gate to
	// Armed.
	ActionRespond = "respond"
)

// Request is a CBOR-encoded request from the operator CLI to the
// gate, sent over the control socket.
type Request struct {
	// Action is the request type: "status", "arm", "disarm", or
	// "respond".
	Action string `cbor:"action"`

	// Password is the challenge password for "respond", and for
	// "disarm" while a challenge is active. It travels only across
	// the local mode-0600 socket; the gate copies it into a locked
	// buffer and zeroes the copy after verification.
	Password string `cbor:"password,omitempty"`
}

// Response is a CBOR-encoded response from the gate to the CLI.
type Response struct {
	// OK indicates whether the request succeeded.
	OK bool `cbor:"ok"`

	// State is the gate's arming state after the request was
	// processed ("disarmed", "armed", "challenge_active",
	// "wipe_authorized", "wiped"). Set on every response, including
	// failures, so the CLI can always report where things stand.
	State string `cbor:"state,omitempty"`

	// Error describes why the request failed. Only set when OK is
	// false.
	Error string `cbor:"error,omitempty"`

	// Detail is a human-readable elaboration of State: remaining
	// challenge attempts, time until the deadline, heartbeat age.
	Detail string `cbor:"detail,omitempty"`
}
