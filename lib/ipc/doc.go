// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR-encoded message types and transport
// helpers for the two local channels between Palisade processes: the
// event pipe (sensor daemon → gate, a named pipe carrying tamper
// events and heartbeats) and the control socket (operator CLI → gate,
// a unix stream socket carrying request/response pairs). Both sides
// of each channel import this package so the wire types are defined
// once rather than mirrored.
package ipc
