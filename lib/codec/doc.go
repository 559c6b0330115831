// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Palisade's standard CBOR encoding
// configuration.
//
// Palisade uses two serialization formats with a clear boundary:
//
//   - CBOR for every wire and artifact format: sensor frames on the
//     event pipe, control socket requests and responses, recovery key
//     bundles, wrapped secrets, keystores, and signed manifests.
//   - JSON only for human-facing residue: the trigger marker's audit
//     contents and the persisted gate-state record, both of which an
//     operator may need to read with nothing but cat.
//
// This package provides the shared CBOR modes so every package encodes
// identically. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes. Determinism is load-bearing in two places: manifest
// signatures cover the encoded manifest bytes, and event-pipe frames
// must each be a single self-delimiting document.
//
// For buffer-oriented operations (files, manifests):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the event pipe, the control socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
