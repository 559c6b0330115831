// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "crypto/subtle"

// Zero overwrites the slice with zero bytes. Use it on any transient
// copy of secret material (stack buffers, scanner lines, derived
// keys) the moment the copy is no longer needed.
func Zero(data []byte) {
	for index := range data {
		data[index] = 0
	}
}

// Equal reports whether two buffers hold identical contents, in time
// independent of where they differ. Buffers of different lengths
// compare unequal (length is not concealed). Panics if either buffer
// has been closed.
func (b *Buffer) Equal(other *Buffer) bool {
	// Lock ordering is irrelevant here: Bytes takes and releases
	// each buffer's own lock.
	left := b.Bytes()
	right := other.Bytes()
	if len(left) != len(right) {
		return false
	}
	return subtle.ConstantTimeCompare(left, right) == 1
}
