// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import "testing"

func TestZero(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	Zero(data)
	for index, value := range data {
		if value != 0 {
			t.Fatalf("byte %d not zeroed: got %d", index, value)
		}
	}
}

func TestZero_EmptyAndNil(t *testing.T) {
	Zero(nil)
	Zero([]byte{})
}

func TestBuffer_Equal(t *testing.T) {
	tests := []struct {
		name  string
		left  string
		right string
		want  bool
	}{
		{name: "identical", left: "passphrase", right: "passphrase", want: true},
		{name: "different content", left: "passphrase", right: "passphrasE", want: false},
		{name: "different length", left: "pass", right: "passphrase", want: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			left, err := NewFromBytes([]byte(test.left))
			if err != nil {
				t.Fatalf("NewFromBytes left: %v", err)
			}
			defer left.Close()
			right, err := NewFromBytes([]byte(test.right))
			if err != nil {
				t.Fatalf("NewFromBytes right: %v", err)
			}
			defer right.Close()

			if got := left.Equal(right); got != test.want {
				t.Errorf("Equal(%q, %q) = %v, want %v", test.left, test.right, got, test.want)
			}
		})
	}
}
