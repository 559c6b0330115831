// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

func compressiblePayload() []byte {
	return bytes.Repeat([]byte("the vault holds nothing but repeated sentences. "), 200)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testPayloadKey(t)
	payload := compressiblePayload()

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			sealed, err := SealPayload(payload, key, compression)
			if err != nil {
				t.Fatalf("sealing: %v", err)
			}
			if got := Compression(sealed[1]); got != compression {
				t.Errorf("header compression = %v, want %v", got, compression)
			}

			opened, err := OpenPayload(sealed, key)
			if err != nil {
				t.Fatalf("opening: %v", err)
			}
			if !bytes.Equal(opened, payload) {
				t.Error("opened payload does not match original")
			}
		})
	}
}

func TestSealCompressionShrinksPayload(t *testing.T) {
	key := testPayloadKey(t)
	payload := compressiblePayload()

	sealed, err := SealPayload(payload, key, CompressionZstd)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}
	if len(sealed) >= len(payload) {
		t.Errorf("sealed size %d not smaller than payload %d for repetitive input", len(sealed), len(payload))
	}
}

func TestSealIncompressibleFallsBack(t *testing.T) {
	key := testPayloadKey(t)
	payload := make([]byte, 1024)
	if _, err := io.ReadFull(rand.Reader, payload); err != nil {
		t.Fatalf("generating payload: %v", err)
	}

	sealed, err := SealPayload(payload, key, CompressionZstd)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}
	if got := Compression(sealed[1]); got != CompressionNone {
		t.Errorf("header compression = %v, want fallback to none", got)
	}

	opened, err := OpenPayload(sealed, key)
	if err != nil {
		t.Fatalf("opening: %v", err)
	}
	if !bytes.Equal(opened, payload) {
		t.Error("opened payload does not match original")
	}
}

func TestSealEmptyPayload(t *testing.T) {
	key := testPayloadKey(t)

	sealed, err := SealPayload(nil, key, CompressionNone)
	if err != nil {
		t.Fatalf("sealing empty payload: %v", err)
	}
	opened, err := OpenPayload(sealed, key)
	if err != nil {
		t.Fatalf("opening empty payload: %v", err)
	}
	if len(opened) != 0 {
		t.Errorf("opened %d bytes, want 0", len(opened))
	}
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := SealPayload(compressiblePayload(), testPayloadKey(t), CompressionLZ4)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}
	if _, err := OpenPayload(sealed, testPayloadKey(t)); err == nil {
		t.Fatal("sealed payload opened with the wrong key")
	}
}

func TestOpenTamperedHeader(t *testing.T) {
	key := testPayloadKey(t)
	sealed, err := SealPayload(compressiblePayload(), key, CompressionZstd)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}

	// The header is AAD: flipping the compression byte must fail
	// authentication, not feed garbage to the decompressor.
	sealed[1] ^= 0xff
	if _, err := OpenPayload(sealed, key); err == nil {
		t.Fatal("payload opened with tampered header")
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	key := testPayloadKey(t)
	sealed, err := SealPayload(compressiblePayload(), key, CompressionNone)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}
	sealed[len(sealed)-1] ^= 0x01
	if _, err := OpenPayload(sealed, key); err == nil {
		t.Fatal("payload opened with tampered ciphertext")
	}
}

func TestOpenTruncated(t *testing.T) {
	key := testPayloadKey(t)
	sealed, err := SealPayload(compressiblePayload(), key, CompressionNone)
	if err != nil {
		t.Fatalf("sealing: %v", err)
	}
	if _, err := OpenPayload(sealed[:10], key); err == nil {
		t.Fatal("truncated payload opened")
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZstd,
	} {
		got, err := ParseCompression(name)
		if err != nil {
			t.Errorf("ParseCompression(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseCompression(%q) = %v, want %v", name, got, want)
		}
		if got.String() != name {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), name)
		}
	}

	if _, err := ParseCompression("brotli"); err == nil {
		t.Error("unknown compression name accepted")
	}
}
