// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"testing"
	"time"
)

func testManifest() Manifest {
	image := []byte("recovery image contents")
	sealed := []byte("sealed payload stand-in")
	return Manifest{
		Version:      manifestVersion,
		ImageDigest:  DigestImage(image),
		ImageSize:    int64(len(image)),
		CreatedAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		BundleDigest: DigestBundle(sealed),
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	identity := testIdentity(t)
	recipient := testRecipient(t, identity)
	manifest := testManifest()

	signature, err := SignManifest(manifest, identity)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	ok, err := VerifyManifest(manifest, signature, recipient)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if !ok {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyFlippedManifestBit(t *testing.T) {
	identity := testIdentity(t)
	recipient := testRecipient(t, identity)
	manifest := testManifest()

	signature, err := SignManifest(manifest, identity)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	manifest.ImageDigest[0] ^= 0x01
	ok, err := VerifyManifest(manifest, signature, recipient)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if ok {
		t.Fatal("signature verified after a single flipped bit in the manifest")
	}
}

func TestVerifyFlippedSignatureBit(t *testing.T) {
	identity := testIdentity(t)
	recipient := testRecipient(t, identity)
	manifest := testManifest()

	signature, err := SignManifest(manifest, identity)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	signature[0] ^= 0x01
	ok, err := VerifyManifest(manifest, signature, recipient)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if ok {
		t.Fatal("signature verified after a single flipped bit in the signature")
	}
}

func TestVerifyCoversTimestamp(t *testing.T) {
	identity := testIdentity(t)
	recipient := testRecipient(t, identity)
	manifest := testManifest()

	signature, err := SignManifest(manifest, identity)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	manifest.CreatedAt = manifest.CreatedAt.Add(time.Second)
	ok, err := VerifyManifest(manifest, signature, recipient)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if ok {
		t.Fatal("signature verified after the timestamp changed")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	identity := testIdentity(t)
	stranger := testRecipient(t, testIdentity(t))
	manifest := testManifest()

	signature, err := SignManifest(manifest, identity)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	ok, err := VerifyManifest(manifest, signature, stranger)
	if err != nil {
		t.Fatalf("verifying: %v", err)
	}
	if ok {
		t.Fatal("signature verified under an unrelated key")
	}
}
