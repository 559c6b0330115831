// Copyright 2026 The Palisade Authors
// SPDX-License-Identifier: Apache-2.0

package recovery

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/palisade-systems/palisade/lib/secret"
)

// Compression identifies the algorithm applied to a payload before
// sealing. Values are protocol constants stored in the sealed header;
// changing them breaks format compatibility.
type Compression uint8

const (
	// CompressionNone stores the payload uncompressed. Used for
	// already-compressed images where compression only burns CPU.
	CompressionNone Compression = 0

	// CompressionLZ4 applies LZ4 block compression: fast, modest
	// ratio, the default when content is unknown.
	CompressionLZ4 Compression = 1

	// CompressionZstd applies zstd at its default level: better
	// ratios for text-heavy images at more CPU.
	CompressionZstd Compression = 2
)

// String returns the human-readable name of a compression value.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name from CLI flags and
// config files.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// sealedHeaderSize is the plaintext header of a sealed payload:
// 1 (version) + 1 (compression) + 8 (uncompressed length, little
// endian). The full header is the AAD.
const sealedHeaderSize = 1 + 1 + 8

// sealedVersion is the sealed payload format version.
const sealedVersion byte = 0x01

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("recovery: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("recovery: zstd decoder initialization failed: " + err.Error())
	}
}

// SealPayload compresses and encrypts a recovery image under the
// payload key:
//
//	[Version: 1] [Compression: 1] [Uncompressed length: 8 LE]
//	[Nonce: 24] [Ciphertext+Tag]
//
// If the requested compression does not shrink the payload, the
// sealed blob silently falls back to CompressionNone. The key is
// borrowed and NOT closed.
func SealPayload(payload []byte, key *secret.Buffer, compression Compression) ([]byte, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("payload key is %d bytes, want %d", key.Len(), KeySize)
	}

	compressed, applied, err := compress(payload, compression)
	if err != nil {
		return nil, fmt.Errorf("compressing payload: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	header := make([]byte, sealedHeaderSize)
	header[0] = sealedVersion
	header[1] = byte(applied)
	binary.LittleEndian.PutUint64(header[2:], uint64(len(payload)))

	output := make([]byte, 0, sealedHeaderSize+chacha20poly1305.NonceSizeX+len(compressed)+aead.Overhead())
	output = append(output, header...)
	output = append(output, nonce[:]...)
	output = aead.Seal(output, nonce[:], compressed, header)
	return output, nil
}

// OpenPayload decrypts and decompresses a sealed payload. Returns an
// error if authentication fails or the decompressed size does not
// match the header. The key is borrowed and NOT closed.
func OpenPayload(sealed []byte, key *secret.Buffer) ([]byte, error) {
	minimum := sealedHeaderSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minimum {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d", len(sealed), minimum)
	}

	header := sealed[:sealedHeaderSize]
	if header[0] != sealedVersion {
		return nil, fmt.Errorf("sealed payload version %d is not supported", header[0])
	}
	compression := Compression(header[1])
	uncompressedSize := binary.LittleEndian.Uint64(header[2:])

	nonce := sealed[sealedHeaderSize : sealedHeaderSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[sealedHeaderSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}
	compressed, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, fmt.Errorf("opening sealed payload: authentication failed: %w", err)
	}

	payload, err := decompress(compressed, compression, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	return payload, nil
}

// compress applies the requested algorithm, falling back to
// CompressionNone when the output would not be smaller.
func compress(data []byte, compression Compression) ([]byte, Compression, error) {
	switch compression {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return data, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression %d", compression)
	}
}

// decompress reverses compress. The uncompressedSize comes from the
// authenticated header and is verified against the actual output.
func decompress(data []byte, compression Compression, uncompressedSize int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d", len(data), uncompressedSize)
		}
		return data, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}
