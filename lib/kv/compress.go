// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to a value's
// payload before sealing. The tag occupies one byte of the value
// envelope and is authenticated as AAD. These values are format
// constants — changing them breaks every sealed value on disk.
type CompressionTag uint8

const (
	// CompressionNone indicates an uncompressed payload. Small
	// metadata records and incompressible chunk data carry this tag.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. Fast default
	// for file data of unknown type.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd at its default level. Better
	// ratios for text-heavy data at more CPU.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation (as it appears in configuration).
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// errIncompressible reports that compression did not shrink the
// payload; the caller falls back to CompressionNone.
var errIncompressible = errors.New("kv: payload is incompressible")

// compressPayload compresses data under the given tag. The returned
// payload is self-framing: a 4-byte big-endian uncompressed length
// followed by the compressed bytes. Returns errIncompressible when
// the framed result would not be smaller than the input.
func compressPayload(data []byte, tag CompressionTag) ([]byte, error) {
	if len(data) > int(^uint32(0)) {
		return nil, fmt.Errorf("kv: payload of %d bytes exceeds compressible size", len(data))
	}

	var compressed []byte
	switch tag {
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("kv: lz4 compress: %w", err)
		}
		// CompressBlock returns 0 when it determines the data is
		// incompressible.
		if written == 0 {
			return nil, errIncompressible
		}
		compressed = destination[:written]

	case CompressionZstd:
		compressed = zstdEncoder.EncodeAll(data, nil)

	default:
		return nil, fmt.Errorf("kv: unsupported compression tag: %d", tag)
	}

	if len(compressed)+4 >= len(data) {
		return nil, errIncompressible
	}

	framed := make([]byte, 4+len(compressed))
	binary.BigEndian.PutUint32(framed, uint32(len(data)))
	copy(framed[4:], compressed)
	return framed, nil
}

// decompressPayload is the inverse of compressPayload.
func decompressPayload(framed []byte, tag CompressionTag) ([]byte, error) {
	if len(framed) < 4 {
		return nil, fmt.Errorf("kv: compressed payload too short: %d bytes", len(framed))
	}
	uncompressedSize := int(binary.BigEndian.Uint32(framed))
	compressed := framed[4:]

	switch tag {
	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("kv: lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("kv: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("kv: zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("kv: zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("kv: unsupported compression tag: %d", tag)
	}
}

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("kv: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("kv: zstd decoder initialization failed: " + err.Error())
	}
}
