// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/stratafs/strata/lib/secret"
)

// KeySize is the size in bytes of the master key.
const KeySize = 32

// envelopeVersion is the version byte prepended to every sealed
// value. It is authenticated as AAD, so tampering with it fails the
// AEAD open.
const envelopeVersion byte = 0x01

// envelopeOverhead is the fixed byte overhead per sealed value:
// 1 (version) + 1 (compression tag) + 24 (XChaCha20-Poly1305 nonce) +
// 16 (Poly1305 tag).
const envelopeOverhead = 2 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// compressThreshold is the smallest payload worth attempting to
// compress. Metadata records sit below it; chunk values sit above.
const compressThreshold = 512

// HKDF info strings providing domain separation between derivation
// paths. Changing either invalidates every store sealed under it.
var (
	hkdfInfoDataKey        = []byte("strata.kv.data.v1")
	hkdfInfoFingerprintKey = []byte("strata.kv.fingerprint.v1")
)

// fingerprintDomain is the keyed-BLAKE3 input for the master-key
// fingerprint persisted in the format record.
var fingerprintDomain = []byte("strata.format.fingerprint.v1")

// ErrInvalidValue is returned when a sealed value fails
// authentication or envelope decoding. It signals corruption (or a
// wrong key, though that is normally caught at open time via the
// fingerprint).
var ErrInvalidValue = errors.New("kv: sealed value failed authentication")

// Encrypted is a Store that seals every value with
// XChaCha20-Poly1305 before handing it to the inner store, and opens
// values on the way back. Key bytes pass through untouched, so the
// inner store's ordering — and every range scan above it — is
// unaffected.
//
// Values above compressThreshold are compressed before sealing when a
// compression tag is configured; incompressible payloads fall back to
// CompressionNone per value.
type Encrypted struct {
	inner       Store
	aead        cipher.AEAD
	fingerprint [32]byte
	compression CompressionTag
}

var _ Store = (*Encrypted)(nil)

// NewEncrypted wraps inner with value encryption under masterKey.
// The masterKey is borrowed (read via Bytes) and NOT closed; the
// caller retains ownership.
func NewEncrypted(inner Store, masterKey *secret.Buffer, compression CompressionTag) (*Encrypted, error) {
	if masterKey.Len() != KeySize {
		return nil, fmt.Errorf("kv: master key must be %d bytes, got %d", KeySize, masterKey.Len())
	}

	dataKey, err := deriveKey(masterKey.Bytes(), hkdfInfoDataKey)
	if err != nil {
		return nil, err
	}
	defer zero(dataKey)

	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("kv: initializing AEAD: %w", err)
	}

	fingerprintKey, err := deriveKey(masterKey.Bytes(), hkdfInfoFingerprintKey)
	if err != nil {
		return nil, err
	}
	defer zero(fingerprintKey)

	hasher, err := blake3.NewKeyed(fingerprintKey)
	if err != nil {
		return nil, fmt.Errorf("kv: initializing fingerprint hasher: %w", err)
	}
	if _, err := hasher.Write(fingerprintDomain); err != nil {
		return nil, fmt.Errorf("kv: computing fingerprint: %w", err)
	}

	encrypted := &Encrypted{
		inner:       inner,
		aead:        aead,
		compression: compression,
	}
	hasher.Sum(encrypted.fingerprint[:0])
	return encrypted, nil
}

// Fingerprint returns the keyed-BLAKE3 fingerprint of the master
// key. The engine persists it in the format record at format time and
// compares it at open time, so a wrong key is one clean error instead
// of an authentication failure on every value.
func (e *Encrypted) Fingerprint() []byte {
	return append([]byte(nil), e.fingerprint[:]...)
}

// seal envelopes a plaintext value:
//
//	version(1) ‖ compression tag(1) ‖ nonce(24) ‖ AEAD ciphertext
//
// The version and tag bytes are authenticated as AAD. The nonce is
// random per value.
func (e *Encrypted) seal(value []byte) ([]byte, error) {
	payload := value
	tag := CompressionNone
	if e.compression != CompressionNone && len(value) >= compressThreshold {
		compressed, err := compressPayload(value, e.compression)
		switch {
		case err == nil:
			payload = compressed
			tag = e.compression
		case errors.Is(err, errIncompressible):
			// Sealed as-is.
		default:
			return nil, err
		}
	}

	envelope := make([]byte, 2+chacha20poly1305.NonceSizeX, envelopeOverhead+len(payload))
	envelope[0] = envelopeVersion
	envelope[1] = byte(tag)
	nonce := envelope[2 : 2+chacha20poly1305.NonceSizeX]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("kv: generating nonce: %w", err)
	}
	return e.aead.Seal(envelope, nonce, payload, envelope[:2]), nil
}

// open is the inverse of seal.
func (e *Encrypted) open(envelope []byte) ([]byte, error) {
	if len(envelope) < envelopeOverhead {
		return nil, fmt.Errorf("%w: envelope of %d bytes too short", ErrInvalidValue, len(envelope))
	}
	if envelope[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unknown envelope version %d", ErrInvalidValue, envelope[0])
	}
	tag := CompressionTag(envelope[1])
	nonce := envelope[2 : 2+chacha20poly1305.NonceSizeX]
	ciphertext := envelope[2+chacha20poly1305.NonceSizeX:]

	payload, err := e.aead.Open(nil, nonce, ciphertext, envelope[:2])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if tag == CompressionNone {
		return payload, nil
	}
	plaintext, err := decompressPayload(payload, tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return plaintext, nil
}

// Get implements Store.
func (e *Encrypted) Get(ctx context.Context, key []byte) ([]byte, error) {
	sealed, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.open(sealed)
}

// Put implements Store.
func (e *Encrypted) Put(ctx context.Context, key, value []byte) error {
	sealed, err := e.seal(value)
	if err != nil {
		return err
	}
	return e.inner.Put(ctx, key, sealed)
}

// Delete implements Store.
func (e *Encrypted) Delete(ctx context.Context, key []byte) error {
	return e.inner.Delete(ctx, key)
}

// Scan implements Store. Values decrypt lazily, on Iterator.Value.
func (e *Encrypted) Scan(ctx context.Context, lo, hi []byte) (Iterator, error) {
	inner, err := e.inner.Scan(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	return &encryptedIterator{inner: inner, store: e}, nil
}

// NewBatch implements Store. Values seal at Put time, so a batch's
// memory footprint is its sealed size.
func (e *Encrypted) NewBatch() Batch {
	return &encryptedBatch{inner: e.inner.NewBatch(), store: e}
}

// Flush implements Store.
func (e *Encrypted) Flush(ctx context.Context, awaitDurable bool) error {
	return e.inner.Flush(ctx, awaitDurable)
}

// Snapshot implements Store.
func (e *Encrypted) Snapshot() (Snapshot, error) {
	inner, err := e.inner.Snapshot()
	if err != nil {
		return nil, err
	}
	return &encryptedSnapshot{inner: inner, store: e}, nil
}

// Close implements Store.
func (e *Encrypted) Close() error {
	return e.inner.Close()
}

type encryptedBatch struct {
	inner   Batch
	store   *Encrypted
	sealErr error
}

func (b *encryptedBatch) Put(key, value []byte) {
	sealed, err := b.store.seal(value)
	if err != nil {
		if b.sealErr == nil {
			b.sealErr = err
		}
		return
	}
	b.inner.Put(key, sealed)
}

func (b *encryptedBatch) Delete(key []byte) {
	b.inner.Delete(key)
}

func (b *encryptedBatch) Len() int { return b.inner.Len() }

func (b *encryptedBatch) Commit(ctx context.Context) error {
	if b.sealErr != nil {
		return fmt.Errorf("kv: batch holds a failed seal: %w", b.sealErr)
	}
	return b.inner.Commit(ctx)
}

type encryptedSnapshot struct {
	inner Snapshot
	store *Encrypted
}

func (s *encryptedSnapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.store.open(sealed)
}

func (s *encryptedSnapshot) Scan(ctx context.Context, lo, hi []byte) (Iterator, error) {
	inner, err := s.inner.Scan(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	return &encryptedIterator{inner: inner, store: s.store}, nil
}

func (s *encryptedSnapshot) Close() error { return s.inner.Close() }

type encryptedIterator struct {
	inner Iterator
	store *Encrypted
}

func (it *encryptedIterator) Next() bool  { return it.inner.Next() }
func (it *encryptedIterator) Key() []byte { return it.inner.Key() }

func (it *encryptedIterator) Value() ([]byte, error) {
	sealed, err := it.inner.Value()
	if err != nil {
		return nil, err
	}
	return it.store.open(sealed)
}

func (it *encryptedIterator) Close() error { return it.inner.Close() }

// deriveKey derives a 32-byte subkey from the master key via
// HKDF-SHA256 with the given info string.
func deriveKey(masterKey, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("kv: deriving key: %w", err)
	}
	return key, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
