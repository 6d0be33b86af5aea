// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package kv defines the ordered key-value store interface the
// filesystem engine is built on, and provides its two production
// layers: a Badger-backed implementation and an encrypting wrapper
// that seals every value with an AEAD envelope.
//
// The engine requires exactly what the Store interface expresses:
// lexicographically ordered keys, point get/put/delete, half-open
// range scans, an atomic write batch, durable-flush-on-demand, and a
// cheap consistent read view (Snapshot). Nothing else about the
// engine's internals is assumed.
//
// Layering:
//
//	fs engine → kv.Encrypted → kv.Badger → local disk
//
// Encrypted passes key bytes through untouched, so key ordering — and
// with it every range scan the engine performs — is preserved. Values
// are optionally compressed, then sealed with XChaCha20-Poly1305 under
// a key derived from the 32-byte master key via HKDF-SHA256. A keyed
// BLAKE3 fingerprint of the master key is exposed for the format
// record, so opening a store with the wrong key fails once, cleanly,
// at open time instead of surfacing an authentication error on every
// value read.
//
// Memory is an in-memory Store used by engine tests; it implements
// the same atomic-batch and snapshot semantics.
package kv
