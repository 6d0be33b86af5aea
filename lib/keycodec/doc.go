// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package keycodec defines the bijective mapping between filesystem
// identifiers and the byte keys stored in the key-value engine.
//
// Every key begins with a one-byte prefix that groups keys by kind;
// within a kind, all numeric components are big-endian u64 so that
// lexicographic key order equals numeric order. That equivalence is
// what makes range scans — directory enumeration, chunk reads,
// tombstone draining — correct, and it is the reason ad-hoc key
// arithmetic outside this package is prohibited: every enumerator must
// obtain its [lo, hi) bounds from the Range constructors here.
//
// The chunk prefix (0xFE) deliberately sorts after all metadata
// prefixes, so bulk file data never interleaves with the hot metadata
// region in the LSM.
//
// Encode∘Decode is the identity for every legal key, and for every
// kind with a Range constructor, Range(id) bounds exactly the keys of
// that kind for that identifier: lo ≤ key < hi, strictly.
package keycodec
