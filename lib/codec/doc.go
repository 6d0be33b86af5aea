// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Strata's standard CBOR encoding configuration.
//
// Every record value persisted in the key-value store — inode records,
// dataset and snapshot metadata, the dataset registry, tombstones, the
// format record — is CBOR encoded through this package. Fixed-width
// scalars (counters, cookies) are encoded as big-endian integers by
// their owning stores and do not pass through here.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical record always produces identical bytes, which keeps encrypted
// value sizes stable and makes store-level tests byte-exact.
//
// The decoder ignores unknown fields. This is the compatibility
// contract for the persisted layout: adding optional fields to a record
// is backwards-compatible, reordering or retyping existing fields is
// not. Version gating beyond that is handled by the format record, not
// by the codec.
//
// Record types use `cbor` struct tags exclusively; none of the
// persisted types participate in JSON serialization.
package codec
