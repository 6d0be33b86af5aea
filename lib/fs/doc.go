// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package fs implements the Strata filesystem engine: POSIX file and
// directory semantics translated into ordered, crash-safe mutations of
// an encrypted key-value store.
//
// The engine's durable state is exactly the key space defined by
// lib/keycodec: inode records, paired directory lookup/scan records
// with a per-directory cookie allocator, fixed-size file chunks,
// global counters, tombstones scheduling background chunk deletion,
// and dataset/snapshot metadata. Every operation composes a single
// kv.Batch touching all of those together and commits it atomically:
// an operation that returns success has committed, and one that
// returns an error has committed nothing.
//
// Concurrency follows a per-inode reader/writer lock table. Operations
// touching two inodes acquire locks in ascending id order; a
// process-wide rename barrier coordinates cross-directory renames
// (shared) against snapshot cloning (exclusive). Within one inode,
// operations are linearizable in lock-acquisition order.
//
// Small, hot files are absorbed by a bounded writeback cache that
// defers their KV writes; the cache is consulted on every read and
// demoted before any remove or shrinking truncate, and Fsync demotes
// and awaits durability. On restart the cache is empty by
// construction: it only ever holds data that is not yet durable.
//
// Callers address files by inode id through a View, a handle binding
// the engine to one dataset. Path resolution is the adapter's job;
// the engine resolves exactly one name per Lookup.
package fs
