// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when no value exists for the key.
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is an ordered key-value store. Implementations must preserve
// lexicographic key order across Scan, and must make Batch commits
// atomic with respect to crash recovery: after a batch reaches the
// durable log, either all of its effects are visible or none are.
type Store interface {
	// Get returns the value stored at key, or ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value at key, replacing any existing value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes the value at key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key []byte) error

	// Scan returns an iterator over the half-open key range [lo, hi)
	// in ascending key order. The iterator observes a consistent view
	// taken at call time.
	Scan(ctx context.Context, lo, hi []byte) (Iterator, error)

	// NewBatch returns an empty write batch. The batch's mutations
	// are applied atomically by Commit.
	NewBatch() Batch

	// Flush makes preceding writes durable. With awaitDurable it
	// returns only once every write issued before the call has
	// reached stable storage; without, it merely hints the engine to
	// start flushing.
	Flush(ctx context.Context, awaitDurable bool) error

	// Snapshot returns a consistent read view of the store, cheap to
	// obtain. The caller must Close it.
	Snapshot() (Snapshot, error)

	// Close releases the store. In-flight iterators and snapshots
	// become invalid.
	Close() error
}

// Batch accumulates mutations for one atomic commit. A Batch is not
// safe for concurrent use; it belongs to the single operation
// composing it.
type Batch interface {
	// Put records a value write.
	Put(key, value []byte)

	// Delete records a key deletion.
	Delete(key []byte)

	// Len reports the number of recorded mutations.
	Len() int

	// Commit applies all recorded mutations atomically. A committed
	// batch must not be reused.
	Commit(ctx context.Context) error
}

// Iterator walks a key range in ascending order. Usage:
//
//	for iterator.Next() {
//	    key := iterator.Key()
//	    value, err := iterator.Value()
//	    ...
//	}
//	err := iterator.Close()
type Iterator interface {
	// Next advances to the next entry, returning false when the
	// range is exhausted or an error occurred (reported by Close).
	Next() bool

	// Key returns the current key. Valid only until the next call to
	// Next; callers that retain it must copy.
	Key() []byte

	// Value returns the current value.
	Value() ([]byte, error)

	// Close releases the iterator and reports any iteration error.
	Close() error
}

// Snapshot is a consistent read-only view of the store at a fixed
// point in time.
type Snapshot interface {
	// Get returns the value stored at key in this view, or
	// ErrKeyNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Scan returns an iterator over [lo, hi) within this view.
	Scan(ctx context.Context, lo, hi []byte) (Iterator, error)

	// Close releases the view.
	Close() error
}
