// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMemoryGetPutDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.Get(ctx, []byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get missing key: err = %v, want ErrKeyNotFound", err)
	}

	if err := store.Put(ctx, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, err := store.Get(ctx, []byte("k"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("Get = %q, want %q", value, "v")
	}

	if err := store.Delete(ctx, []byte("k")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, []byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get after Delete: err = %v, want ErrKeyNotFound", err)
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, []byte("k")); err != nil {
		t.Fatalf("Delete absent key: %v", err)
	}
}

func TestMemoryScanOrderAndBounds(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for _, key := range []string{"b", "a", "d", "c", "e"} {
		if err := store.Put(ctx, []byte(key), []byte("v-"+key)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	iterator, err := store.Scan(ctx, []byte("b"), []byte("e"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer iterator.Close()

	var keys []string
	for iterator.Next() {
		keys = append(keys, string(iterator.Key()))
	}
	want := []string{"b", "c", "d"}
	if len(keys) != len(want) {
		t.Fatalf("scanned %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("scanned %v, want %v", keys, want)
		}
	}
}

func TestMemoryBatchAtomicVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if err := store.Put(ctx, []byte("old"), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	batch := store.NewBatch()
	batch.Put([]byte("new"), []byte("y"))
	batch.Delete([]byte("old"))
	if batch.Len() != 2 {
		t.Fatalf("Len = %d, want 2", batch.Len())
	}

	// Nothing visible before commit.
	if _, err := store.Get(ctx, []byte("new")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("batch effects visible before Commit")
	}

	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := store.Get(ctx, []byte("new")); err != nil {
		t.Fatalf("Get after Commit: %v", err)
	}
	if _, err := store.Get(ctx, []byte("old")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatal("deleted key still present after Commit")
	}
}

func TestMemorySnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if err := store.Put(ctx, []byte("k"), []byte("before")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snapshot, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer snapshot.Close()

	if err := store.Put(ctx, []byte("k"), []byte("after")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	value, err := snapshot.Get(ctx, []byte("k"))
	if err != nil {
		t.Fatalf("snapshot Get: %v", err)
	}
	if string(value) != "before" {
		t.Fatalf("snapshot observed later write: %q", value)
	}
}

func TestMemoryScanConsistentAtCallTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key-%02d", i)
		if err := store.Put(ctx, []byte(key), []byte{byte(i)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	iterator, err := store.Scan(ctx, []byte("key-00"), []byte("key-99"))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	defer iterator.Close()

	// Mutations after Scan must not disturb the iteration.
	if err := store.Delete(ctx, []byte("key-05")); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	count := 0
	for iterator.Next() {
		count++
	}
	if count != 10 {
		t.Fatalf("iterated %d entries, want 10", count)
	}
}
