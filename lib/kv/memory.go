// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package kv

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store for tests. It implements the same
// semantics the engine relies on from the production store: ordered
// scans over a view consistent at scan time, atomic batch commits,
// and point-in-time snapshots.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Len reports the number of live keys. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, string(key))
	return nil
}

// Scan implements Store. The iterator walks a copy of the range taken
// at call time, so concurrent mutation does not disturb it.
func (m *Memory) Scan(ctx context.Context, lo, hi []byte) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanLocked(lo, hi), nil
}

func (m *Memory) scanLocked(lo, hi []byte) Iterator {
	var keys []string
	for key := range m.entries {
		if key >= string(lo) && key < string(hi) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = append([]byte(nil), m.entries[key]...)
	}
	return &memoryIterator{keys: keys, values: values, position: -1}
}

// NewBatch implements Store.
func (m *Memory) NewBatch() Batch {
	return &memoryBatch{store: m}
}

// Flush implements Store. Memory is always "durable".
func (m *Memory) Flush(ctx context.Context, awaitDurable bool) error {
	return ctx.Err()
}

// Snapshot implements Store. The view is a full copy; acceptable for
// test-sized stores.
func (m *Memory) Snapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := make(map[string][]byte, len(m.entries))
	for key, value := range m.entries {
		copied[key] = append([]byte(nil), value...)
	}
	return &memorySnapshot{store: &Memory{entries: copied}}, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

type memoryBatch struct {
	store     *Memory
	mutations []mutation
	committed bool
}

func (b *memoryBatch) Put(key, value []byte) {
	b.mutations = append(b.mutations, mutation{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *memoryBatch) Delete(key []byte) {
	b.mutations = append(b.mutations, mutation{
		key:    append([]byte(nil), key...),
		delete: true,
	})
}

func (b *memoryBatch) Len() int { return len(b.mutations) }

func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, m := range b.mutations {
		if m.delete {
			delete(b.store.entries, string(m.key))
		} else {
			b.store.entries[string(m.key)] = m.value
		}
	}
	b.committed = true
	return nil
}

type memorySnapshot struct {
	store *Memory
}

func (s *memorySnapshot) Get(ctx context.Context, key []byte) ([]byte, error) {
	return s.store.Get(ctx, key)
}

func (s *memorySnapshot) Scan(ctx context.Context, lo, hi []byte) (Iterator, error) {
	return s.store.Scan(ctx, lo, hi)
}

func (s *memorySnapshot) Close() error { return nil }

type memoryIterator struct {
	keys     []string
	values   [][]byte
	position int
}

func (it *memoryIterator) Next() bool {
	it.position++
	return it.position < len(it.keys)
}

func (it *memoryIterator) Key() []byte {
	return []byte(it.keys[it.position])
}

func (it *memoryIterator) Value() ([]byte, error) {
	return it.values[it.position], nil
}

func (it *memoryIterator) Close() error { return nil }
