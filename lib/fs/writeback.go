// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/stratafs/strata/lib/keycodec"
)

// The writeback cache hides LSM write latency for small, hot files:
// directory scribble, build artifacts, configuration. A cached file's
// entire pending body lives in memory and its KV writes are deferred
// until the entry is demoted — by eviction when the global budget B
// is exceeded, by the file crossing the per-file ceiling F, by any
// remove or shrinking truncate, or by Fsync.
//
// The cache holds only data that is not yet durable. On restart it is
// empty, and a file whose writes were never flushed returns to its
// last durable state; callers needing durability for a specific write
// call Fsync.
//
// Locking: the cache mutex guards the map, the LRU list, and the byte
// budget. Each entry's fields are guarded by the owning inode's lock,
// which every caller already holds.

// cacheEntry is one file's pending state.
type cacheEntry struct {
	// inode is the in-memory inode record, authoritative for size
	// and times while the entry lives.
	inode *Inode

	// body is the full pending file body; len(body) == inode.Size.
	body []byte

	// dirty is set when body or inode differ from durable state.
	dirty bool

	// durableSize and durableInline describe the file's last durable
	// state, fixing the stats delta and the stale chunk keys a
	// demotion must reconcile.
	durableSize   uint64
	durableInline bool

	element *list.Element
}

type writebackCache struct {
	// budget is the global byte budget B; ceiling is the per-file
	// size ceiling F.
	budget  int64
	ceiling uint64

	mu      sync.Mutex
	entries map[uint64]*cacheEntry
	lru     *list.List // front: most recently used
	used    int64
}

func newWritebackCache(budget int64, ceiling uint64) *writebackCache {
	return &writebackCache{
		budget:  budget,
		ceiling: ceiling,
		entries: make(map[uint64]*cacheEntry),
		lru:     list.New(),
	}
}

// lookup returns the entry for id, refreshing its LRU position.
// Callers hold id's inode lock.
func (c *writebackCache) lookup(id uint64) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	c.lru.MoveToFront(entry.element)
	return entry
}

// insert adds an entry for id. Callers hold id's inode lock.
func (c *writebackCache) insert(id uint64, entry *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.element = c.lru.PushFront(id)
	c.entries[id] = entry
	c.used += int64(len(entry.body))
}

// steal removes and returns the entry for id, or nil. Callers hold
// id's inode lock.
func (c *writebackCache) steal(id uint64) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil
	}
	c.lru.Remove(entry.element)
	delete(c.entries, id)
	c.used -= int64(len(entry.body))
	return entry
}

// resize adjusts the byte accounting after an entry's body changed
// length. Callers hold the inode lock.
func (c *writebackCache) resize(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used += delta
}

// overBudgetVictim returns the least recently used entry's inode id
// while the cache exceeds its budget, excluding the id the caller is
// operating on (whose lock it holds).
func (c *writebackCache) overBudgetVictim(exclude uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.used <= c.budget {
		return 0, false
	}
	for element := c.lru.Back(); element != nil; element = element.Prev() {
		id := element.Value.(uint64)
		if id != exclude {
			return id, true
		}
	}
	return 0, false
}

// ids returns every cached inode id. Used by FlushAll.
func (c *writebackCache) ids() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]uint64, 0, len(c.entries))
	for id := range c.entries {
		result = append(result, id)
	}
	return result
}

// demoteLocked materializes a stolen cache entry to the KV store: the
// inode record (with an inline body when it fits, chunks otherwise),
// deletion of durable chunks the new layout obsoletes, and the stats
// byte delta versus the last durable state — one batch.
//
// On failure the entry is re-inserted dirty, and the error surfaces
// to the operation that triggered the demotion.
//
// The caller holds the inode's exclusive lock and has stolen the
// entry from the cache.
func (f *FileSystem) demoteLocked(ctx context.Context, entry *cacheEntry) error {
	inode := entry.inode
	batch := f.store.NewBatch()

	size := inode.Size
	if size <= InlineThreshold {
		inode.InlineBody = entry.body
	} else {
		inode.InlineBody = nil
		for index := uint64(0); index < chunkCount(size); index++ {
			start := index * ChunkSize
			end := min(start+ChunkSize, size)
			batch.Put(keycodec.ChunkKey(inode.ID, index), entry.body[start:end])
		}
	}

	// Durable chunks beyond the new layout are stale: all of them
	// when the body went inline, the dropped tail otherwise.
	if !entry.durableInline {
		staleFrom := chunkCount(size)
		if size <= InlineThreshold {
			staleFrom = 0
		}
		f.chunks.purge(batch, inode.ID, staleFrom, chunkCount(entry.durableSize))
	}

	if err := f.inodes.put(batch, inode); err != nil {
		f.cache.insert(inode.ID, entry)
		return err
	}

	bytesDelta := int64(size) - int64(entry.durableSize)
	if err := f.stats.commit(ctx, batch, bytesDelta, 0); err != nil {
		f.cache.insert(inode.ID, entry)
		return fmt.Errorf("demoting inode %d: %w", inode.ID, err)
	}
	return nil
}

// demoteIfCached demotes id's cache entry if one exists, so a
// metadata mutation (link, rename, setattr) operates on — and
// commits against — the durable inode record. The caller holds id's
// exclusive lock.
func (f *FileSystem) demoteIfCached(ctx context.Context, id uint64) error {
	entry := f.cache.steal(id)
	if entry == nil || !entry.dirty {
		return nil
	}
	return f.demoteLocked(ctx, entry)
}

// evictOverBudget demotes least-recently-used entries until the cache
// fits its budget. It is called after an absorbing write, with no
// inode lock held, so victim lock acquisition cannot deadlock with
// multi-inode operations.
func (f *FileSystem) evictOverBudget(ctx context.Context) error {
	for {
		id, ok := f.cache.overBudgetVictim(0)
		if !ok {
			return nil
		}
		release := f.locks.acquire(id, true)
		entry := f.cache.steal(id)
		var err error
		if entry != nil && entry.dirty {
			err = f.demoteLocked(ctx, entry)
		}
		release()
		if err != nil {
			return err
		}
	}
}

// FlushAll demotes every dirty cache entry and, when awaitDurable is
// set, waits for the store to make everything preceding durable.
func (f *FileSystem) FlushAll(ctx context.Context, awaitDurable bool) error {
	for _, id := range f.cache.ids() {
		release := f.locks.acquire(id, true)
		entry := f.cache.steal(id)
		var err error
		if entry != nil && entry.dirty {
			err = f.demoteLocked(ctx, entry)
		}
		release()
		if err != nil {
			return err
		}
	}
	if err := f.store.Flush(ctx, awaitDurable); err != nil {
		return mapKVError(err)
	}
	return nil
}
