// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stratafs/strata/lib/clock"
	"github.com/stratafs/strata/lib/codec"
	"github.com/stratafs/strata/lib/keycodec"
	"github.com/stratafs/strata/lib/kv"
)

// drainBatchChunks caps how many chunk deletions a single drain batch
// carries. The drain yields between batches so foreground operations
// are unaffected by a large backlog.
const drainBatchChunks = 1024

// drainMaxBackoff caps the retry backoff after a drain error.
const drainMaxBackoff = time.Minute

// tombstoneRecord schedules deletion of chunk indexes [Lo, Hi) of an
// inode whose link count dropped to zero or whose size shrank.
type tombstoneRecord struct {
	Inode uint64 `cbor:"inode"`
	Lo    uint64 `cbor:"lo"`
	Hi    uint64 `cbor:"hi"`
}

// tombstoneQueue defers large chunk deletions to a single background
// drain task. Tombstone keys sort by allocation sequence, so the
// drain processes them in insertion order.
//
// The drain is idempotent: a crash mid-drain leaves the tombstone in
// place and the next pass restarts it. Partially deleted ranges are
// harmless — absent chunks read as zeroes and the owning inode is
// already unreachable or already resized.
type tombstoneQueue struct {
	store  kv.Store
	chunks *chunkStore
	clock  clock.Clock
	logger *slog.Logger

	// interval paces the periodic drain; enqueues also kick it.
	interval time.Duration

	seqMu sync.Mutex
	seq   uint64

	kick chan struct{}
	done chan struct{}
}

func newTombstoneQueue(store kv.Store, chunks *chunkStore, clk clock.Clock,
	logger *slog.Logger, interval time.Duration) *tombstoneQueue {
	return &tombstoneQueue{
		store:    store,
		chunks:   chunks,
		clock:    clk,
		logger:   logger,
		interval: interval,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// loadSequence initializes the sequence allocator past every live
// tombstone. Sequence reuse after a full drain is harmless; ordering
// only matters among tombstones alive together.
func (q *tombstoneQueue) loadSequence(ctx context.Context) error {
	lo, hi := keycodec.TombstoneRange()
	iterator, err := q.store.Scan(ctx, lo, hi)
	if err != nil {
		return mapKVError(err)
	}
	defer iterator.Close()

	var last uint64
	found := false
	for iterator.Next() {
		seq, err := keycodec.DecodeTombstoneKey(iterator.Key())
		if err != nil {
			continue
		}
		last, found = seq, true
	}
	if err := iterator.Close(); err != nil {
		return mapKVError(err)
	}
	if found {
		q.seq = last + 1
	}
	return nil
}

// enqueue stages a tombstone covering chunks [lo, hi) of inode into
// the caller's batch. The caller kicks the drain after its batch
// commits.
func (q *tombstoneQueue) enqueue(batch kv.Batch, inode, lo, hi uint64) error {
	q.seqMu.Lock()
	seq := q.seq
	q.seq++
	q.seqMu.Unlock()

	data, err := codec.Marshal(tombstoneRecord{Inode: inode, Lo: lo, Hi: hi})
	if err != nil {
		return fmt.Errorf("encoding tombstone: %w", err)
	}
	batch.Put(keycodec.TombstoneKey(seq), data)
	return nil
}

// notify nudges the drain without blocking; a pending nudge absorbs
// further ones.
func (q *tombstoneQueue) notify() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// run drains until ctx is canceled. It is started once, at open, and
// owns all retry policy: transient store errors back off with a cap
// and never crash the task.
func (q *tombstoneQueue) run(ctx context.Context) {
	defer close(q.done)

	ticker := q.clock.NewTicker(q.interval)
	defer ticker.Stop()

	backoff := q.interval
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-q.kick:
		}

		if _, err := q.drainOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("tombstone drain failed, backing off",
				"error", err, "backoff", backoff)
			q.clock.Sleep(backoff)
			backoff = min(backoff*2, drainMaxBackoff)
			q.notify()
			continue
		}
		backoff = q.interval
	}
}

// wait blocks until the drain task has exited.
func (q *tombstoneQueue) wait() { <-q.done }

// drainOnce processes every live tombstone in sequence order and
// returns the number of tombstones fully drained.
func (q *tombstoneQueue) drainOnce(ctx context.Context) (int, error) {
	lo, hi := keycodec.TombstoneRange()
	iterator, err := q.store.Scan(ctx, lo, hi)
	if err != nil {
		return 0, mapKVError(err)
	}

	type pending struct {
		key    []byte
		record tombstoneRecord
	}
	var work []pending
	for iterator.Next() {
		data, err := iterator.Value()
		if err != nil {
			iterator.Close()
			return 0, mapKVError(err)
		}
		var record tombstoneRecord
		if err := codec.Unmarshal(data, &record); err != nil {
			q.logger.Warn("skipping undecodable tombstone",
				"key", fmt.Sprintf("%x", iterator.Key()), "error", err)
			continue
		}
		work = append(work, pending{
			key:    append([]byte(nil), iterator.Key()...),
			record: record,
		})
	}
	if err := iterator.Close(); err != nil {
		return 0, mapKVError(err)
	}

	drained := 0
	for _, item := range work {
		if err := q.drainTombstone(ctx, item.key, item.record); err != nil {
			return drained, err
		}
		drained++
	}
	return drained, nil
}

// drainTombstone deletes the tombstone's chunk range in capped
// batches, then removes the tombstone key in its own batch. Crashing
// between batches restarts the whole range on the next pass;
// re-deleting absent chunks is a no-op.
func (q *tombstoneQueue) drainTombstone(ctx context.Context, key []byte, record tombstoneRecord) error {
	for lo := record.Lo; lo < record.Hi; lo += drainBatchChunks {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		hi := min(lo+drainBatchChunks, record.Hi)
		batch := q.store.NewBatch()
		q.chunks.purge(batch, record.Inode, lo, hi)
		if err := batch.Commit(ctx); err != nil {
			return mapKVError(err)
		}
	}

	batch := q.store.NewBatch()
	batch.Delete(key)
	if err := batch.Commit(ctx); err != nil {
		return mapKVError(err)
	}
	q.logger.Debug("drained tombstone",
		"inode", record.Inode, "chunks", record.Hi-record.Lo)
	return nil
}
