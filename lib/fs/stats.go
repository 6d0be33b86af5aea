// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stratafs/strata/lib/keycodec"
	"github.com/stratafs/strata/lib/kv"
)

// stats maintains the two global counters — used bytes and live
// inodes — as KV keys updated inside every mutating operation's
// batch, so they stay consistent with the data they describe.
//
// The counters are also mirrored in memory. The mutex serializes the
// read-modify-write across concurrent operations on different inodes;
// it is held from staging through commit, which is the only way the
// staged counter values and the committed state can agree.
type stats struct {
	mu         sync.Mutex
	usedBytes  uint64
	inodeCount uint64

	// Quotas; zero means unlimited.
	maxBytes  uint64
	maxInodes uint64
}

func loadStats(ctx context.Context, store kv.Store, maxBytes, maxInodes uint64) (*stats, error) {
	s := &stats{maxBytes: maxBytes, maxInodes: maxInodes}
	var err error
	if s.usedBytes, err = readCounter(ctx, store, keycodec.StatsUsedBytes); err != nil {
		return nil, err
	}
	if s.inodeCount, err = readCounter(ctx, store, keycodec.StatsInodeCount); err != nil {
		return nil, err
	}
	return s, nil
}

func readCounter(ctx context.Context, store kv.Store, tag byte) (uint64, error) {
	data, err := store.Get(ctx, keycodec.StatsKey(tag))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading stats counter %#x: %w", tag, mapKVError(err))
	}
	value, err := keycodec.DecodeCounter(data)
	if err != nil {
		return 0, fmt.Errorf("%w: stats counter %#x: %v", ErrInvalidData, tag, err)
	}
	return value, nil
}

// Totals returns the current counters.
func (s *stats) Totals() (usedBytes, inodeCount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytes, s.inodeCount
}

// commit applies byte and inode deltas: it checks quota, stages the
// adjusted counters into the batch, commits the batch, and on success
// adopts the new values. The mutex spans the whole sequence so no two
// operations interleave their counter read-modify-writes.
func (s *stats) commit(ctx context.Context, batch kv.Batch, bytesDelta, inodeDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newBytes, err := applyDelta(s.usedBytes, bytesDelta)
	if err != nil {
		return fmt.Errorf("%w: used-bytes counter: %v", ErrInvalidData, err)
	}
	newInodes, err := applyDelta(s.inodeCount, inodeDelta)
	if err != nil {
		return fmt.Errorf("%w: inode counter: %v", ErrInvalidData, err)
	}
	if s.maxBytes != 0 && bytesDelta > 0 && newBytes > s.maxBytes {
		return fmt.Errorf("%w: %d of %d bytes used", ErrNoSpace, s.usedBytes, s.maxBytes)
	}
	if s.maxInodes != 0 && inodeDelta > 0 && newInodes > s.maxInodes {
		return fmt.Errorf("%w: %d of %d inodes used", ErrNoSpace, s.inodeCount, s.maxInodes)
	}

	if bytesDelta != 0 {
		batch.Put(keycodec.StatsKey(keycodec.StatsUsedBytes), keycodec.EncodeCounter(newBytes))
	}
	if inodeDelta != 0 {
		batch.Put(keycodec.StatsKey(keycodec.StatsInodeCount), keycodec.EncodeCounter(newInodes))
	}

	if err := batch.Commit(ctx); err != nil {
		return mapKVError(err)
	}
	s.usedBytes = newBytes
	s.inodeCount = newInodes
	return nil
}

func applyDelta(current uint64, delta int64) (uint64, error) {
	if delta >= 0 {
		return current + uint64(delta), nil
	}
	decrease := uint64(-delta)
	if decrease > current {
		return 0, fmt.Errorf("counter underflow: %d - %d", current, decrease)
	}
	return current - decrease, nil
}
