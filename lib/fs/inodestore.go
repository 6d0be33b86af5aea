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

// inodeStore persists inode records and allocates fresh inode ids.
//
// The allocator is a single SYSTEM key updated under a dedicated
// mutex and persisted synchronously on every allocation, so the
// counter never regresses regardless of the commit order of the
// operations that consumed the ids. A crash between allocation and
// the consuming operation's commit wastes an id, which is harmless:
// ids are monotonic, not dense.
type inodeStore struct {
	store kv.Store

	allocMu sync.Mutex
	nextID  uint64
}

func newInodeStore(store kv.Store, nextID uint64) *inodeStore {
	return &inodeStore{store: store, nextID: nextID}
}

// mapKVError translates store-level failures into engine error kinds.
func mapKVError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, kv.ErrInvalidValue):
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
}

// get loads an inode record.
func (s *inodeStore) get(ctx context.Context, id uint64) (*Inode, error) {
	data, err := s.store.Get(ctx, keycodec.InodeKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, fmt.Errorf("inode %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("inode %d: %w", id, mapKVError(err))
	}
	inode, err := decodeInode(data)
	if err != nil {
		return nil, fmt.Errorf("inode %d: %w", id, err)
	}
	return inode, nil
}

// put stages an inode record into the caller's batch.
func (s *inodeStore) put(batch kv.Batch, inode *Inode) error {
	data, err := encodeInode(inode)
	if err != nil {
		return err
	}
	batch.Put(keycodec.InodeKey(inode.ID), data)
	return nil
}

// delete stages removal of an inode record into the caller's batch.
func (s *inodeStore) delete(batch kv.Batch, id uint64) {
	batch.Delete(keycodec.InodeKey(id))
}

// allocate returns a fresh inode id, strictly greater than every id
// previously allocated, and persists the advanced counter before
// returning.
func (s *inodeStore) allocate(ctx context.Context) (uint64, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	id := s.nextID
	if id > maxNormalInode {
		return 0, fmt.Errorf("%w: inode id space exhausted", ErrNoSpace)
	}
	advanced := id + 1
	err := s.store.Put(ctx, keycodec.SystemKey(keycodec.SystemNextInode),
		keycodec.EncodeCounter(advanced))
	if err != nil {
		return 0, fmt.Errorf("persisting inode counter: %w", mapKVError(err))
	}
	s.nextID = advanced
	return id, nil
}

// loadNextInode reads the persisted allocator counter.
func loadNextInode(ctx context.Context, store kv.Store) (uint64, error) {
	data, err := store.Get(ctx, keycodec.SystemKey(keycodec.SystemNextInode))
	if err != nil {
		return 0, fmt.Errorf("reading inode counter: %w", mapKVError(err))
	}
	next, err := keycodec.DecodeCounter(data)
	if err != nil {
		return 0, fmt.Errorf("%w: inode counter: %v", ErrInvalidData, err)
	}
	return next, nil
}
