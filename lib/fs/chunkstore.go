// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratafs/strata/lib/keycodec"
	"github.com/stratafs/strata/lib/kv"
)

// truncateInlineDeleteChunks bounds how many dropped chunks a
// shrinking truncate deletes inside its own batch. Beyond it, the
// operation writes a single tombstone instead and the background
// drain removes the chunks, keeping truncate latency independent of
// file size.
const truncateInlineDeleteChunks = 64

// chunkStore reads and mutates fixed-size file body chunks. A chunk
// may be absent — the file is sparse there — and reads as zeroes. The
// last chunk of a file may be stored short.
type chunkStore struct {
	store kv.Store
}

func newChunkStore(store kv.Store) *chunkStore {
	return &chunkStore{store: store}
}

// read returns length bytes of file id starting at offset, given the
// file's current size. The caller has already clamped offset+length
// to size. The covered chunk range is fetched with one range scan;
// absent chunks zero-fill, and the head and tail chunks are trimmed
// to the requested bounds.
func (c *chunkStore) read(ctx context.Context, id, offset uint64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	result := make([]byte, length)

	first := offset / ChunkSize
	last := (offset + uint64(length) - 1) / ChunkSize
	lo, hi := keycodec.ChunkRangeFrom(id, first, last)

	iterator, err := c.store.Scan(ctx, lo, hi)
	if err != nil {
		return nil, mapKVError(err)
	}
	defer iterator.Close()

	for iterator.Next() {
		_, index, err := keycodec.DecodeChunkKey(iterator.Key())
		if err != nil {
			return nil, fmt.Errorf("%w: chunk key of inode %d: %v", ErrInvalidData, id, err)
		}
		data, err := iterator.Value()
		if err != nil {
			return nil, mapKVError(err)
		}
		if len(data) > ChunkSize {
			return nil, fmt.Errorf("%w: chunk %d of inode %d holds %d bytes",
				ErrInvalidData, index, id, len(data))
		}

		chunkStart := index * ChunkSize
		// Copy the overlap of [chunkStart, chunkStart+len(data))
		// and [offset, offset+length).
		from := uint64(0)
		to := uint64(0)
		if chunkStart < offset {
			from = offset - chunkStart
		} else {
			to = chunkStart - offset
		}
		if from < uint64(len(data)) {
			copy(result[to:], data[from:])
		}
	}
	if err := iterator.Close(); err != nil {
		return nil, mapKVError(err)
	}
	return result, nil
}

// write computes the chunk updates for writing data at offset and
// stages them into the caller's batch. Fully covered chunks are
// written blind; a partially covered head or tail chunk is
// read-modified-written. Absent partial chunks start as zeroes.
//
// oldSize is the file's size before the write; chunks beyond it are
// never read.
func (c *chunkStore) write(ctx context.Context, batch kv.Batch, id, offset uint64, data []byte, oldSize uint64) error {
	if len(data) == 0 {
		return nil
	}
	newSize := max(oldSize, offset+uint64(len(data)))

	first := offset / ChunkSize
	last := (offset + uint64(len(data)) - 1) / ChunkSize

	for index := first; index <= last; index++ {
		chunkStart := index * ChunkSize
		chunkLen := uint64(ChunkSize)
		if chunkStart+chunkLen > newSize {
			chunkLen = newSize - chunkStart
		}

		writeStart := uint64(0)
		if offset > chunkStart {
			writeStart = offset - chunkStart
		}
		writeEnd := chunkLen
		if offset+uint64(len(data)) < chunkStart+chunkLen {
			writeEnd = offset + uint64(len(data)) - chunkStart
		}

		var chunk []byte
		if writeStart == 0 && writeEnd == chunkLen {
			// Fully covered: write blind.
			chunk = make([]byte, chunkLen)
		} else {
			existing, err := c.getChunk(ctx, id, index, oldSize)
			if err != nil {
				return err
			}
			chunk = make([]byte, chunkLen)
			copy(chunk, existing)
		}
		copy(chunk[writeStart:writeEnd], data[chunkStart+writeStart-offset:])
		batch.Put(keycodec.ChunkKey(id, index), chunk)
	}
	return nil
}

// getChunk fetches one stored chunk, returning nil (zeroes) when the
// chunk is absent or lies entirely beyond oldSize.
func (c *chunkStore) getChunk(ctx context.Context, id, index, oldSize uint64) ([]byte, error) {
	if index >= chunkCount(oldSize) {
		return nil, nil
	}
	data, err := c.store.Get(ctx, keycodec.ChunkKey(id, index))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapKVError(err)
	}
	return data, nil
}

// truncateOutcome describes the deferred part of a shrinking
// truncate: when NeedsTombstone is set the caller must stage a
// tombstone covering chunk indexes [Lo, Hi).
type truncateOutcome struct {
	NeedsTombstone bool
	Lo, Hi         uint64
}

// truncate stages the chunk effects of resizing file id from oldSize
// to newSize. Growing is free — sparse chunks read as zeroes. A
// shrink trims the tail of the last kept chunk if it is cut
// mid-chunk, and removes all chunks past the new end: inline deletes
// when the dropped range is small, a tombstone otherwise.
func (c *chunkStore) truncate(ctx context.Context, batch kv.Batch, id, oldSize, newSize uint64) (truncateOutcome, error) {
	if newSize >= oldSize {
		return truncateOutcome{}, nil
	}

	keep := chunkCount(newSize)
	old := chunkCount(oldSize)

	// The cut may land mid-chunk: rewrite the kept tail chunk short.
	if keep > 0 && newSize%ChunkSize != 0 {
		lastIndex := keep - 1
		existing, err := c.getChunk(ctx, id, lastIndex, oldSize)
		if err != nil {
			return truncateOutcome{}, err
		}
		keptLen := newSize - lastIndex*ChunkSize
		trimmed := make([]byte, keptLen)
		copy(trimmed, existing)
		batch.Put(keycodec.ChunkKey(id, lastIndex), trimmed)
	}

	dropped := old - keep
	if dropped <= truncateInlineDeleteChunks {
		for index := keep; index < old; index++ {
			batch.Delete(keycodec.ChunkKey(id, index))
		}
		return truncateOutcome{}, nil
	}
	return truncateOutcome{NeedsTombstone: true, Lo: keep, Hi: old}, nil
}

// purge stages deletion of every chunk in [lo, hi) for inode id.
// Used for inline deletion of small files; large ranges go through
// the tombstone queue.
func (c *chunkStore) purge(batch kv.Batch, id, lo, hi uint64) {
	for index := lo; index < hi; index++ {
		batch.Delete(keycodec.ChunkKey(id, index))
	}
}
