// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"fmt"

	"github.com/stratafs/strata/lib/keycodec"
)

// Read returns up to length bytes of the file at offset, in cache →
// inline → chunk order of preference. Reads at or past end of file
// return an empty slice with eof set; sparse holes read as zeroes.
func (v *View) Read(ctx context.Context, creds Credentials, id, offset uint64, length int) (data []byte, eof bool, err error) {
	if length < 0 {
		return nil, false, fmt.Errorf("%w: negative read length", ErrInvalidArgument)
	}

	release := v.fs.locks.acquire(id, false)
	defer release()

	// Cache hit: the pending body is the file.
	if entry := v.fs.cache.lookup(id); entry != nil {
		if err := accessCheck(entry.inode, creds, permRead); err != nil {
			return nil, false, err
		}
		return sliceBody(entry.body, offset, length)
	}

	inode, err := v.fs.inodes.get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if inode.Kind != KindFile {
		if inode.Kind == KindDirectory {
			return nil, false, fmt.Errorf("inode %d: %w", id, ErrIsDirectory)
		}
		return nil, false, fmt.Errorf("inode %d is a %s: %w", id, inode.Kind, ErrInvalidArgument)
	}
	if err := accessCheck(inode, creds, permRead); err != nil {
		return nil, false, err
	}

	if inode.InlineBody != nil {
		return sliceBody(inode.InlineBody, offset, length)
	}

	if offset >= inode.Size {
		return nil, true, nil
	}
	clamped := length
	if offset+uint64(length) > inode.Size {
		clamped = int(inode.Size - offset)
	}
	data, err = v.fs.chunks.read(ctx, id, offset, clamped)
	if err != nil {
		return nil, false, err
	}
	return data, offset+uint64(clamped) >= inode.Size, nil
}

// sliceBody cuts [offset, offset+length) out of an in-memory body
// with read-at-EOF semantics.
func sliceBody(body []byte, offset uint64, length int) ([]byte, bool, error) {
	size := uint64(len(body))
	if offset >= size {
		return nil, true, nil
	}
	end := offset + uint64(length)
	if end > size {
		end = size
	}
	return append([]byte(nil), body[offset:end]...), end >= size, nil
}

// Write stores data at offset. A write whose resulting size stays
// within the writeback ceiling is absorbed in memory and its KV write
// deferred; anything larger goes straight to chunks in one batch
// updating chunks, size, times, and stats.
func (v *View) Write(ctx context.Context, creds Credentials, id, offset uint64, data []byte) (int, error) {
	if err := v.writable(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	absorbed, n, err := v.writeLocked(ctx, creds, id, offset, data)
	if err != nil {
		return 0, err
	}
	if absorbed {
		// Budget eviction runs with no inode lock held; a flush
		// failure surfaces to this writer.
		if err := v.fs.evictOverBudget(ctx); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// writeLocked performs the locked portion of Write and reports
// whether the write was absorbed by the cache.
func (v *View) writeLocked(ctx context.Context, creds Credentials, id, offset uint64, data []byte) (absorbed bool, n int, err error) {
	release := v.fs.locks.acquire(id, true)
	defer release()

	now := v.fs.clock.Now()

	// Already cached: mutate the pending body, or demote first when
	// this write pushes the file past the ceiling.
	if entry := v.fs.cache.lookup(id); entry != nil {
		if err := accessCheck(entry.inode, creds, permWrite); err != nil {
			return false, 0, err
		}
		newSize := max(entry.inode.Size, offset+uint64(len(data)))
		if newSize <= v.fs.cache.ceiling {
			grown := applyToBody(entry, offset, data)
			v.fs.cache.resize(grown)
			stampTimes(entry.inode, now, false, true, true)
			entry.dirty = true
			return true, len(data), nil
		}
		stolen := v.fs.cache.steal(id)
		if stolen != nil && stolen.dirty {
			if err := v.fs.demoteLocked(ctx, stolen); err != nil {
				return false, 0, err
			}
		}
	}

	inode, err := v.fs.inodes.get(ctx, id)
	if err != nil {
		return false, 0, err
	}
	if inode.Kind != KindFile {
		if inode.Kind == KindDirectory {
			return false, 0, fmt.Errorf("inode %d: %w", id, ErrIsDirectory)
		}
		return false, 0, fmt.Errorf("inode %d is a %s: %w", id, inode.Kind, ErrInvalidArgument)
	}
	if err := accessCheck(inode, creds, permWrite); err != nil {
		return false, 0, err
	}

	newSize := max(inode.Size, offset+uint64(len(data)))

	// Admission: small resulting files are absorbed into the cache.
	if newSize <= v.fs.cache.ceiling {
		body, err := v.fs.currentBody(ctx, inode)
		if err != nil {
			return false, 0, err
		}
		entry := &cacheEntry{
			inode:         inode,
			body:          body,
			durableSize:   inode.Size,
			durableInline: inode.InlineBody != nil || inode.Size == 0,
			dirty:         true,
		}
		inode.InlineBody = nil
		applyToBody(entry, offset, data)
		stampTimes(inode, now, false, true, true)
		v.fs.cache.insert(id, entry)
		return true, len(data), nil
	}

	// Direct path: one batch with the affected chunks, the inode,
	// and the byte delta.
	oldSize := inode.Size
	batch := v.fs.store.NewBatch()

	if inode.InlineBody != nil {
		// The inline body materializes as chunk 0, merged with the
		// overlapping head of this write.
		chunk0 := paddedChunk(inode.InlineBody, min(newSize, ChunkSize))
		if offset < ChunkSize {
			end := min(offset+uint64(len(data)), ChunkSize)
			copy(chunk0[offset:end], data[:end-offset])
		}
		batch.Put(keycodec.ChunkKey(id, 0), chunk0)
		if offset+uint64(len(data)) > ChunkSize {
			tail := data
			tailOffset := offset
			if offset < ChunkSize {
				tail = data[ChunkSize-offset:]
				tailOffset = ChunkSize
			}
			if err := v.fs.chunks.write(ctx, batch, id, tailOffset, tail, 0); err != nil {
				return false, 0, err
			}
		}
		inode.InlineBody = nil
	} else {
		if err := v.fs.chunks.write(ctx, batch, id, offset, data, oldSize); err != nil {
			return false, 0, err
		}
	}

	inode.Size = newSize
	stampTimes(inode, now, false, true, true)
	if err := v.fs.inodes.put(batch, inode); err != nil {
		return false, 0, err
	}
	if err := v.fs.stats.commit(ctx, batch, int64(newSize)-int64(oldSize), 0); err != nil {
		return false, 0, err
	}
	return false, len(data), nil
}

// currentBody materializes a file's current content in memory for
// cache admission. The file is at most the cache ceiling long.
func (f *FileSystem) currentBody(ctx context.Context, inode *Inode) ([]byte, error) {
	if inode.InlineBody != nil {
		return append([]byte(nil), inode.InlineBody...), nil
	}
	if inode.Size == 0 {
		return nil, nil
	}
	return f.chunks.read(ctx, inode.ID, 0, int(inode.Size))
}

// applyToBody overlays data at offset onto the entry's body, growing
// it (zero-filled) as needed, and returns the growth in bytes.
func applyToBody(entry *cacheEntry, offset uint64, data []byte) int64 {
	needed := offset + uint64(len(data))
	grown := int64(0)
	if needed > uint64(len(entry.body)) {
		grown = int64(needed) - int64(len(entry.body))
		entry.body = append(entry.body, make([]byte, needed-uint64(len(entry.body)))...)
	}
	copy(entry.body[offset:], data)
	entry.inode.Size = uint64(len(entry.body))
	return grown
}

// Fsync demotes the file's writeback entry and waits for the store
// to make every preceding write durable.
func (v *View) Fsync(ctx context.Context, id uint64) error {
	release := v.fs.locks.acquire(id, true)
	entry := v.fs.cache.steal(id)
	var err error
	if entry != nil && entry.dirty {
		err = v.fs.demoteLocked(ctx, entry)
	}
	release()
	if err != nil {
		return err
	}
	if err := v.fs.store.Flush(ctx, true); err != nil {
		return mapKVError(err)
	}
	return nil
}
