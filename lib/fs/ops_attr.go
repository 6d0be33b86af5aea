// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/stratafs/strata/lib/keycodec"
)

// SetAttr selects the attributes SetAttr changes; nil fields are left
// alone.
type SetAttr struct {
	Mode  *uint16
	UID   *uint32
	GID   *uint32
	Size  *uint64
	Atime *time.Time
	Mtime *time.Time
}

// SetAttr updates an inode's metadata. A size change truncates the
// file: growing is free (sparse), shrinking trims the tail chunk and
// removes dropped chunks inline or via tombstone. ctime is always
// updated.
func (v *View) SetAttr(ctx context.Context, creds Credentials, id uint64, changes SetAttr) (*Inode, error) {
	if err := v.writable(); err != nil {
		return nil, err
	}

	release := v.fs.locks.acquire(id, true)
	defer release()

	// Operate on the durable record; a pending writeback body is
	// demoted first so the truncate below subsumes it.
	if err := v.fs.demoteIfCached(ctx, id); err != nil {
		return nil, err
	}
	inode, err := v.fs.inodes.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canSetAttr(inode, creds, changes); err != nil {
		return nil, err
	}
	if changes.Size != nil && inode.Kind != KindFile {
		if inode.Kind == KindDirectory {
			return nil, fmt.Errorf("inode %d: %w", id, ErrIsDirectory)
		}
		return nil, fmt.Errorf("inode %d is a %s: %w", id, inode.Kind, ErrInvalidArgument)
	}

	now := v.fs.clock.Now()
	batch := v.fs.store.NewBatch()

	var bytesDelta int64
	tombstoned := false
	if changes.Size != nil && *changes.Size != inode.Size {
		newSize := *changes.Size
		oldSize := inode.Size
		bytesDelta = int64(newSize) - int64(oldSize)

		switch {
		case inode.InlineBody != nil && newSize <= InlineThreshold:
			// Inline stays inline: pad or cut in place.
			body := inode.InlineBody
			if newSize > oldSize {
				body = append(body, make([]byte, newSize-oldSize)...)
			} else {
				body = body[:newSize]
			}
			inode.InlineBody = body

		case inode.InlineBody != nil:
			// Inline grows past the threshold: the body moves to
			// chunk 0 and the growth stays sparse.
			batch.Put(keycodec.ChunkKey(id, 0), paddedChunk(inode.InlineBody, min(newSize, ChunkSize)))
			inode.InlineBody = nil

		default:
			outcome, err := v.fs.chunks.truncate(ctx, batch, id, oldSize, newSize)
			if err != nil {
				return nil, err
			}
			if outcome.NeedsTombstone {
				if err := v.fs.tombstones.enqueue(batch, id, outcome.Lo, outcome.Hi); err != nil {
					return nil, err
				}
				tombstoned = true
			}
		}
		inode.Size = newSize
		stampTimes(inode, now, false, true, false)
	}

	if changes.Mode != nil {
		inode.Mode = *changes.Mode
	}
	if changes.UID != nil {
		inode.UID = *changes.UID
	}
	if changes.GID != nil {
		inode.GID = *changes.GID
	}
	if changes.Atime != nil {
		inode.Atime = changes.Atime.Unix()
		inode.AtimeNsec = uint32(changes.Atime.Nanosecond())
	}
	if changes.Mtime != nil {
		inode.Mtime = changes.Mtime.Unix()
		inode.MtimeNsec = uint32(changes.Mtime.Nanosecond())
	}
	stampTimes(inode, now, false, false, true)

	if err := v.fs.inodes.put(batch, inode); err != nil {
		return nil, err
	}
	if err := v.fs.stats.commit(ctx, batch, bytesDelta, 0); err != nil {
		return nil, err
	}
	if tombstoned {
		v.fs.tombstones.notify()
	}
	copied := *inode
	copied.InlineBody = nil
	return &copied, nil
}

// paddedChunk returns data zero-padded (or cut) to length bytes.
func paddedChunk(data []byte, length uint64) []byte {
	chunk := make([]byte, length)
	copy(chunk, data)
	return chunk
}
