// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/stratafs/strata/lib/kv"
)

// lockParentChild resolves name under parent, then takes both inode
// locks in ascending order and re-verifies the resolution, looping if
// a concurrent rename or remove moved the name between the unlocked
// read and the lock acquisition.
func (f *FileSystem) lockParentChild(ctx context.Context, parent uint64, name []byte) (release func(), child uint64, err error) {
	for {
		entry, err := f.dirs.lookup(ctx, parent, name)
		if err != nil {
			return nil, 0, err
		}
		release := f.locks.acquireMany(parent, entry.Child)

		verify, err := f.dirs.lookup(ctx, parent, name)
		if err != nil {
			release()
			return nil, 0, err
		}
		if verify.Child == entry.Child {
			return release, entry.Child, nil
		}
		release()
	}
}

// Unlink removes the entry name under parent and decrements the
// child's link count. A file whose last link goes — the engine keeps
// no open-handle state, so the last link is the end of the file's
// life — is reaped: small chunk sets are deleted in the same batch,
// large ones are covered by a tombstone the background drain
// processes.
func (v *View) Unlink(ctx context.Context, creds Credentials, parent uint64, name []byte) error {
	if err := v.writable(); err != nil {
		return err
	}
	if !validName(name) {
		return fmt.Errorf("%w: name of %d bytes", ErrInvalidArgument, len(name))
	}

	release, childID, err := v.fs.lockParentChild(ctx, parent, name)
	if err != nil {
		return err
	}
	defer release()

	directory, err := v.fs.inodes.get(ctx, parent)
	if err != nil {
		return err
	}
	if directory.Kind != KindDirectory {
		return fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
	}
	child, err := v.fs.inodes.get(ctx, childID)
	if err != nil {
		return err
	}
	if child.Kind == KindDirectory {
		return fmt.Errorf("%q: %w", name, ErrIsDirectory)
	}
	if err := canWriteEntry(directory, creds, child); err != nil {
		return err
	}

	now := v.fs.clock.Now()
	batch := v.fs.store.NewBatch()
	if _, err := v.fs.dirs.remove(ctx, batch, parent, name); err != nil {
		return err
	}

	directory.EntryCount--
	stampTimes(directory, now, false, true, true)
	if err := v.fs.inodes.put(batch, directory); err != nil {
		return err
	}

	bytesDelta, inodeDelta, tombstoned, err := v.fs.dropLink(ctx, batch, child, now)
	if err != nil {
		return err
	}
	if err := v.fs.stats.commit(ctx, batch, bytesDelta, inodeDelta); err != nil {
		return err
	}
	if tombstoned {
		v.fs.tombstones.notify()
	}
	return nil
}

// dropLink decrements child's link count inside batch. At zero the
// inode is destroyed: its writeback entry (if any) is discarded so
// the batch subsumes the never-flushed body, its record is deleted,
// and its durable chunks are removed inline or via tombstone. Returns
// the stats deltas and whether a tombstone was staged.
//
// The caller holds child's exclusive lock.
func (f *FileSystem) dropLink(ctx context.Context, batch kv.Batch, child *Inode, now time.Time) (bytesDelta, inodeDelta int64, tombstoned bool, err error) {
	if child.LinkCount > 1 {
		if err := f.demoteIfCached(ctx, child.ID); err != nil {
			return 0, 0, false, err
		}
		// The demotion may have rewritten the record; reload so the
		// link-count update does not resurrect pre-demotion state.
		reloaded, err := f.inodes.get(ctx, child.ID)
		if err != nil {
			return 0, 0, false, err
		}
		reloaded.LinkCount--
		stampTimes(reloaded, now, false, false, true)
		if err := f.inodes.put(batch, reloaded); err != nil {
			return 0, 0, false, err
		}
		return 0, 0, false, nil
	}

	// Last link. The pending cache body, if any, simply dies with
	// the inode; stats and chunk removal run against the durable
	// state the cache was hiding.
	size := child.Size
	inline := child.InlineBody != nil
	if entry := f.cache.steal(child.ID); entry != nil {
		size = entry.durableSize
		inline = entry.durableInline
	}

	f.inodes.delete(batch, child.ID)

	if !inline {
		chunks := chunkCount(size)
		if chunks <= truncateInlineDeleteChunks {
			f.chunks.purge(batch, child.ID, 0, chunks)
		} else {
			if err := f.tombstones.enqueue(batch, child.ID, 0, chunks); err != nil {
				return 0, 0, false, err
			}
			tombstoned = true
		}
	}
	return -int64(size), -1, tombstoned, nil
}

// Rmdir removes an empty directory. Fails ErrNotEmpty while any
// entry remains.
func (v *View) Rmdir(ctx context.Context, creds Credentials, parent uint64, name []byte) error {
	if err := v.writable(); err != nil {
		return err
	}
	if !validName(name) {
		return fmt.Errorf("%w: name of %d bytes", ErrInvalidArgument, len(name))
	}

	release, childID, err := v.fs.lockParentChild(ctx, parent, name)
	if err != nil {
		return err
	}
	defer release()

	directory, err := v.fs.inodes.get(ctx, parent)
	if err != nil {
		return err
	}
	if directory.Kind != KindDirectory {
		return fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
	}
	child, err := v.fs.inodes.get(ctx, childID)
	if err != nil {
		return err
	}
	if child.Kind != KindDirectory {
		return fmt.Errorf("%q: %w", name, ErrNotDirectory)
	}
	if err := canWriteEntry(directory, creds, child); err != nil {
		return err
	}

	empty, err := v.fs.dirs.isEmpty(ctx, childID)
	if err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%q: %w", name, ErrNotEmpty)
	}

	now := v.fs.clock.Now()
	batch := v.fs.store.NewBatch()
	if _, err := v.fs.dirs.remove(ctx, batch, parent, name); err != nil {
		return err
	}
	// The directory is empty, but its cookie counter key remains;
	// purge clears it.
	if err := v.fs.dirs.purge(ctx, batch, childID); err != nil {
		return err
	}
	v.fs.inodes.delete(batch, childID)

	directory.EntryCount--
	stampTimes(directory, now, false, true, true)
	if err := v.fs.inodes.put(batch, directory); err != nil {
		return err
	}
	return v.fs.stats.commit(ctx, batch, 0, -1)
}
