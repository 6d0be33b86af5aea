// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"

	"github.com/stratafs/strata/lib/keycodec"
)

// The snapshot clone is a shallow copy-on-write of a directory tree:
// directories are deep-cloned (fresh inode ids, re-parented, entries
// re-inserted under fresh cookies), while files, symlinks, and device
// nodes are shared by bumping their link counts. Cost is proportional
// to the directory tree, independent of file data size.
//
// Chunks are keyed by (inode, index), so a shared file inode is
// mutated in place by a write from either side. That is why snapshots
// are read-only: the engine enforces it at the View layer rather than
// pretending the data layer copies what it shares.
//
// The walk runs with the rename barrier held exclusively, so no
// cross-directory rename restructures the tree mid-clone. Entry
// listings are taken under each source directory's shared lock and
// then processed without it; an entry unlinked in the gap is skipped,
// exactly as a reader that enumerated a moment earlier would have
// missed it.

// cloneTree clones the contents of source directory sourceDir into
// the already-persisted empty directory destDir, recursing into
// subdirectories. Returns the number of entries cloned directly into
// destDir.
func (f *FileSystem) cloneTree(ctx context.Context, sourceDir, destDir uint64) (uint64, error) {
	entries, err := f.listAll(ctx, sourceDir)
	if err != nil {
		return 0, err
	}

	cookie, err := f.dirs.nextCookie(ctx, destDir)
	if err != nil {
		return 0, err
	}

	var cloned uint64
	for _, entry := range entries {
		cookie++
		ok, err := f.cloneEntry(ctx, destDir, entry, cookie)
		if err != nil {
			return 0, err
		}
		if ok {
			cloned++
		}
	}

	// Fix the destination directory's entry count now that the
	// walk knows it.
	if cloned > 0 {
		release := f.locks.acquire(destDir, true)
		defer release()
		destination, err := f.inodes.get(ctx, destDir)
		if err != nil {
			return 0, err
		}
		destination.EntryCount = cloned
		batch := f.store.NewBatch()
		if err := f.inodes.put(batch, destination); err != nil {
			return 0, err
		}
		if err := f.stats.commit(ctx, batch, 0, 0); err != nil {
			return 0, err
		}
	}
	return cloned, nil
}

// listAll snapshots a directory's full entry list under its shared
// lock.
func (f *FileSystem) listAll(ctx context.Context, directory uint64) ([]DirEntry, error) {
	release := f.locks.acquire(directory, false)
	defer release()

	var all []DirEntry
	cookie := uint64(0)
	for {
		entries, next, eof, err := f.dirs.scan(ctx, directory, cookie, 1024)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
		if eof {
			return all, nil
		}
		cookie = next
	}
}

// cloneEntry clones one source entry into destDir under the given
// cookie: a subdirectory is deep-cloned under a fresh inode, any
// other kind is shared with a link-count bump. Each entry commits its
// own batch carrying the inode mutation, both entry records, and the
// cookie counter. Returns false when the source child vanished
// concurrently.
func (f *FileSystem) cloneEntry(ctx context.Context, destDir uint64, entry DirEntry, cookie uint64) (bool, error) {
	if entry.Kind == KindDirectory {
		return f.cloneDirectoryEntry(ctx, destDir, entry, cookie)
	}

	release := f.locks.acquire(entry.Child, true)
	defer release()

	if err := f.demoteIfCached(ctx, entry.Child); err != nil {
		return false, err
	}
	child, err := f.inodes.get(ctx, entry.Child)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.logger.Debug("skipping entry unlinked during clone",
				"name", string(entry.Name), "inode", entry.Child)
			return false, nil
		}
		return false, err
	}

	batch := f.store.NewBatch()
	child.LinkCount++
	if err := f.inodes.put(batch, child); err != nil {
		return false, err
	}
	if err := f.dirs.stageInsert(batch, destDir, entry.Name, entry.Child, entry.Kind, cookie); err != nil {
		return false, err
	}
	batch.Put(keycodec.DirCookieKey(destDir), keycodec.EncodeCounter(cookie))
	if err := f.stats.commit(ctx, batch, 0, 0); err != nil {
		return false, err
	}
	return true, nil
}

// cloneDirectoryEntry allocates a fresh directory inode mirroring the
// source subdirectory's metadata, inserts it under destDir, and
// recurses into it.
func (f *FileSystem) cloneDirectoryEntry(ctx context.Context, destDir uint64, entry DirEntry, cookie uint64) (bool, error) {
	source, err := func() (*Inode, error) {
		release := f.locks.acquire(entry.Child, false)
		defer release()
		return f.inodes.get(ctx, entry.Child)
	}()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			f.logger.Debug("skipping directory removed during clone",
				"name", string(entry.Name), "inode", entry.Child)
			return false, nil
		}
		return false, err
	}

	id, err := f.inodes.allocate(ctx)
	if err != nil {
		return false, err
	}
	replica := *source
	replica.ID = id
	replica.Parent = destDir
	replica.LinkCount = 1
	replica.EntryCount = 0

	batch := f.store.NewBatch()
	if err := f.inodes.put(batch, &replica); err != nil {
		return false, err
	}
	if err := f.dirs.stageInsert(batch, destDir, entry.Name, id, KindDirectory, cookie); err != nil {
		return false, err
	}
	batch.Put(keycodec.DirCookieKey(destDir), keycodec.EncodeCounter(cookie))
	if err := f.stats.commit(ctx, batch, 0, 1); err != nil {
		return false, err
	}

	if _, err := f.cloneTree(ctx, entry.Child, id); err != nil {
		return false, err
	}
	return true, nil
}
