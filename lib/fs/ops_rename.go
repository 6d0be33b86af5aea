// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

// Rename moves srcName under srcParent to dstName under dstParent in
// one batch. Overwrite policy:
//
//   - renaming a name onto itself is a no-op and never fails ErrExist;
//   - a file may overwrite a file (the victim's link drops as in
//     Unlink);
//   - a directory may overwrite only an empty directory;
//   - a file over a directory fails ErrIsDirectory, a directory over
//     a file fails ErrNotDirectory.
//
// Cross-directory renames hold the rename barrier shared, keeping
// directory restructuring out from under a snapshot clone's tree
// walk.
func (v *View) Rename(ctx context.Context, creds Credentials, srcParent uint64, srcName []byte, dstParent uint64, dstName []byte) error {
	if err := v.writable(); err != nil {
		return err
	}
	if !validName(srcName) || !validName(dstName) {
		return fmt.Errorf("%w: rename name lengths %d and %d", ErrInvalidArgument, len(srcName), len(dstName))
	}
	if srcParent == dstParent && bytes.Equal(srcName, dstName) {
		// Verify the entry exists, then do nothing.
		release := v.fs.locks.acquire(srcParent, false)
		defer release()
		_, err := v.fs.dirs.lookup(ctx, srcParent, srcName)
		return err
	}

	v.fs.renameBarrier.RLock()
	defer v.fs.renameBarrier.RUnlock()

	for {
		done, err := v.tryRename(ctx, creds, srcParent, srcName, dstParent, dstName)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// tryRename resolves both names without locks, acquires every
// involved inode lock in ascending order, and re-verifies the
// resolutions; a concurrent move invalidating them retries (done =
// false).
func (v *View) tryRename(ctx context.Context, creds Credentials, srcParent uint64, srcName []byte, dstParent uint64, dstName []byte) (done bool, err error) {
	sourceEntry, err := v.fs.dirs.lookup(ctx, srcParent, srcName)
	if err != nil {
		return false, err
	}
	victimID := uint64(0)
	switch victimEntry, err := v.fs.dirs.lookup(ctx, dstParent, dstName); {
	case err == nil:
		victimID = victimEntry.Child
	case !errors.Is(err, ErrNotFound):
		return false, err
	}

	ids := []uint64{srcParent, dstParent, sourceEntry.Child}
	if victimID != 0 {
		ids = append(ids, victimID)
	}
	release := v.fs.locks.acquireMany(ids...)
	defer release()

	// Re-verify both resolutions under the locks.
	verify, err := v.fs.dirs.lookup(ctx, srcParent, srcName)
	if err != nil {
		return false, err
	}
	if verify.Child != sourceEntry.Child {
		return false, nil
	}
	switch verifyVictim, err := v.fs.dirs.lookup(ctx, dstParent, dstName); {
	case err == nil:
		if verifyVictim.Child != victimID {
			return false, nil
		}
	case errors.Is(err, ErrNotFound):
		if victimID != 0 {
			return false, nil
		}
	default:
		return false, err
	}

	source, err := v.fs.inodes.get(ctx, srcParent)
	if err != nil {
		return false, err
	}
	destination := source
	if dstParent != srcParent {
		if destination, err = v.fs.inodes.get(ctx, dstParent); err != nil {
			return false, err
		}
	}
	if source.Kind != KindDirectory {
		return false, fmt.Errorf("inode %d: %w", srcParent, ErrNotDirectory)
	}
	if destination.Kind != KindDirectory {
		return false, fmt.Errorf("inode %d: %w", dstParent, ErrNotDirectory)
	}

	child, err := v.fs.inodes.get(ctx, sourceEntry.Child)
	if err != nil {
		return false, err
	}
	if err := canWriteEntry(source, creds, child); err != nil {
		return false, err
	}

	var victim *Inode
	if victimID != 0 {
		if victim, err = v.fs.inodes.get(ctx, victimID); err != nil {
			return false, err
		}
		// Type compatibility of overwrite.
		switch {
		case child.Kind != KindDirectory && victim.Kind == KindDirectory:
			return false, fmt.Errorf("%q: %w", dstName, ErrIsDirectory)
		case child.Kind == KindDirectory && victim.Kind != KindDirectory:
			return false, fmt.Errorf("%q: %w", dstName, ErrNotDirectory)
		case child.Kind == KindDirectory && victim.Kind == KindDirectory:
			empty, err := v.fs.dirs.isEmpty(ctx, victimID)
			if err != nil {
				return false, err
			}
			if !empty {
				return false, fmt.Errorf("%q: %w", dstName, ErrNotEmpty)
			}
		}
	}
	if err := canWriteEntry(destination, creds, victim); err != nil {
		return false, err
	}

	if err := v.fs.demoteIfCached(ctx, child.ID); err != nil {
		return false, err
	}
	// demoteIfCached rewrote the durable record; reload so the
	// batch below does not resurrect pre-demotion state.
	if child, err = v.fs.inodes.get(ctx, child.ID); err != nil {
		return false, err
	}

	now := v.fs.clock.Now()
	batch := v.fs.store.NewBatch()

	if _, err := v.fs.dirs.remove(ctx, batch, srcParent, srcName); err != nil {
		return false, err
	}

	var bytesDelta, inodeDelta int64
	tombstoned := false
	if victim != nil {
		if _, err := v.fs.dirs.remove(ctx, batch, dstParent, dstName); err != nil {
			return false, err
		}
		if victim.Kind == KindDirectory {
			if err := v.fs.dirs.purge(ctx, batch, victimID); err != nil {
				return false, err
			}
			v.fs.inodes.delete(batch, victimID)
			inodeDelta--
		} else {
			bytesDelta, inodeDelta, tombstoned, err = v.fs.dropLink(ctx, batch, victim, now)
			if err != nil {
				return false, err
			}
		}
	}

	if _, err := v.fs.dirs.insert(ctx, batch, dstParent, dstName, child.ID, child.Kind); err != nil {
		return false, err
	}

	child.Parent = dstParent
	stampTimes(child, now, false, false, true)
	if err := v.fs.inodes.put(batch, child); err != nil {
		return false, err
	}

	source.EntryCount--
	stampTimes(source, now, false, true, true)
	if dstParent == srcParent {
		if victim == nil {
			source.EntryCount++
		}
		if err := v.fs.inodes.put(batch, source); err != nil {
			return false, err
		}
	} else {
		if err := v.fs.inodes.put(batch, source); err != nil {
			return false, err
		}
		if victim == nil {
			destination.EntryCount++
		}
		stampTimes(destination, now, false, true, true)
		if err := v.fs.inodes.put(batch, destination); err != nil {
			return false, err
		}
	}

	if err := v.fs.stats.commit(ctx, batch, bytesDelta, inodeDelta); err != nil {
		return false, err
	}
	if tombstoned {
		v.fs.tombstones.notify()
	}
	return true, nil
}
