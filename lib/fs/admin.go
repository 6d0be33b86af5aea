// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"
)

// Admin is the in-process administrative surface: dataset and
// snapshot lifecycle plus the raw range scan used by tooling.
// External RPC/HTTP surfaces wrap these calls one-to-one.
type Admin struct {
	fs *FileSystem
}

// Admin returns the administrative surface.
func (f *FileSystem) Admin() *Admin { return &Admin{fs: f} }

// Datasets lists every dataset and snapshot, ordered by id.
func (a *Admin) Datasets() []Dataset { return a.fs.registry.list() }

// DatasetInfo returns one dataset's record by name.
func (a *Admin) DatasetInfo(name string) (*Dataset, error) {
	return a.fs.registry.byName(name)
}

// DefaultDataset returns the id of the default dataset.
func (a *Admin) DefaultDataset() uint64 { return a.fs.registry.defaultID() }

// SetDefaultDataset repoints the default dataset by name.
func (a *Admin) SetDefaultDataset(ctx context.Context, name string) error {
	ds, err := a.fs.registry.byName(name)
	if err != nil {
		return err
	}
	return a.fs.registry.setDefault(ctx, ds.ID)
}

// CreateDataset makes a fresh, empty, writable dataset: a new root
// directory inode and a registry entry.
func (a *Admin) CreateDataset(ctx context.Context, name string) (*Dataset, error) {
	rootID, err := a.fs.inodes.allocate(ctx)
	if err != nil {
		return nil, err
	}
	now := a.fs.clock.Now()
	root := newDirectoryInode(rootID, rootID, 0o755, Root, now)

	batch := a.fs.store.NewBatch()
	if err := a.fs.inodes.put(batch, root); err != nil {
		return nil, err
	}
	if err := a.fs.stats.commit(ctx, batch, 0, 1); err != nil {
		return nil, err
	}

	registryBatch := a.fs.store.NewBatch()
	ds, err := a.fs.registry.create(ctx, registryBatch, Dataset{
		Name:      name,
		RootInode: rootID,
		CreatedAt: now.Unix(),
	})
	if err != nil {
		// The root inode is already durable; reclaim it so a failed
		// create leaves nothing behind.
		a.fs.reapOrphanRoot(ctx, rootID)
		return nil, err
	}
	return ds, nil
}

// Snapshot creates a read-only snapshot of the named source dataset
// via the copy-on-write directory clone. The rename barrier is held
// exclusively for the duration of the tree walk.
func (a *Admin) Snapshot(ctx context.Context, sourceName, snapshotName string) (*Dataset, error) {
	return a.cloneDataset(ctx, sourceName, snapshotName, true)
}

// Clone creates a writable dataset from the named source by the same
// directory walk as Snapshot. The shared-file hazard applies: cloned
// trees share file inodes with the source, and a write through either
// side is visible to both. Snapshot the source first when isolation
// matters.
func (a *Admin) Clone(ctx context.Context, sourceName, cloneName string) (*Dataset, error) {
	return a.cloneDataset(ctx, sourceName, cloneName, false)
}

func (a *Admin) cloneDataset(ctx context.Context, sourceName, newName string, snapshot bool) (*Dataset, error) {
	source, err := a.fs.registry.byName(sourceName)
	if err != nil {
		return nil, err
	}

	a.fs.renameBarrier.Lock()
	defer a.fs.renameBarrier.Unlock()

	sourceRoot, err := func() (*Inode, error) {
		release := a.fs.locks.acquire(source.RootInode, false)
		defer release()
		return a.fs.inodes.get(ctx, source.RootInode)
	}()
	if err != nil {
		return nil, err
	}

	rootID, err := a.fs.inodes.allocate(ctx)
	if err != nil {
		return nil, err
	}
	replica := *sourceRoot
	replica.ID = rootID
	replica.Parent = rootID
	replica.LinkCount = 1
	replica.EntryCount = 0

	batch := a.fs.store.NewBatch()
	if err := a.fs.inodes.put(batch, &replica); err != nil {
		return nil, err
	}
	if err := a.fs.stats.commit(ctx, batch, 0, 1); err != nil {
		return nil, err
	}

	if _, err := a.fs.cloneTree(ctx, source.RootInode, rootID); err != nil {
		return nil, err
	}

	parentID := source.ID
	registryBatch := a.fs.store.NewBatch()
	ds, err := a.fs.registry.create(ctx, registryBatch, Dataset{
		Name:       newName,
		RootInode:  rootID,
		CreatedAt:  a.fs.clock.Now().Unix(),
		ParentID:   &parentID,
		ParentUUID: source.UUID,
		ReadOnly:   snapshot,
		IsSnapshot: snapshot,
	})
	if err != nil {
		// Roll the half-built tree back through the normal teardown
		// path.
		if teardownErr := a.fs.removeTree(ctx, rootID); teardownErr != nil {
			a.fs.logger.Warn("orphaned clone tree after failed dataset create",
				"root", rootID, "error", teardownErr)
		}
		return nil, err
	}
	a.fs.tombstones.notify()
	return ds, nil
}

// DeleteDataset removes the named dataset or snapshot: the registry
// entry goes first, then the tree is torn down, decrementing link
// counts and tombstoning file bodies whose last reference dies.
func (a *Admin) DeleteDataset(ctx context.Context, name string) error {
	ds, err := a.fs.registry.byName(name)
	if err != nil {
		return err
	}

	a.fs.renameBarrier.Lock()
	defer a.fs.renameBarrier.Unlock()

	if _, err := a.fs.registry.remove(ctx, ds.ID); err != nil {
		return err
	}
	if err := a.fs.removeTree(ctx, ds.RootInode); err != nil {
		return err
	}
	a.fs.tombstones.notify()
	return nil
}

// removeTree tears down a directory tree: entries are dropped
// depth-first, shared inodes lose one link, exclusively owned ones
// are reaped with their chunks.
func (f *FileSystem) removeTree(ctx context.Context, directory uint64) error {
	entries, err := f.listAll(ctx, directory)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Kind == KindDirectory {
			if err := f.removeTree(ctx, entry.Child); err != nil {
				return err
			}
			continue
		}

		release := f.locks.acquire(entry.Child, true)
		child, err := f.inodes.get(ctx, entry.Child)
		if err != nil {
			release()
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		batch := f.store.NewBatch()
		bytesDelta, inodeDelta, _, err := f.dropLink(ctx, batch, child, f.clock.Now())
		if err != nil {
			release()
			return err
		}
		err = f.stats.commit(ctx, batch, bytesDelta, inodeDelta)
		release()
		if err != nil {
			return err
		}
	}

	release := f.locks.acquire(directory, true)
	defer release()
	batch := f.store.NewBatch()
	if err := f.dirs.purge(ctx, batch, directory); err != nil {
		return err
	}
	f.inodes.delete(batch, directory)
	return f.stats.commit(ctx, batch, 0, -1)
}

// reapOrphanRoot removes a root inode left behind by a failed
// dataset create. Best effort; an orphan that survives is invisible
// and harmless.
func (f *FileSystem) reapOrphanRoot(ctx context.Context, id uint64) {
	batch := f.store.NewBatch()
	f.inodes.delete(batch, id)
	if err := f.stats.commit(ctx, batch, 0, -1); err != nil {
		f.logger.Warn("orphaned dataset root inode", "inode", id, "error", err)
	}
}

// DebugRecord is one raw key-value pair surfaced by DebugScan.
type DebugRecord struct {
	Key   []byte
	Value []byte
}

// DebugScan returns up to max raw records in [lo, hi), values
// already unsealed by the encrypting layer. The scan runs over a
// pinned store snapshot so tooling sees one consistent view even
// while operations commit. Tooling only.
func (a *Admin) DebugScan(ctx context.Context, lo, hi []byte, max int) ([]DebugRecord, error) {
	if max <= 0 || max > 10000 {
		return nil, fmt.Errorf("%w: debug scan budget %d", ErrInvalidArgument, max)
	}
	snapshot, err := a.fs.store.Snapshot()
	if err != nil {
		return nil, mapKVError(err)
	}
	defer snapshot.Close()

	iterator, err := snapshot.Scan(ctx, lo, hi)
	if err != nil {
		return nil, mapKVError(err)
	}
	defer iterator.Close()

	var records []DebugRecord
	for iterator.Next() {
		if len(records) == max {
			break
		}
		value, err := iterator.Value()
		if err != nil {
			return nil, mapKVError(err)
		}
		records = append(records, DebugRecord{
			Key:   append([]byte(nil), iterator.Key()...),
			Value: value,
		})
	}
	if err := iterator.Close(); err != nil {
		return nil, mapKVError(err)
	}
	return records, nil
}
