// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"
)

// Create makes a regular file under parent and returns its inode.
// Fails ErrExist on a name collision.
func (v *View) Create(ctx context.Context, creds Credentials, parent uint64, name []byte, mode uint16) (*Inode, error) {
	return v.createEntry(ctx, creds, parent, name, func(id uint64, now inodeTimes) *Inode {
		return newChildInode(id, parent, KindFile, mode, creds, now)
	})
}

// Mkdir makes a directory under parent and returns its inode.
func (v *View) Mkdir(ctx context.Context, creds Credentials, parent uint64, name []byte, mode uint16) (*Inode, error) {
	return v.createEntry(ctx, creds, parent, name, func(id uint64, now inodeTimes) *Inode {
		return newChildInode(id, parent, KindDirectory, mode, creds, now)
	})
}

// Symlink makes a symbolic link to target under parent.
func (v *View) Symlink(ctx context.Context, creds Credentials, parent uint64, name, target []byte) (*Inode, error) {
	if len(target) == 0 {
		return nil, fmt.Errorf("%w: empty symlink target", ErrInvalidArgument)
	}
	return v.createEntry(ctx, creds, parent, name, func(id uint64, now inodeTimes) *Inode {
		inode := newChildInode(id, parent, KindSymlink, 0o777, creds, now)
		inode.SymlinkTarget = append([]byte(nil), target...)
		inode.Size = uint64(len(target))
		return inode
	})
}

// Mknod makes a device node, fifo, or socket under parent.
func (v *View) Mknod(ctx context.Context, creds Credentials, parent uint64, name []byte, kind InodeKind, mode uint16, rdev uint64) (*Inode, error) {
	switch kind {
	case KindBlockDevice, KindCharDevice, KindFifo, KindSocket:
	default:
		return nil, fmt.Errorf("%w: mknod of kind %s", ErrInvalidArgument, kind)
	}
	return v.createEntry(ctx, creds, parent, name, func(id uint64, now inodeTimes) *Inode {
		inode := newChildInode(id, parent, kind, mode, creds, now)
		if kind == KindBlockDevice || kind == KindCharDevice {
			inode.Rdev = rdev
		}
		return inode
	})
}

// inodeTimes carries one timestamp sample through inode builders.
type inodeTimes struct {
	sec  int64
	nsec uint32
}

func newChildInode(id, parent uint64, kind InodeKind, mode uint16, creds Credentials, now inodeTimes) *Inode {
	return &Inode{
		ID:        id,
		Kind:      kind,
		Mode:      mode,
		UID:       creds.UID,
		GID:       creds.GID,
		Atime:     now.sec,
		AtimeNsec: now.nsec,
		Mtime:     now.sec,
		MtimeNsec: now.nsec,
		Ctime:     now.sec,
		CtimeNsec: now.nsec,
		LinkCount: 1,
		Parent:    parent,
	}
}

// createEntry is the shared create/mkdir/symlink/mknod path: under
// the parent's exclusive lock it validates, allocates an inode, and
// commits one batch holding the child's record, the two directory
// entry records plus the cookie bump, the parent's bumped entry count
// and times, and the inode-count stat.
func (v *View) createEntry(ctx context.Context, creds Credentials, parent uint64, name []byte,
	build func(id uint64, now inodeTimes) *Inode) (*Inode, error) {
	if err := v.writable(); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: name of %d bytes", ErrInvalidArgument, len(name))
	}

	release := v.fs.locks.acquire(parent, true)
	defer release()

	directory, err := v.fs.inodes.get(ctx, parent)
	if err != nil {
		return nil, err
	}
	if directory.Kind != KindDirectory {
		return nil, fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
	}
	if err := canWriteEntry(directory, creds, nil); err != nil {
		return nil, err
	}

	switch _, err := v.fs.dirs.lookup(ctx, parent, name); {
	case err == nil:
		return nil, fmt.Errorf("%q: %w", name, ErrExist)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	id, err := v.fs.inodes.allocate(ctx)
	if err != nil {
		return nil, err
	}

	nowClock := v.fs.clock.Now()
	now := inodeTimes{sec: nowClock.Unix(), nsec: uint32(nowClock.Nanosecond())}
	child := build(id, now)

	batch := v.fs.store.NewBatch()
	if err := v.fs.inodes.put(batch, child); err != nil {
		return nil, err
	}
	if _, err := v.fs.dirs.insert(ctx, batch, parent, name, id, child.Kind); err != nil {
		return nil, err
	}

	directory.EntryCount++
	stampTimes(directory, nowClock, false, true, true)
	if err := v.fs.inodes.put(batch, directory); err != nil {
		return nil, err
	}

	if err := v.fs.stats.commit(ctx, batch, 0, 1); err != nil {
		return nil, err
	}
	return child, nil
}

// Link adds a hard link to an existing non-directory inode. The
// link count is bumped and a directory entry inserted in one batch.
func (v *View) Link(ctx context.Context, creds Credentials, id, dstParent uint64, dstName []byte) (*Inode, error) {
	if err := v.writable(); err != nil {
		return nil, err
	}
	if !validName(dstName) {
		return nil, fmt.Errorf("%w: name of %d bytes", ErrInvalidArgument, len(dstName))
	}

	release := v.fs.locks.acquireMany(id, dstParent)
	defer release()

	if err := v.fs.demoteIfCached(ctx, id); err != nil {
		return nil, err
	}
	child, err := v.fs.inodes.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if child.Kind == KindDirectory {
		// Hard links to directories would let the tree become a
		// graph.
		return nil, fmt.Errorf("inode %d: %w", id, ErrIsDirectory)
	}
	directory, err := v.fs.inodes.get(ctx, dstParent)
	if err != nil {
		return nil, err
	}
	if directory.Kind != KindDirectory {
		return nil, fmt.Errorf("inode %d: %w", dstParent, ErrNotDirectory)
	}
	if err := canWriteEntry(directory, creds, nil); err != nil {
		return nil, err
	}

	switch _, err := v.fs.dirs.lookup(ctx, dstParent, dstName); {
	case err == nil:
		return nil, fmt.Errorf("%q: %w", dstName, ErrExist)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	now := v.fs.clock.Now()
	batch := v.fs.store.NewBatch()

	child.LinkCount++
	stampTimes(child, now, false, false, true)
	if err := v.fs.inodes.put(batch, child); err != nil {
		return nil, err
	}
	if _, err := v.fs.dirs.insert(ctx, batch, dstParent, dstName, id, child.Kind); err != nil {
		return nil, err
	}

	directory.EntryCount++
	stampTimes(directory, now, false, true, true)
	if err := v.fs.inodes.put(batch, directory); err != nil {
		return nil, err
	}

	if err := v.fs.stats.commit(ctx, batch, 0, 0); err != nil {
		return nil, err
	}
	return child, nil
}
