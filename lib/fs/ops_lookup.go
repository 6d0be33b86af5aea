// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// readdirPlusFetchers bounds the parallel child-inode fetches one
// ReaddirPlus issues.
const readdirPlusFetchers = 8

// Lookup resolves name under parent and returns the child's inode.
// Fails ErrNotDirectory when parent is not a directory and
// ErrNotFound when the name is absent.
func (v *View) Lookup(ctx context.Context, creds Credentials, parent uint64, name []byte) (*Inode, error) {
	child, err := func() (uint64, error) {
		release := v.fs.locks.acquire(parent, false)
		defer release()

		directory, err := v.fs.inodes.get(ctx, parent)
		if err != nil {
			return 0, err
		}
		if directory.Kind != KindDirectory {
			return 0, fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
		}
		if err := accessCheck(directory, creds, permExec); err != nil {
			return 0, err
		}
		entry, err := v.fs.dirs.lookup(ctx, parent, name)
		if err != nil {
			return 0, err
		}
		return entry.Child, nil
	}()
	if err != nil {
		return nil, err
	}
	return v.GetAttr(ctx, child)
}

// GetAttr returns the inode record. For a file resident in the
// writeback cache, size and times come from the cached state.
func (v *View) GetAttr(ctx context.Context, id uint64) (*Inode, error) {
	release := v.fs.locks.acquire(id, false)
	defer release()
	return v.fs.getAttrLocked(ctx, id)
}

// getAttrLocked reads an inode with the cache consulted first. The
// caller holds id's lock (either mode).
func (f *FileSystem) getAttrLocked(ctx context.Context, id uint64) (*Inode, error) {
	if entry := f.cache.lookup(id); entry != nil {
		copied := *entry.inode
		copied.InlineBody = nil
		return &copied, nil
	}
	return f.inodes.get(ctx, id)
}

// Access probes whether creds may access the inode with the
// requested permission bits (an OR of 4 read, 2 write, 1 execute).
func (v *View) Access(ctx context.Context, creds Credentials, id uint64, mask uint16) error {
	inode, err := v.GetAttr(ctx, id)
	if err != nil {
		return err
	}
	if mask&permWrite != 0 {
		if err := v.writable(); err != nil {
			return err
		}
	}
	return accessCheck(inode, creds, mask)
}

// ReadLink returns a symlink's target bytes.
func (v *View) ReadLink(ctx context.Context, id uint64) ([]byte, error) {
	release := v.fs.locks.acquire(id, false)
	defer release()

	inode, err := v.fs.inodes.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inode.Kind != KindSymlink {
		return nil, fmt.Errorf("inode %d is a %s: %w", id, inode.Kind, ErrInvalidArgument)
	}
	return append([]byte(nil), inode.SymlinkTarget...), nil
}

// Readdir enumerates parent's entries in cookie order. A zero cookie
// starts from the beginning; any returned nextCookie may be passed
// back verbatim to resume. eof is set when the directory is
// exhausted.
//
// The engine does not store "." and ".."; adapters synthesize them.
func (v *View) Readdir(ctx context.Context, creds Credentials, parent, cookie uint64, max int) (entries []DirEntry, nextCookie uint64, eof bool, err error) {
	release := v.fs.locks.acquire(parent, false)
	defer release()

	directory, err := v.fs.inodes.get(ctx, parent)
	if err != nil {
		return nil, 0, false, err
	}
	if directory.Kind != KindDirectory {
		return nil, 0, false, fmt.Errorf("inode %d: %w", parent, ErrNotDirectory)
	}
	if err := accessCheck(directory, creds, permRead); err != nil {
		return nil, 0, false, err
	}
	return v.fs.dirs.scan(ctx, parent, cookie, max)
}

// DirEntryPlus is a directory entry paired with its child's inode.
// Inode is nil when the child vanished between enumeration and
// fetch.
type DirEntryPlus struct {
	DirEntry
	Inode *Inode
}

// ReaddirPlus is Readdir with each entry's child inode fetched in
// parallel. Child fetches run after the directory lock is released,
// each under its own inode lock only, so the fan-out cannot entangle
// with multi-inode operations.
func (v *View) ReaddirPlus(ctx context.Context, creds Credentials, parent, cookie uint64, max int) (entries []DirEntryPlus, nextCookie uint64, eof bool, err error) {
	plain, nextCookie, eof, err := v.Readdir(ctx, creds, parent, cookie, max)
	if err != nil {
		return nil, 0, false, err
	}

	entries = make([]DirEntryPlus, len(plain))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(readdirPlusFetchers)
	for i, entry := range plain {
		i, entry := i, entry
		group.Go(func() error {
			inode, err := v.GetAttr(groupCtx, entry.Child)
			if err != nil {
				// A concurrent unlink between scan and fetch is
				// not the enumerator's problem; the entry is
				// returned without attributes.
				if !errors.Is(err, ErrNotFound) {
					return err
				}
				inode = nil
			}
			entries[i] = DirEntryPlus{DirEntry: entry, Inode: inode}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, 0, false, err
	}
	return entries, nextCookie, eof, nil
}
