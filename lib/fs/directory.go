// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stratafs/strata/lib/codec"
	"github.com/stratafs/strata/lib/keycodec"
	"github.com/stratafs/strata/lib/kv"
)

// Directory entries are two companion records written in the same
// batch, never one without the other:
//
//   - the lookup record at DIR_ENTRY(parent, name), resolving a name
//     in O(1) and remembering its cookie so removal can find the scan
//     record;
//   - the scan record at DIR_SCAN(parent, cookie), placing the entry
//     in enumeration order.
//
// Cookies come from the per-directory DIR_COOKIE counter, are never
// reused within a directory, and are not dense: removal leaves gaps.
// Every enumerator therefore walks a key range; probing cookies
// sequentially would stop at the first gap.

// dirEntryValue is the persisted lookup record.
type dirEntryValue struct {
	Child  uint64    `cbor:"child"`
	Kind   InodeKind `cbor:"kind"`
	Cookie uint64    `cbor:"cookie"`
}

// dirScanValue is the persisted scan record.
type dirScanValue struct {
	Name  []byte    `cbor:"name"`
	Child uint64    `cbor:"child"`
	Kind  InodeKind `cbor:"kind"`
}

// DirEntry is one decoded directory entry as surfaced by Readdir.
type DirEntry struct {
	// Name is the entry's name, owned by the caller.
	Name []byte
	// Child is the referenced inode id.
	Child uint64
	// Kind is the referenced inode's kind, denormalized into the
	// entry so enumeration does not fetch inodes.
	Kind InodeKind
	// Cookie is the entry's enumeration position. Readdir starts at
	// the cookie it is given, inclusive, so passing this value back
	// yields this entry again; resuming after it takes Cookie+1 or
	// the nextCookie Readdir returned.
	Cookie uint64
}

// dirStore reads and mutates directory records. All mutation happens
// under the parent inode's exclusive lock, which is what makes the
// read-modify-write of the cookie counter sound.
type dirStore struct {
	store  kv.Store
	logger *slog.Logger
}

func newDirStore(store kv.Store, logger *slog.Logger) *dirStore {
	return &dirStore{store: store, logger: logger}
}

// lookup resolves name under parent via a single lookup-record get.
func (d *dirStore) lookup(ctx context.Context, parent uint64, name []byte) (*dirEntryValue, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: name of %d bytes", ErrInvalidArgument, len(name))
	}
	data, err := d.store.Get(ctx, keycodec.DirEntryKey(parent, name))
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, mapKVError(err)
	}
	var entry dirEntryValue
	if err := codec.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: undecodable entry %q in directory %d: %v",
			ErrInvalidData, name, parent, err)
	}
	if !validInodeRef(entry.Child) {
		return nil, fmt.Errorf("%w: entry %q in directory %d references inode %#x",
			ErrInvalidData, name, parent, entry.Child)
	}
	return &entry, nil
}

// nextCookie returns the directory's cookie counter (the last cookie
// allocated; zero for a fresh directory).
func (d *dirStore) nextCookie(ctx context.Context, parent uint64) (uint64, error) {
	data, err := d.store.Get(ctx, keycodec.DirCookieKey(parent))
	if errors.Is(err, kv.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, mapKVError(err)
	}
	counter, err := keycodec.DecodeCounter(data)
	if err != nil {
		return 0, fmt.Errorf("%w: cookie counter of directory %d: %v", ErrInvalidData, parent, err)
	}
	return counter, nil
}

// insert stages the three keys of a new entry — lookup record, scan
// record, counter bump — into the caller's batch and returns the
// allocated cookie. The caller holds the parent's exclusive lock and
// has already checked for collisions.
func (d *dirStore) insert(ctx context.Context, batch kv.Batch, parent uint64, name []byte,
	child uint64, kind InodeKind) (uint64, error) {
	counter, err := d.nextCookie(ctx, parent)
	if err != nil {
		return 0, err
	}
	cookie := counter + 1
	if err := d.stageInsert(batch, parent, name, child, kind, cookie); err != nil {
		return 0, err
	}
	batch.Put(keycodec.DirCookieKey(parent), keycodec.EncodeCounter(cookie))
	return cookie, nil
}

// stageInsert stages the lookup and scan records for an entry with a
// caller-allocated cookie. Used by insert and by the snapshot clone
// walk, which allocates a run of cookies itself.
func (d *dirStore) stageInsert(batch kv.Batch, parent uint64, name []byte,
	child uint64, kind InodeKind, cookie uint64) error {
	if !validName(name) {
		return fmt.Errorf("%w: name of %d bytes", ErrInvalidArgument, len(name))
	}
	entryData, err := codec.Marshal(dirEntryValue{Child: child, Kind: kind, Cookie: cookie})
	if err != nil {
		return fmt.Errorf("encoding entry %q: %w", name, err)
	}
	scanData, err := codec.Marshal(dirScanValue{Name: name, Child: child, Kind: kind})
	if err != nil {
		return fmt.Errorf("encoding scan record %q: %w", name, err)
	}
	batch.Put(keycodec.DirEntryKey(parent, name), entryData)
	batch.Put(keycodec.DirScanKey(parent, cookie), scanData)
	return nil
}

// remove stages deletion of an entry's two records into the caller's
// batch and returns the removed entry. The lookup record carries the
// cookie, which locates the scan record.
func (d *dirStore) remove(ctx context.Context, batch kv.Batch, parent uint64, name []byte) (*dirEntryValue, error) {
	entry, err := d.lookup(ctx, parent, name)
	if err != nil {
		return nil, err
	}
	batch.Delete(keycodec.DirEntryKey(parent, name))
	batch.Delete(keycodec.DirScanKey(parent, entry.Cookie))
	return entry, nil
}

// scan enumerates entries of parent in cookie order, starting at
// startCookie (0 means from the beginning), yielding at most max
// entries. It returns the entries, the cookie to resume after the
// last yielded entry, and whether the directory is exhausted.
//
// Records that fail to decode, carry an illegal name, or reference an
// out-of-band inode are treated as corruption: logged and skipped,
// per the enumeration error policy.
func (d *dirStore) scan(ctx context.Context, parent, startCookie uint64, max int) ([]DirEntry, uint64, bool, error) {
	if max <= 0 {
		return nil, startCookie, false, fmt.Errorf("%w: non-positive scan budget", ErrInvalidArgument)
	}

	lo, hi := keycodec.DirScanRangeFrom(parent, startCookie)
	iterator, err := d.store.Scan(ctx, lo, hi)
	if err != nil {
		return nil, 0, false, mapKVError(err)
	}
	defer iterator.Close()

	var entries []DirEntry
	nextCookie := startCookie
	eof := true
	for iterator.Next() {
		if len(entries) == max {
			eof = false
			break
		}
		_, cookie, err := keycodec.DecodeDirScanKey(iterator.Key())
		if err != nil {
			d.logger.Warn("skipping undecodable directory scan key",
				"directory", parent, "key", fmt.Sprintf("%x", iterator.Key()), "error", err)
			continue
		}
		data, err := iterator.Value()
		if err != nil {
			return nil, 0, false, mapKVError(err)
		}
		var record dirScanValue
		if err := codec.Unmarshal(data, &record); err != nil {
			d.logger.Warn("skipping undecodable directory scan record",
				"directory", parent, "cookie", cookie, "error", err)
			nextCookie = cookie + 1
			continue
		}
		if !validName(record.Name) || !validInodeRef(record.Child) {
			d.logger.Warn("skipping corrupt directory scan record",
				"directory", parent, "cookie", cookie,
				"name_length", len(record.Name), "child", record.Child)
			nextCookie = cookie + 1
			continue
		}
		entries = append(entries, DirEntry{
			Name:   append([]byte(nil), record.Name...),
			Child:  record.Child,
			Kind:   record.Kind,
			Cookie: cookie,
		})
		nextCookie = cookie + 1
	}
	if err := iterator.Close(); err != nil {
		return nil, 0, false, mapKVError(err)
	}
	return entries, nextCookie, eof, nil
}

// isEmpty reports whether parent has no scan records at all.
func (d *dirStore) isEmpty(ctx context.Context, parent uint64) (bool, error) {
	lo, hi := keycodec.DirScanRange(parent)
	iterator, err := d.store.Scan(ctx, lo, hi)
	if err != nil {
		return false, mapKVError(err)
	}
	defer iterator.Close()
	return !iterator.Next(), nil
}

// purge stages deletion of every directory record of parent: all
// lookup records, all scan records, and the cookie counter. Used when
// removing a directory inode.
func (d *dirStore) purge(ctx context.Context, batch kv.Batch, parent uint64) error {
	entryLo, entryHi := keycodec.DirEntryRange(parent)
	scanLo, scanHi := keycodec.DirScanRange(parent)
	for _, bounds := range [][2][]byte{{entryLo, entryHi}, {scanLo, scanHi}} {
		iterator, err := d.store.Scan(ctx, bounds[0], bounds[1])
		if err != nil {
			return mapKVError(err)
		}
		for iterator.Next() {
			batch.Delete(append([]byte(nil), iterator.Key()...))
		}
		if err := iterator.Close(); err != nil {
			return mapKVError(err)
		}
	}
	batch.Delete(keycodec.DirCookieKey(parent))
	return nil
}
