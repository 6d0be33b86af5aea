// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestReaddirEnumeratesAcrossCookieGaps(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")

	names := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("n%02d", i)
		mustCreate(t, e.view, directory.ID, name)
		names[name] = true
	}

	// Delete entries at scattered positions, leaving cookie gaps.
	for _, i := range []int{10, 20, 30} {
		name := fmt.Sprintf("n%02d", i)
		if err := e.view.Unlink(ctx, Root, directory.ID, []byte(name)); err != nil {
			t.Fatalf("Unlink %s: %v", name, err)
		}
		delete(names, name)
	}

	entries, _, eof, err := e.view.Readdir(ctx, Root, directory.ID, 0, 1000)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if !eof {
		t.Fatal("full enumeration should report eof")
	}
	if len(entries) != 97 {
		t.Fatalf("enumerated %d entries, want 97", len(entries))
	}
	for _, entry := range entries {
		if !names[string(entry.Name)] {
			t.Fatalf("unexpected entry %q", entry.Name)
		}
		delete(names, string(entry.Name))
	}
	if len(names) != 0 {
		t.Fatalf("missing entries: %v", names)
	}
}

func TestReaddirPagedEnumeration(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")

	const total = 1500
	for i := 0; i < total; i++ {
		mustCreate(t, e.view, directory.ID, fmt.Sprintf("entry-%04d", i))
	}

	seen := make(map[string]bool)
	cookie := uint64(0)
	var lastCookie uint64
	pages := 0
	for {
		entries, next, eof, err := e.view.Readdir(ctx, Root, directory.ID, cookie, 64)
		if err != nil {
			t.Fatalf("Readdir page %d: %v", pages, err)
		}
		for _, entry := range entries {
			if seen[string(entry.Name)] {
				t.Fatalf("entry %q enumerated twice", entry.Name)
			}
			seen[string(entry.Name)] = true
			// Cookies are strictly increasing within a session.
			if entry.Cookie <= lastCookie {
				t.Fatalf("cookie %d not greater than previous %d", entry.Cookie, lastCookie)
			}
			lastCookie = entry.Cookie
		}
		pages++
		if eof {
			break
		}
		cookie = next
	}
	if len(seen) != total {
		t.Fatalf("enumerated %d entries over %d pages, want %d", len(seen), pages, total)
	}
}

func TestReaddirPlusFetchesChildAttrs(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")

	file := mustCreate(t, e.view, directory.ID, "f")
	mustMkdir(t, e.view, directory.ID, "sub")

	entries, _, eof, err := e.view.ReaddirPlus(ctx, Root, directory.ID, 0, 100)
	if err != nil {
		t.Fatalf("ReaddirPlus: %v", err)
	}
	if !eof || len(entries) != 2 {
		t.Fatalf("ReaddirPlus = %d entries, eof=%v", len(entries), eof)
	}
	for _, entry := range entries {
		if entry.Inode == nil {
			t.Fatalf("entry %q has no inode", entry.Name)
		}
		if entry.Inode.ID != entry.Child {
			t.Fatalf("entry %q inode id %d != child %d", entry.Name, entry.Inode.ID, entry.Child)
		}
	}
	_ = file
}

func TestMkdirRmdirRestoresState(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	beforeBytes, beforeInodes := e.view.StatFS()
	beforeEntries, _, _, err := e.view.Readdir(ctx, Root, e.view.Root(), 0, 1000)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}

	mustMkdir(t, e.view, e.view.Root(), "transient")
	if err := e.view.Rmdir(ctx, Root, e.view.Root(), []byte("transient")); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}

	afterBytes, afterInodes := e.view.StatFS()
	if beforeBytes != afterBytes || beforeInodes != afterInodes {
		t.Fatalf("stats not restored: (%d,%d) -> (%d,%d)",
			beforeBytes, beforeInodes, afterBytes, afterInodes)
	}
	afterEntries, _, _, err := e.view.Readdir(ctx, Root, e.view.Root(), 0, 1000)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	if len(afterEntries) != len(beforeEntries) {
		t.Fatalf("entries not restored: %d -> %d", len(beforeEntries), len(afterEntries))
	}
}

func TestRmdirNonEmptyFails(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")
	mustCreate(t, e.view, directory.ID, "occupant")

	if err := e.view.Rmdir(ctx, Root, e.view.Root(), []byte("d")); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("Rmdir non-empty: err = %v, want ErrNotEmpty", err)
	}

	if err := e.view.Unlink(ctx, Root, directory.ID, []byte("occupant")); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := e.view.Rmdir(ctx, Root, e.view.Root(), []byte("d")); err != nil {
		t.Fatalf("Rmdir emptied: %v", err)
	}
}

func TestUnlinkOfDirectoryFails(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	mustMkdir(t, e.view, e.view.Root(), "d")

	if err := e.view.Unlink(ctx, Root, e.view.Root(), []byte("d")); !errors.Is(err, ErrIsDirectory) {
		t.Fatalf("Unlink of directory: err = %v, want ErrIsDirectory", err)
	}
}

func TestHardLinkSharesInode(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	file := mustCreate(t, e.view, e.view.Root(), "one")
	mustWrite(t, e.view, file.ID, 0, []byte("shared"))

	linked, err := e.view.Link(ctx, Root, file.ID, e.view.Root(), []byte("two"))
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if linked.ID != file.ID || linked.LinkCount != 2 {
		t.Fatalf("link result = id %d nlink %d", linked.ID, linked.LinkCount)
	}

	// Content readable through both names.
	resolved, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("two"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got := mustRead(t, e.view, resolved.ID, 0, 6); string(got) != "shared" {
		t.Fatalf("read through link = %q", got)
	}

	// Dropping one name keeps the inode alive.
	if err := e.view.Unlink(ctx, Root, e.view.Root(), []byte("one")); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	attrs, err := e.view.GetAttr(ctx, file.ID)
	if err != nil {
		t.Fatalf("GetAttr after first unlink: %v", err)
	}
	if attrs.LinkCount != 1 {
		t.Fatalf("nlink = %d, want 1", attrs.LinkCount)
	}

	// Dropping the last name destroys it.
	if err := e.view.Unlink(ctx, Root, e.view.Root(), []byte("two")); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := e.view.GetAttr(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAttr after last unlink: err = %v, want ErrNotFound", err)
	}
}

func TestLinkToDirectoryFails(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")

	if _, err := e.view.Link(ctx, Root, directory.ID, e.view.Root(), []byte("dlink")); !errors.Is(err, ErrIsDirectory) {
		t.Fatalf("Link to directory: err = %v, want ErrIsDirectory", err)
	}
}

func TestRenameBasic(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	file := mustCreate(t, e.view, e.view.Root(), "old")
	other := mustMkdir(t, e.view, e.view.Root(), "dir")

	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("old"), other.ID, []byte("new")); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("old")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("source name survives: err = %v", err)
	}
	moved, err := e.view.Lookup(ctx, Root, other.ID, []byte("new"))
	if err != nil {
		t.Fatalf("Lookup moved: %v", err)
	}
	if moved.ID != file.ID {
		t.Fatalf("moved inode %d, want %d", moved.ID, file.ID)
	}
	if moved.Parent != other.ID {
		t.Fatalf("moved parent = %d, want %d", moved.Parent, other.ID)
	}
}

func TestRenameOntoItselfIsNoop(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	mustCreate(t, e.view, e.view.Root(), "same")

	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("same"), e.view.Root(), []byte("same")); err != nil {
		t.Fatalf("self-rename: %v", err)
	}
	if _, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("same")); err != nil {
		t.Fatalf("entry lost by self-rename: %v", err)
	}
}

func TestRenameOverwritesFile(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	x := mustCreate(t, e.view, e.view.Root(), "x")
	y := mustCreate(t, e.view, e.view.Root(), "y")
	mustWrite(t, e.view, x.ID, 0, []byte("A"))
	mustWrite(t, e.view, y.ID, 0, pattern(1, 9*ChunkSize)) // chunk-backed victim

	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("x"), e.view.Root(), []byte("y")); err != nil {
		t.Fatalf("Rename overwrite: %v", err)
	}

	resolved, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("y"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if resolved.ID != x.ID {
		t.Fatalf("y resolves to %d, want %d", resolved.ID, x.ID)
	}
	if _, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("x survives: err = %v", err)
	}

	// The victim's inode is gone; after draining, its chunks too.
	if _, err := e.view.GetAttr(ctx, y.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("victim inode survives: err = %v", err)
	}
	if err := e.fs.DrainTombstones(ctx); err != nil {
		t.Fatalf("DrainTombstones: %v", err)
	}
	if n := countChunkKeys(t, e.store, y.ID); n != 0 {
		t.Fatalf("victim keeps %d chunk keys after drain", n)
	}
}

func TestRenameTypeRules(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	mustCreate(t, e.view, e.view.Root(), "file")
	mustMkdir(t, e.view, e.view.Root(), "dir")
	full := mustMkdir(t, e.view, e.view.Root(), "full")
	mustCreate(t, e.view, full.ID, "occupant")
	mustMkdir(t, e.view, e.view.Root(), "empty")

	// File over directory.
	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("file"), e.view.Root(), []byte("dir")); !errors.Is(err, ErrIsDirectory) {
		t.Fatalf("file over dir: err = %v, want ErrIsDirectory", err)
	}
	// Directory over file.
	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("dir"), e.view.Root(), []byte("file")); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("dir over file: err = %v, want ErrNotDirectory", err)
	}
	// Directory over non-empty directory.
	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("dir"), e.view.Root(), []byte("full")); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("dir over non-empty dir: err = %v, want ErrNotEmpty", err)
	}
	// Directory over empty directory is allowed.
	if err := e.view.Rename(ctx, Root, e.view.Root(), []byte("dir"), e.view.Root(), []byte("empty")); err != nil {
		t.Fatalf("dir over empty dir: %v", err)
	}
}

func TestEntryCountTracksMutations(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")

	for i := 0; i < 5; i++ {
		mustCreate(t, e.view, directory.ID, fmt.Sprintf("f%d", i))
	}
	attrs, err := e.view.GetAttr(ctx, directory.ID)
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attrs.EntryCount != 5 {
		t.Fatalf("entry count = %d, want 5", attrs.EntryCount)
	}

	if err := e.view.Unlink(ctx, Root, directory.ID, []byte("f0")); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	attrs, err = e.view.GetAttr(ctx, directory.ID)
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if attrs.EntryCount != 4 {
		t.Fatalf("entry count = %d, want 4", attrs.EntryCount)
	}
}

func TestDirEntryPairedRecordsInvariant(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	directory := mustMkdir(t, e.view, e.view.Root(), "d")
	mustCreate(t, e.view, directory.ID, "f")

	// Every lookup record has a companion scan record and vice
	// versa.
	entry, err := e.fs.dirs.lookup(ctx, directory.ID, []byte("f"))
	if err != nil {
		t.Fatalf("lookup record: %v", err)
	}
	entries, _, _, err := e.fs.dirs.scan(ctx, directory.ID, 0, 100)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 1 || entries[0].Cookie != entry.Cookie || entries[0].Child != entry.Child {
		t.Fatalf("records disagree: lookup %+v, scan %+v", entry, entries)
	}

	// Removal deletes both.
	if err := e.view.Unlink(ctx, Root, directory.ID, []byte("f")); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := e.fs.dirs.lookup(ctx, directory.ID, []byte("f")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lookup record survives: %v", err)
	}
	entries, _, _, err = e.fs.dirs.scan(ctx, directory.ID, 0, 100)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scan record survives: %+v", entries)
	}
}
