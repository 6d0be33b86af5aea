// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stratafs/strata/lib/clock"
	"github.com/stratafs/strata/lib/kv"
)

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// testFS is one opened engine over an in-memory store, with a fake
// clock driving timestamps and background pacing.
type testFS struct {
	fs    *FileSystem
	view  *View
	store *kv.Memory
	clock *clock.FakeClock
}

func newTestFS(t *testing.T) *testFS {
	t.Helper()
	store := kv.NewMemory()
	return openTestFS(t, store, true)
}

func openTestFS(t *testing.T, store *kv.Memory, format bool) *testFS {
	t.Helper()
	ctx := context.Background()
	fakeClock := clock.Fake(testEpoch)
	options := Options{
		Store:  store,
		Clock:  fakeClock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if format {
		if err := Format(ctx, options); err != nil {
			t.Fatalf("Format: %v", err)
		}
	}
	engine, err := Open(ctx, options)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := engine.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	view, err := engine.DefaultView()
	if err != nil {
		t.Fatalf("DefaultView: %v", err)
	}
	return &testFS{fs: engine, view: view, store: store, clock: fakeClock}
}

// reopen simulates a process restart: the engine is closed (which
// flushes) — or abandoned, when clean is false — and a fresh engine
// opens over the same store.
func (e *testFS) reopen(t *testing.T, clean bool) *testFS {
	t.Helper()
	if clean {
		if err := e.fs.Close(context.Background()); err != nil {
			t.Fatalf("Close before reopen: %v", err)
		}
	} else {
		// Crash: stop the drain but skip the cache flush.
		e.fs.cancelDrain()
		e.fs.tombstones.wait()
	}
	// The original engine's cleanup will close it again at test
	// end; Close is idempotent enough for that to be harmless.
	return openTestFS(t, e.store, false)
}

func mustCreate(t *testing.T, v *View, parent uint64, name string) *Inode {
	t.Helper()
	inode, err := v.Create(context.Background(), Root, parent, []byte(name), 0o644)
	if err != nil {
		t.Fatalf("Create %q: %v", name, err)
	}
	return inode
}

func mustMkdir(t *testing.T, v *View, parent uint64, name string) *Inode {
	t.Helper()
	inode, err := v.Mkdir(context.Background(), Root, parent, []byte(name), 0o755)
	if err != nil {
		t.Fatalf("Mkdir %q: %v", name, err)
	}
	return inode
}

func mustWrite(t *testing.T, v *View, id, offset uint64, data []byte) {
	t.Helper()
	n, err := v.Write(context.Background(), Root, id, offset, data)
	if err != nil {
		t.Fatalf("Write inode %d: %v", id, err)
	}
	if n != len(data) {
		t.Fatalf("Write wrote %d of %d bytes", n, len(data))
	}
}

func mustRead(t *testing.T, v *View, id, offset uint64, length int) []byte {
	t.Helper()
	data, _, err := v.Read(context.Background(), Root, id, offset, length)
	if err != nil {
		t.Fatalf("Read inode %d: %v", id, err)
	}
	return data
}

func TestFormatAndOpen(t *testing.T) {
	e := newTestFS(t)

	root, err := e.view.GetAttr(context.Background(), e.view.Root())
	if err != nil {
		t.Fatalf("GetAttr root: %v", err)
	}
	if root.Kind != KindDirectory {
		t.Fatalf("root kind = %s", root.Kind)
	}

	usedBytes, inodeCount := e.view.StatFS()
	if usedBytes != 0 || inodeCount != 1 {
		t.Fatalf("fresh stats = (%d, %d), want (0, 1)", usedBytes, inodeCount)
	}

	if ds := e.view.Dataset(); ds.ID != PrimaryDatasetID || ds.Name != PrimaryDatasetName {
		t.Fatalf("default dataset = %+v", ds)
	}
}

func TestFormatTwiceFails(t *testing.T) {
	e := newTestFS(t)
	err := Format(context.Background(), Options{
		Store:  e.store,
		Clock:  e.clock,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if !errors.Is(err, ErrExist) {
		t.Fatalf("second Format: err = %v, want ErrExist", err)
	}
}

func TestOpenUnformattedFails(t *testing.T) {
	_, err := Open(context.Background(), Options{
		Store:  kv.NewMemory(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open unformatted: err = %v, want ErrNotFound", err)
	}
}

func TestCreateLookupGetAttr(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	created := mustCreate(t, e.view, e.view.Root(), "hello.txt")
	if created.Kind != KindFile || created.LinkCount != 1 {
		t.Fatalf("created inode = %+v", created)
	}

	found, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("hello.txt"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("Lookup resolved inode %d, want %d", found.ID, created.ID)
	}

	if _, err := e.view.Lookup(ctx, Root, e.view.Root(), []byte("absent")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup absent: err = %v, want ErrNotFound", err)
	}

	// Lookup under a file is not-dir.
	if _, err := e.view.Lookup(ctx, Root, created.ID, []byte("x")); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("Lookup under file: err = %v, want ErrNotDirectory", err)
	}

	// Name collision.
	if _, err := e.view.Create(ctx, Root, e.view.Root(), []byte("hello.txt"), 0o644); !errors.Is(err, ErrExist) {
		t.Fatalf("duplicate Create: err = %v, want ErrExist", err)
	}

	_, inodeCount := e.view.StatFS()
	if inodeCount != 2 {
		t.Fatalf("inode count = %d, want 2", inodeCount)
	}
}

func TestCreateRejectsBadNames(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	if _, err := e.view.Create(ctx, Root, e.view.Root(), nil, 0o644); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty name: err = %v", err)
	}
	long := make([]byte, MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := e.view.Create(ctx, Root, e.view.Root(), long, 0o644); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("overlong name: err = %v", err)
	}
}

func TestPermissionChecks(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()
	alice := Credentials{UID: 1000, GID: 1000}
	bob := Credentials{UID: 1001, GID: 1001}

	private, err := e.view.Mkdir(ctx, Root, e.view.Root(), []byte("private"), 0o700)
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	// Root-made directory is owned by root; alice cannot create in
	// a 0700 root-owned directory.
	if _, err := e.view.Create(ctx, alice, private.ID, []byte("f"), 0o644); !errors.Is(err, ErrPermission) {
		t.Fatalf("create in foreign 0700 dir: err = %v, want ErrPermission", err)
	}

	// A file owned by alice with 0600.
	owned, err := e.view.Create(ctx, Root, e.view.Root(), []byte("owned"), 0o600)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	mode := uint16(0o600)
	uid := uint32(1000)
	gid := uint32(1000)
	if _, err := e.view.SetAttr(ctx, Root, owned.ID, SetAttr{Mode: &mode, UID: &uid, GID: &gid}); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}

	if _, _, err := e.view.Read(ctx, bob, owned.ID, 0, 10); !errors.Is(err, ErrPermission) {
		t.Fatalf("foreign read of 0600: err = %v, want ErrPermission", err)
	}
	if _, err := e.view.Write(ctx, bob, owned.ID, 0, []byte("x")); !errors.Is(err, ErrPermission) {
		t.Fatalf("foreign write of 0600: err = %v, want ErrPermission", err)
	}
	if _, _, err := e.view.Read(ctx, alice, owned.ID, 0, 10); err != nil {
		t.Fatalf("owner read: %v", err)
	}

	// Non-owner cannot chmod; chown is root-only.
	newMode := uint16(0o644)
	if _, err := e.view.SetAttr(ctx, bob, owned.ID, SetAttr{Mode: &newMode}); !errors.Is(err, ErrPermission) {
		t.Fatalf("foreign chmod: err = %v, want ErrPermission", err)
	}
	otherUID := uint32(42)
	if _, err := e.view.SetAttr(ctx, alice, owned.ID, SetAttr{UID: &otherUID}); !errors.Is(err, ErrPermission) {
		t.Fatalf("non-root chown: err = %v, want ErrPermission", err)
	}
}

func TestMknodAndSymlink(t *testing.T) {
	e := newTestFS(t)
	ctx := context.Background()

	link, err := e.view.Symlink(ctx, Root, e.view.Root(), []byte("ln"), []byte("target/path"))
	if err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	target, err := e.view.ReadLink(ctx, link.ID)
	if err != nil {
		t.Fatalf("ReadLink: %v", err)
	}
	if string(target) != "target/path" {
		t.Fatalf("ReadLink = %q", target)
	}

	fifo, err := e.view.Mknod(ctx, Root, e.view.Root(), []byte("pipe"), KindFifo, 0o644, 0)
	if err != nil {
		t.Fatalf("Mknod fifo: %v", err)
	}
	if fifo.Kind != KindFifo {
		t.Fatalf("fifo kind = %s", fifo.Kind)
	}

	device, err := e.view.Mknod(ctx, Root, e.view.Root(), []byte("dev"), KindBlockDevice, 0o600, 0x0801)
	if err != nil {
		t.Fatalf("Mknod block device: %v", err)
	}
	if device.Rdev != 0x0801 {
		t.Fatalf("rdev = %#x", device.Rdev)
	}

	if _, err := e.view.Mknod(ctx, Root, e.view.Root(), []byte("bad"), KindFile, 0o644, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("Mknod of file kind: err = %v, want ErrInvalidArgument", err)
	}

	if _, err := e.view.ReadLink(ctx, fifo.ID); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ReadLink of fifo: err = %v", err)
	}
}
