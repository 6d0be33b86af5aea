// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package keycodec

import (
	"bytes"
	"testing"
)

func TestInodeKeyRoundtrip(t *testing.T) {
	for _, id := range []uint64{0, 1, 42, 1 << 32, ^uint64(0)} {
		key := InodeKey(id)
		decoded, err := DecodeInodeKey(key)
		if err != nil {
			t.Fatalf("DecodeInodeKey(%d): %v", id, err)
		}
		if decoded != id {
			t.Fatalf("roundtrip: got %d, want %d", decoded, id)
		}
	}
}

func TestInodeKeyOrdering(t *testing.T) {
	// Lexicographic key order must equal numeric id order.
	ids := []uint64{0, 1, 255, 256, 1 << 16, 1 << 32, ^uint64(0) - 1, ^uint64(0)}
	for i := 1; i < len(ids); i++ {
		if bytes.Compare(InodeKey(ids[i-1]), InodeKey(ids[i])) >= 0 {
			t.Fatalf("InodeKey(%d) does not sort before InodeKey(%d)", ids[i-1], ids[i])
		}
	}
}

func TestDirEntryKeyRoundtrip(t *testing.T) {
	key := DirEntryKey(7, []byte("hello.txt"))
	parent, name, err := DecodeDirEntryKey(key)
	if err != nil {
		t.Fatalf("DecodeDirEntryKey: %v", err)
	}
	if parent != 7 || string(name) != "hello.txt" {
		t.Fatalf("roundtrip: got (%d, %q)", parent, name)
	}
}

func TestDirEntryRangeBounds(t *testing.T) {
	lo, hi := DirEntryRange(7)

	inside := [][]byte{
		DirEntryKey(7, []byte{0x00}),
		DirEntryKey(7, []byte("a")),
		DirEntryKey(7, bytes.Repeat([]byte{0xff}, MaxNameLength)),
	}
	for _, key := range inside {
		if bytes.Compare(key, lo) < 0 || bytes.Compare(key, hi) >= 0 {
			t.Fatalf("key %x outside [lo, hi)", key)
		}
	}

	outside := [][]byte{
		DirEntryKey(6, []byte("zzz")),
		DirEntryKey(8, []byte{0x00}),
		InodeKey(7),
	}
	for _, key := range outside {
		if bytes.Compare(key, lo) >= 0 && bytes.Compare(key, hi) < 0 {
			t.Fatalf("key %x inside [lo, hi), want outside", key)
		}
	}
}

func TestDirScanKeyOrdering(t *testing.T) {
	// Within a directory, scan keys sort by cookie.
	previous := DirScanKey(3, 0)
	for _, cookie := range []uint64{1, 2, 100, 1 << 40} {
		key := DirScanKey(3, cookie)
		if bytes.Compare(previous, key) >= 0 {
			t.Fatalf("scan keys out of order at cookie %d", cookie)
		}
		previous = key
	}
}

func TestDirScanRangeFrom(t *testing.T) {
	lo, hi := DirScanRangeFrom(3, 50)

	if key := DirScanKey(3, 49); bytes.Compare(key, lo) >= 0 {
		t.Fatal("cookie 49 should sort before the resumed range")
	}
	if key := DirScanKey(3, 50); !bytes.Equal(key, lo) {
		t.Fatal("range should begin exactly at the start cookie")
	}
	if key := DirScanKey(3, ^uint64(0)); bytes.Compare(key, hi) >= 0 {
		t.Fatal("max cookie should remain inside the range")
	}
	if key := DirScanKey(4, 0); bytes.Compare(key, hi) < 0 {
		t.Fatal("next directory's scan keys must be outside the range")
	}
}

func TestChunkKeyRoundtrip(t *testing.T) {
	key := ChunkKey(9, 1234)
	id, index, err := DecodeChunkKey(key)
	if err != nil {
		t.Fatalf("DecodeChunkKey: %v", err)
	}
	if id != 9 || index != 1234 {
		t.Fatalf("roundtrip: got (%d, %d)", id, index)
	}
}

func TestChunkRangeMaxInode(t *testing.T) {
	// The range for the largest possible inode id must still have a
	// strict upper bound.
	lo, hi := ChunkRange(^uint64(0))
	key := ChunkKey(^uint64(0), 5)
	if bytes.Compare(key, lo) < 0 || bytes.Compare(key, hi) >= 0 {
		t.Fatal("chunk of max inode id outside its own range")
	}
	if bytes.Compare(lo, hi) >= 0 {
		t.Fatal("empty range for max inode id")
	}
}

func TestChunkRangeFrom(t *testing.T) {
	lo, hi := ChunkRangeFrom(9, 2, 4)
	for index := uint64(2); index <= 4; index++ {
		key := ChunkKey(9, index)
		if bytes.Compare(key, lo) < 0 || bytes.Compare(key, hi) >= 0 {
			t.Fatalf("chunk %d outside [lo, hi)", index)
		}
	}
	for _, index := range []uint64{0, 1, 5, 100} {
		key := ChunkKey(9, index)
		if bytes.Compare(key, lo) >= 0 && bytes.Compare(key, hi) < 0 {
			t.Fatalf("chunk %d inside [lo, hi), want outside", index)
		}
	}
}

func TestChunkPrefixSortsAfterMetadata(t *testing.T) {
	chunk := ChunkKey(1, 0)
	for _, key := range [][]byte{
		InodeKey(^uint64(0)),
		DirEntryKey(^uint64(0), bytes.Repeat([]byte{0xff}, 8)),
		TombstoneKey(^uint64(0)),
		DatasetRegistryKey(),
	} {
		if bytes.Compare(key, chunk) >= 0 {
			t.Fatalf("metadata key %x does not sort before chunk keys", key)
		}
	}
}

func TestTombstoneOrderIsSequenceOrder(t *testing.T) {
	lo, hi := TombstoneRange()
	previous := TombstoneKey(0)
	for _, seq := range []uint64{1, 7, 1 << 20} {
		key := TombstoneKey(seq)
		if bytes.Compare(previous, key) >= 0 {
			t.Fatalf("tombstone keys out of order at seq %d", seq)
		}
		if bytes.Compare(key, lo) < 0 || bytes.Compare(key, hi) >= 0 {
			t.Fatalf("tombstone %d outside TombstoneRange", seq)
		}
		previous = key
	}
}

func TestCounterRoundtrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 1 << 53, ^uint64(0)} {
		decoded, err := DecodeCounter(EncodeCounter(v))
		if err != nil {
			t.Fatalf("DecodeCounter: %v", err)
		}
		if decoded != v {
			t.Fatalf("roundtrip: got %d, want %d", decoded, v)
		}
	}
	if _, err := DecodeCounter([]byte{1, 2, 3}); err == nil {
		t.Fatal("short counter value should fail to decode")
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	if _, err := DecodeInodeKey(ChunkKey(1, 2)); err == nil {
		t.Fatal("DecodeInodeKey accepted a chunk key")
	}
	if _, _, err := DecodeChunkKey(InodeKey(1)); err == nil {
		t.Fatal("DecodeChunkKey accepted an inode key")
	}
	if _, _, err := DecodeDirScanKey(DirCookieKey(1)); err == nil {
		t.Fatal("DecodeDirScanKey accepted a cookie key")
	}
}
