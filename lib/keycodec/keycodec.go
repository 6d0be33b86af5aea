// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package keycodec

import (
	"encoding/binary"
	"fmt"
)

// Key-kind prefixes. A key's first byte determines its kind; kinds
// sort in this order in the store.
const (
	// PrefixInode keys inode records: prefix ‖ u64 inode id.
	PrefixInode byte = 0x01

	// PrefixDirEntry keys name→child lookup records:
	// prefix ‖ u64 parent id ‖ name bytes.
	PrefixDirEntry byte = 0x02

	// PrefixDirScan keys enumeration records, ordered by cookie:
	// prefix ‖ u64 parent id ‖ u64 cookie.
	PrefixDirScan byte = 0x03

	// PrefixDirCookie keys the per-directory cookie counter:
	// prefix ‖ u64 parent id.
	PrefixDirCookie byte = 0x04

	// PrefixStats keys global counters: prefix ‖ tag byte.
	PrefixStats byte = 0x05

	// PrefixSystem keys one-off records (format record, next inode
	// id): prefix ‖ tag byte.
	PrefixSystem byte = 0x06

	// PrefixTombstone keys pending chunk-range deletions:
	// prefix ‖ u64 sequence. Key order is drain order.
	PrefixTombstone byte = 0x07

	// PrefixDataset keys dataset and snapshot records:
	// prefix ‖ u64 dataset id.
	PrefixDataset byte = 0x08

	// PrefixDatasetRegistry is the single-key name→id index and
	// default-dataset pointer.
	PrefixDatasetRegistry byte = 0x09

	// PrefixChunk keys file body chunks: prefix ‖ u64 inode id ‖
	// u64 chunk index. 0xFE keeps bulk data sorted after all
	// metadata kinds.
	PrefixChunk byte = 0xFE
)

// Stats counter tags.
const (
	// StatsUsedBytes tags the total-used-bytes counter.
	StatsUsedBytes byte = 0x01
	// StatsInodeCount tags the live-inode-count counter.
	StatsInodeCount byte = 0x02
)

// System record tags.
const (
	// SystemFormat tags the format record written at first format.
	SystemFormat byte = 0x01
	// SystemNextInode tags the persisted next-inode-id counter.
	SystemNextInode byte = 0x02
)

// MaxNameLength is the longest directory entry name the codec will
// encode or decode, in bytes.
const MaxNameLength = 255

// InodeKey returns the key of inode id's record.
func InodeKey(id uint64) []byte {
	key := make([]byte, 9)
	key[0] = PrefixInode
	binary.BigEndian.PutUint64(key[1:], id)
	return key
}

// DecodeInodeKey is the inverse of InodeKey.
func DecodeInodeKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != PrefixInode {
		return 0, fmt.Errorf("keycodec: not an inode key: %x", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

// DirEntryKey returns the lookup key for name under parent.
func DirEntryKey(parent uint64, name []byte) []byte {
	key := make([]byte, 9+len(name))
	key[0] = PrefixDirEntry
	binary.BigEndian.PutUint64(key[1:], parent)
	copy(key[9:], name)
	return key
}

// DecodeDirEntryKey is the inverse of DirEntryKey. The returned name
// aliases the input key.
func DecodeDirEntryKey(key []byte) (parent uint64, name []byte, err error) {
	if len(key) < 10 || key[0] != PrefixDirEntry {
		return 0, nil, fmt.Errorf("keycodec: not a directory entry key: %x", key)
	}
	name = key[9:]
	if len(name) > MaxNameLength {
		return 0, nil, fmt.Errorf("keycodec: directory entry name exceeds %d bytes", MaxNameLength)
	}
	return binary.BigEndian.Uint64(key[1:9]), name, nil
}

// DirEntryRange returns the half-open key range [lo, hi) covering
// every lookup record under parent.
func DirEntryRange(parent uint64) (lo, hi []byte) {
	return prefixedIDRange(PrefixDirEntry, parent)
}

// DirScanKey returns the enumeration key for cookie under parent.
func DirScanKey(parent, cookie uint64) []byte {
	key := make([]byte, 17)
	key[0] = PrefixDirScan
	binary.BigEndian.PutUint64(key[1:], parent)
	binary.BigEndian.PutUint64(key[9:], cookie)
	return key
}

// DecodeDirScanKey is the inverse of DirScanKey.
func DecodeDirScanKey(key []byte) (parent, cookie uint64, err error) {
	if len(key) != 17 || key[0] != PrefixDirScan {
		return 0, 0, fmt.Errorf("keycodec: not a directory scan key: %x", key)
	}
	return binary.BigEndian.Uint64(key[1:9]), binary.BigEndian.Uint64(key[9:17]), nil
}

// DirScanRange returns the half-open key range [lo, hi) covering
// every enumeration record under parent.
func DirScanRange(parent uint64) (lo, hi []byte) {
	return prefixedIDRange(PrefixDirScan, parent)
}

// DirScanRangeFrom returns the half-open key range covering the
// enumeration records under parent with cookie ≥ startCookie.
// Enumerators resume here with the continuation cookie a previous scan
// returned; cookies are sparse, so probing them sequentially instead
// would stop at the first deleted-entry gap.
func DirScanRangeFrom(parent, startCookie uint64) (lo, hi []byte) {
	_, hi = prefixedIDRange(PrefixDirScan, parent)
	return DirScanKey(parent, startCookie), hi
}

// DirCookieKey returns the key of parent's cookie counter.
func DirCookieKey(parent uint64) []byte {
	key := make([]byte, 9)
	key[0] = PrefixDirCookie
	binary.BigEndian.PutUint64(key[1:], parent)
	return key
}

// StatsKey returns the key of the counter identified by tag.
func StatsKey(tag byte) []byte {
	return []byte{PrefixStats, tag}
}

// SystemKey returns the key of the system record identified by tag.
func SystemKey(tag byte) []byte {
	return []byte{PrefixSystem, tag}
}

// TombstoneKey returns the key of the tombstone with the given
// sequence number.
func TombstoneKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = PrefixTombstone
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

// DecodeTombstoneKey is the inverse of TombstoneKey.
func DecodeTombstoneKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != PrefixTombstone {
		return 0, fmt.Errorf("keycodec: not a tombstone key: %x", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

// TombstoneRange returns the half-open key range [lo, hi) covering
// every tombstone, in sequence (= drain) order.
func TombstoneRange() (lo, hi []byte) {
	return []byte{PrefixTombstone}, []byte{PrefixTombstone + 1}
}

// DatasetKey returns the key of dataset id's record.
func DatasetKey(id uint64) []byte {
	key := make([]byte, 9)
	key[0] = PrefixDataset
	binary.BigEndian.PutUint64(key[1:], id)
	return key
}

// DecodeDatasetKey is the inverse of DatasetKey.
func DecodeDatasetKey(key []byte) (uint64, error) {
	if len(key) != 9 || key[0] != PrefixDataset {
		return 0, fmt.Errorf("keycodec: not a dataset key: %x", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nil
}

// DatasetRange returns the half-open key range [lo, hi) covering
// every dataset record.
func DatasetRange() (lo, hi []byte) {
	return []byte{PrefixDataset}, []byte{PrefixDataset + 1}
}

// DatasetRegistryKey returns the key of the dataset registry record.
func DatasetRegistryKey() []byte {
	return []byte{PrefixDatasetRegistry}
}

// ChunkKey returns the key of chunk index of inode id.
func ChunkKey(id, index uint64) []byte {
	key := make([]byte, 17)
	key[0] = PrefixChunk
	binary.BigEndian.PutUint64(key[1:], id)
	binary.BigEndian.PutUint64(key[9:], index)
	return key
}

// DecodeChunkKey is the inverse of ChunkKey.
func DecodeChunkKey(key []byte) (id, index uint64, err error) {
	if len(key) != 17 || key[0] != PrefixChunk {
		return 0, 0, fmt.Errorf("keycodec: not a chunk key: %x", key)
	}
	return binary.BigEndian.Uint64(key[1:9]), binary.BigEndian.Uint64(key[9:17]), nil
}

// ChunkRange returns the half-open key range [lo, hi) covering every
// chunk of inode id.
func ChunkRange(id uint64) (lo, hi []byte) {
	return prefixedIDRange(PrefixChunk, id)
}

// ChunkRangeFrom returns the half-open key range covering the chunks
// of inode id with index in [first, last].
func ChunkRangeFrom(id, first, last uint64) (lo, hi []byte) {
	lo = ChunkKey(id, first)
	if last == ^uint64(0) {
		_, hi = prefixedIDRange(PrefixChunk, id)
		return lo, hi
	}
	return lo, ChunkKey(id, last+1)
}

// EncodeCounter encodes a u64 scalar value (cookie counters, stats
// counters, the next-inode counter) as 8 big-endian bytes.
func EncodeCounter(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeCounter is the inverse of EncodeCounter.
func DecodeCounter(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("keycodec: counter value must be 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// prefixedIDRange returns the half-open range covering every key of
// the form prefix ‖ u64 id ‖ suffix for a fixed id and any suffix
// (including the empty suffix).
func prefixedIDRange(prefix byte, id uint64) (lo, hi []byte) {
	lo = make([]byte, 9)
	lo[0] = prefix
	binary.BigEndian.PutUint64(lo[1:], id)

	if id == ^uint64(0) {
		// No successor id within the prefix: the range ends at the
		// next prefix byte.
		return lo, []byte{prefix + 1}
	}
	hi = make([]byte, 9)
	hi[0] = prefix
	binary.BigEndian.PutUint64(hi[1:], id+1)
	return lo, hi
}
