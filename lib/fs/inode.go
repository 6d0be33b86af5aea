// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"

	"github.com/stratafs/strata/lib/codec"
)

// ChunkSize is the fixed logical size of a file body chunk. Chunk
// index i covers file bytes [i*ChunkSize, (i+1)*ChunkSize). A format
// constant: changing it orphans every chunk key on disk.
const ChunkSize = 64 * 1024

// InlineThreshold is the largest file body stored inline in the inode
// record instead of as chunks. A file is inline or chunked, never
// both.
const InlineThreshold = 4096

// MaxNameLength is the longest directory entry name, in bytes.
const MaxNameLength = 255

// RootInode is the inode id of dataset 0's root directory, allocated
// first at format time.
const RootInode uint64 = 1

// SnapshotsRootInode is the reserved virtual inode id adapters may
// use for a synthesized snapshots pseudo-directory. The engine never
// allocates it; its high band also serves entry validation.
const SnapshotsRootInode uint64 = 0xFFFFFFFF00000001

// maxNormalInode bounds the band of allocatable inode ids. Ids above
// it are reserved for virtual inodes. Any stored reference outside
// [1, maxNormalInode] that is not a known virtual id is treated as
// corruption.
const maxNormalInode uint64 = 1 << 53

// InodeKind discriminates the inode variant. Values are format
// constants.
type InodeKind uint8

const (
	// KindFile is a regular file.
	KindFile InodeKind = 1
	// KindDirectory is a directory.
	KindDirectory InodeKind = 2
	// KindSymlink is a symbolic link.
	KindSymlink InodeKind = 3
	// KindBlockDevice is a block special file.
	KindBlockDevice InodeKind = 4
	// KindCharDevice is a character special file.
	KindCharDevice InodeKind = 5
	// KindFifo is a named pipe.
	KindFifo InodeKind = 6
	// KindSocket is a unix-domain socket.
	KindSocket InodeKind = 7
)

// String returns the kind's conventional name.
func (k InodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindBlockDevice:
		return "block-device"
	case KindCharDevice:
		return "char-device"
	case KindFifo:
		return "fifo"
	case KindSocket:
		return "socket"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k InodeKind) valid() bool {
	return k >= KindFile && k <= KindSocket
}

// Inode is the persisted record of one filesystem object. It is a
// tagged variant: Kind selects which of the per-kind fields are
// meaningful, and operations reject a record of the wrong kind rather
// than reinterpret it.
type Inode struct {
	ID   uint64    `cbor:"id"`
	Kind InodeKind `cbor:"kind"`

	// Mode holds the POSIX permission bits and setuid/setgid/sticky
	// bits; the file type lives in Kind, not here.
	Mode uint16 `cbor:"mode"`
	UID  uint32 `cbor:"uid"`
	GID  uint32 `cbor:"gid"`

	Atime     int64  `cbor:"atime"`
	AtimeNsec uint32 `cbor:"atime_nsec,omitempty"`
	Mtime     int64  `cbor:"mtime"`
	MtimeNsec uint32 `cbor:"mtime_nsec,omitempty"`
	Ctime     int64  `cbor:"ctime"`
	CtimeNsec uint32 `cbor:"ctime_nsec,omitempty"`

	// LinkCount is the number of directory entries referencing this
	// inode (directories count their single parent entry).
	LinkCount uint32 `cbor:"nlink"`

	// Parent is the directory that most recently claimed this inode,
	// kept for bookkeeping; with hard links it is one of several
	// referencing directories.
	Parent uint64 `cbor:"parent"`

	// Size is the file length in bytes. Files only.
	Size uint64 `cbor:"size,omitempty"`

	// InlineBody holds the whole file body when Size ≤
	// InlineThreshold and the file is stored inline. nil for
	// chunk-backed files. Files only.
	InlineBody []byte `cbor:"inline,omitempty"`

	// EntryCount is the number of entries in the directory.
	// Directories only.
	EntryCount uint64 `cbor:"entry_count,omitempty"`

	// SymlinkTarget is the link target. Symlinks only.
	SymlinkTarget []byte `cbor:"target,omitempty"`

	// Rdev is the device number. Block and character devices only.
	Rdev uint64 `cbor:"rdev,omitempty"`
}

// encodeInode serializes an inode record.
func encodeInode(inode *Inode) ([]byte, error) {
	data, err := codec.Marshal(inode)
	if err != nil {
		return nil, fmt.Errorf("encoding inode %d: %w", inode.ID, err)
	}
	return data, nil
}

// decodeInode deserializes an inode record, validating the kind tag.
func decodeInode(data []byte) (*Inode, error) {
	var inode Inode
	if err := codec.Unmarshal(data, &inode); err != nil {
		return nil, fmt.Errorf("%w: undecodable inode record: %v", ErrInvalidData, err)
	}
	if !inode.Kind.valid() {
		return nil, fmt.Errorf("%w: inode %d has unknown kind %d", ErrInvalidData, inode.ID, inode.Kind)
	}
	return &inode, nil
}

// chunkCount returns the number of logical chunks covering a file of
// the given size: ⌈size/ChunkSize⌉.
func chunkCount(size uint64) uint64 {
	return (size + ChunkSize - 1) / ChunkSize
}

// validInodeRef reports whether a stored inode reference is
// plausible. References outside the allocatable band (other than
// known virtual ids) indicate a corrupted record: the check catches
// the classic misinterpreted-entry pattern where random bytes decode
// to an enormous id.
func validInodeRef(id uint64) bool {
	if id == 0 {
		return false
	}
	if id <= maxNormalInode {
		return true
	}
	return id == SnapshotsRootInode
}

// validName reports whether a directory entry name is legal: 1 to
// MaxNameLength bytes. The engine treats names as opaque bytes; it
// does not reject '/' or NUL, which adapters never produce.
func validName(name []byte) bool {
	return len(name) >= 1 && len(name) <= MaxNameLength
}
