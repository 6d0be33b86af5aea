// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"errors"
)

// Error kinds surfaced by the engine. Adapters map each to the
// appropriate wire errno. Expected negative outcomes (ErrNotFound,
// ErrExist, ErrPermission) propagate without logging; ErrInvalidData
// is a corruption signal and is logged where it is detected.
var (
	// ErrNotFound reports a missing inode, directory entry, or
	// dataset.
	ErrNotFound = errors.New("fs: not found")

	// ErrExist reports a name collision on create, mkdir, link, or
	// dataset creation.
	ErrExist = errors.New("fs: already exists")

	// ErrNotDirectory reports a directory operation on a
	// non-directory inode.
	ErrNotDirectory = errors.New("fs: not a directory")

	// ErrIsDirectory reports a file operation on a directory inode.
	ErrIsDirectory = errors.New("fs: is a directory")

	// ErrNotEmpty reports rmdir of a directory that still has
	// entries, or a rename onto a directory that still has entries.
	ErrNotEmpty = errors.New("fs: directory not empty")

	// ErrPermission reports a failed credential check.
	ErrPermission = errors.New("fs: permission denied")

	// ErrInvalidArgument reports a malformed request: an empty or
	// over-long name, an out-of-band inode id, a non-positive
	// enumeration budget.
	ErrInvalidArgument = errors.New("fs: invalid argument")

	// ErrInvalidData reports corruption: a record that fails to
	// decode or decodes to an impossible value.
	ErrInvalidData = errors.New("fs: invalid data")

	// ErrNoSpace reports a quota breach on bytes or inodes.
	ErrNoSpace = errors.New("fs: no space")

	// ErrReadOnly reports a mutation through a read-only dataset
	// (snapshots, by default).
	ErrReadOnly = errors.New("fs: read-only")

	// ErrIO reports a store failure underneath an operation.
	ErrIO = errors.New("fs: i/o error")

	// ErrTimeout reports an expired caller-supplied deadline on a
	// flush.
	ErrTimeout = errors.New("fs: timeout")

	// ErrInterrupted reports an operation canceled at a suspension
	// point.
	ErrInterrupted = errors.New("fs: interrupted")
)
