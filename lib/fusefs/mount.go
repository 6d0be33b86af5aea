// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stratafs/strata/lib/fs"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the dataset is mounted.
	Mountpoint string

	// View is the dataset to expose.
	View *fs.View

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. nil means errors-only to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the dataset at the configured mountpoint. The caller
// must Unmount the returned server when done. The mountpoint
// directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("fusefs: mountpoint is required")
	}
	if options.View == nil {
		return nil, fmt.Errorf("fusefs: view is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}
	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("fusefs: creating mountpoint %s: %w", options.Mountpoint, err)
	}

	adapter := &adapter{view: options.View, logger: options.Logger}
	root := adapter.node(options.View.Root())

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second
	negativeTimeout := 100 * time.Millisecond

	server, err := gofusefs.Mount(options.Mountpoint, root, &gofusefs.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "strata-" + options.View.Dataset().Name,
			Name:       "strata",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fusefs: mounting at %s: %w", options.Mountpoint, err)
	}
	options.Logger.Info("dataset mounted",
		"dataset", options.View.Dataset().Name, "mountpoint", options.Mountpoint)
	return server, nil
}

type adapter struct {
	view   *fs.View
	logger *slog.Logger
}

func (a *adapter) node(id uint64) *strataNode {
	return &strataNode{adapter: a, id: id}
}

// errno maps engine error kinds onto POSIX errnos.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, fs.ErrIsDirectory):
		return syscall.EISDIR
	case errors.Is(err, fs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, fs.ErrInvalidArgument):
		return syscall.EINVAL
	case errors.Is(err, fs.ErrInvalidData):
		return syscall.EIO
	case errors.Is(err, fs.ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, fs.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, fs.ErrTimeout):
		return syscall.ETIMEDOUT
	case errors.Is(err, fs.ErrInterrupted):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}

// kindMode maps an inode kind onto its stat file-type bits.
func kindMode(kind fs.InodeKind) uint32 {
	switch kind {
	case fs.KindDirectory:
		return syscall.S_IFDIR
	case fs.KindSymlink:
		return syscall.S_IFLNK
	case fs.KindBlockDevice:
		return syscall.S_IFBLK
	case fs.KindCharDevice:
		return syscall.S_IFCHR
	case fs.KindFifo:
		return syscall.S_IFIFO
	case fs.KindSocket:
		return syscall.S_IFSOCK
	default:
		return syscall.S_IFREG
	}
}

// kindOf is the inverse of kindMode, for Mknod.
func kindOf(mode uint32) (fs.InodeKind, bool) {
	switch mode & syscall.S_IFMT {
	case syscall.S_IFBLK:
		return fs.KindBlockDevice, true
	case syscall.S_IFCHR:
		return fs.KindCharDevice, true
	case syscall.S_IFIFO:
		return fs.KindFifo, true
	case syscall.S_IFSOCK:
		return fs.KindSocket, true
	case syscall.S_IFREG, 0:
		return fs.KindFile, true
	default:
		return 0, false
	}
}
