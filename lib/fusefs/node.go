// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"context"
	"syscall"

	gofusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stratafs/strata/lib/fs"
)

// strataNode is one engine inode exposed to the kernel. The engine's
// inode id doubles as the FUSE stable inode number.
type strataNode struct {
	gofusefs.Inode
	adapter *adapter
	id      uint64
}

var (
	_ gofusefs.InodeEmbedder  = (*strataNode)(nil)
	_ gofusefs.NodeLookuper   = (*strataNode)(nil)
	_ gofusefs.NodeGetattrer  = (*strataNode)(nil)
	_ gofusefs.NodeSetattrer  = (*strataNode)(nil)
	_ gofusefs.NodeCreater    = (*strataNode)(nil)
	_ gofusefs.NodeMkdirer    = (*strataNode)(nil)
	_ gofusefs.NodeMknoder    = (*strataNode)(nil)
	_ gofusefs.NodeSymlinker  = (*strataNode)(nil)
	_ gofusefs.NodeReadlinker = (*strataNode)(nil)
	_ gofusefs.NodeLinker     = (*strataNode)(nil)
	_ gofusefs.NodeUnlinker   = (*strataNode)(nil)
	_ gofusefs.NodeRmdirer    = (*strataNode)(nil)
	_ gofusefs.NodeRenamer    = (*strataNode)(nil)
	_ gofusefs.NodeOpener     = (*strataNode)(nil)
	_ gofusefs.NodeReaddirer  = (*strataNode)(nil)
	_ gofusefs.NodeFsyncer    = (*strataNode)(nil)
)

// creds extracts the request's caller identity.
func creds(ctx context.Context) fs.Credentials {
	if caller, ok := fuse.FromContext(ctx); ok {
		return fs.Credentials{UID: caller.Uid, GID: caller.Gid}
	}
	return fs.Root
}

// fillAttr copies an engine inode into a FUSE attr struct.
func fillAttr(inode *fs.Inode, out *fuse.Attr) {
	out.Ino = inode.ID
	out.Size = inode.Size
	out.Blocks = (inode.Size + 511) / 512
	out.Mode = kindMode(inode.Kind) | uint32(inode.Mode)
	out.Nlink = inode.LinkCount
	out.Uid = inode.UID
	out.Gid = inode.GID
	out.Rdev = uint32(inode.Rdev)
	out.Atime = uint64(inode.Atime)
	out.Atimensec = inode.AtimeNsec
	out.Mtime = uint64(inode.Mtime)
	out.Mtimensec = inode.MtimeNsec
	out.Ctime = uint64(inode.Ctime)
	out.Ctimensec = inode.CtimeNsec
}

// child wraps a resolved engine inode as a kernel inode attached
// under this node.
func (n *strataNode) child(ctx context.Context, inode *fs.Inode, out *fuse.EntryOut) *gofusefs.Inode {
	fillAttr(inode, &out.Attr)
	return n.NewInode(ctx, n.adapter.node(inode.ID), gofusefs.StableAttr{
		Mode: kindMode(inode.Kind),
		Ino:  inode.ID,
	})
}

func (n *strataNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofusefs.Inode, syscall.Errno) {
	inode, err := n.adapter.view.Lookup(ctx, creds(ctx), n.id, []byte(name))
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, inode, out), 0
}

func (n *strataNode) Getattr(ctx context.Context, fh gofusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	inode, err := n.adapter.view.GetAttr(ctx, n.id)
	if err != nil {
		return errno(err)
	}
	fillAttr(inode, &out.Attr)
	return 0
}

func (n *strataNode) Setattr(ctx context.Context, fh gofusefs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var changes fs.SetAttr
	if mode, ok := in.GetMode(); ok {
		m := uint16(mode & 0o7777)
		changes.Mode = &m
	}
	if uid, ok := in.GetUID(); ok {
		changes.UID = &uid
	}
	if gid, ok := in.GetGID(); ok {
		changes.GID = &gid
	}
	if size, ok := in.GetSize(); ok {
		changes.Size = &size
	}
	if atime, ok := in.GetATime(); ok {
		t := atime
		changes.Atime = &t
	}
	if mtime, ok := in.GetMTime(); ok {
		t := mtime
		changes.Mtime = &t
	}

	inode, err := n.adapter.view.SetAttr(ctx, creds(ctx), n.id, changes)
	if err != nil {
		return errno(err)
	}
	fillAttr(inode, &out.Attr)
	return 0
}

func (n *strataNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofusefs.Inode, gofusefs.FileHandle, uint32, syscall.Errno) {
	inode, err := n.adapter.view.Create(ctx, creds(ctx), n.id, []byte(name), uint16(mode&0o7777))
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	node := n.child(ctx, inode, out)
	return node, &fileHandle{adapter: n.adapter, id: inode.ID}, 0, 0
}

func (n *strataNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofusefs.Inode, syscall.Errno) {
	inode, err := n.adapter.view.Mkdir(ctx, creds(ctx), n.id, []byte(name), uint16(mode&0o7777))
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, inode, out), 0
}

func (n *strataNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofusefs.Inode, syscall.Errno) {
	kind, ok := kindOf(mode)
	if !ok {
		return nil, syscall.EINVAL
	}
	if kind == fs.KindFile {
		inode, err := n.adapter.view.Create(ctx, creds(ctx), n.id, []byte(name), uint16(mode&0o7777))
		if err != nil {
			return nil, errno(err)
		}
		return n.child(ctx, inode, out), 0
	}
	inode, err := n.adapter.view.Mknod(ctx, creds(ctx), n.id, []byte(name), kind, uint16(mode&0o7777), uint64(dev))
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, inode, out), 0
}

func (n *strataNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*gofusefs.Inode, syscall.Errno) {
	inode, err := n.adapter.view.Symlink(ctx, creds(ctx), n.id, []byte(name), []byte(target))
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, inode, out), 0
}

func (n *strataNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.adapter.view.ReadLink(ctx, n.id)
	if err != nil {
		return nil, errno(err)
	}
	return target, 0
}

func (n *strataNode) Link(ctx context.Context, target gofusefs.InodeEmbedder, name string, out *fuse.EntryOut) (*gofusefs.Inode, syscall.Errno) {
	source, ok := target.(*strataNode)
	if !ok {
		return nil, syscall.EXDEV
	}
	inode, err := n.adapter.view.Link(ctx, creds(ctx), source.id, n.id, []byte(name))
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, inode, out), 0
}

func (n *strataNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return errno(n.adapter.view.Unlink(ctx, creds(ctx), n.id, []byte(name)))
}

func (n *strataNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errno(n.adapter.view.Rmdir(ctx, creds(ctx), n.id, []byte(name)))
}

func (n *strataNode) Rename(ctx context.Context, name string, newParent gofusefs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	destination, ok := newParent.(*strataNode)
	if !ok {
		return syscall.EXDEV
	}
	return errno(n.adapter.view.Rename(ctx, creds(ctx), n.id, []byte(name), destination.id, []byte(newName)))
}

func (n *strataNode) Open(ctx context.Context, flags uint32) (gofusefs.FileHandle, uint32, syscall.Errno) {
	// Permission was checked by the kernel's ACCESS or is rechecked
	// per read/write; the handle is stateless.
	return &fileHandle{adapter: n.adapter, id: n.id}, 0, 0
}

func (n *strataNode) Readdir(ctx context.Context) (gofusefs.DirStream, syscall.Errno) {
	return &dirStream{ctx: ctx, adapter: n.adapter, id: n.id}, 0
}

func (n *strataNode) Fsync(ctx context.Context, fh gofusefs.FileHandle, flags uint32) syscall.Errno {
	return errno(n.adapter.view.Fsync(ctx, n.id))
}

// fileHandle is a stateless handle; reads and writes address the
// engine by inode id and offset.
type fileHandle struct {
	adapter *adapter
	id      uint64
}

var (
	_ gofusefs.FileReader  = (*fileHandle)(nil)
	_ gofusefs.FileWriter  = (*fileHandle)(nil)
	_ gofusefs.FileFsyncer = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, _, err := h.adapter.view.Read(ctx, creds(ctx), h.id, uint64(off), len(dest))
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.adapter.view.Write(ctx, creds(ctx), h.id, uint64(off), data)
	if err != nil {
		return 0, errno(err)
	}
	return uint32(n), 0
}

func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return errno(h.adapter.view.Fsync(ctx, h.id))
}

// dirStream pages through the engine's cookie-ordered enumeration on
// demand.
type dirStream struct {
	ctx     context.Context
	adapter *adapter
	id      uint64

	entries []fs.DirEntry
	cookie  uint64
	eof     bool
	err     syscall.Errno
}

var _ gofusefs.DirStream = (*dirStream)(nil)

const dirStreamPage = 256

func (s *dirStream) HasNext() bool {
	if len(s.entries) > 0 {
		return true
	}
	if s.eof || s.err != 0 {
		return false
	}
	entries, next, eof, err := s.adapter.view.Readdir(s.ctx, creds(s.ctx), s.id, s.cookie, dirStreamPage)
	if err != nil {
		s.err = errno(err)
		return false
	}
	s.entries = entries
	s.cookie = next
	s.eof = eof
	return len(s.entries) > 0
}

func (s *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.err != 0 {
		return fuse.DirEntry{}, s.err
	}
	if len(s.entries) == 0 {
		return fuse.DirEntry{}, syscall.EIO
	}
	entry := s.entries[0]
	s.entries = s.entries[1:]
	return fuse.DirEntry{
		Name: string(entry.Name),
		Ino:  entry.Child,
		Mode: kindMode(entry.Kind),
	}, 0
}

func (s *dirStream) Close() {}
