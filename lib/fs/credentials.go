// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

// Credentials is the identity envelope accompanying every operation.
// Adapters populate it from their wire protocol (NFS AUTH_SYS, FUSE
// request headers); the engine applies standard POSIX mode checks
// against it.
type Credentials struct {
	UID    uint32
	GID    uint32
	Groups []uint32
}

// Root is the superuser credential, used by the admin plane and by
// internal maintenance.
var Root = Credentials{UID: 0, GID: 0}

// Permission bits for accessCheck.
const (
	permRead  = 0o4
	permWrite = 0o2
	permExec  = 0o1
)

// memberOf reports whether gid is the credential's primary or a
// supplementary group.
func (c Credentials) memberOf(gid uint32) bool {
	if c.GID == gid {
		return true
	}
	for _, g := range c.Groups {
		if g == gid {
			return true
		}
	}
	return false
}

// accessCheck applies the standard POSIX class check: owner bits if
// the caller owns the inode, else group bits on membership, else
// other bits. Root bypasses read and write checks entirely. Root's
// execute check on a regular file passes only if some execute bit is
// set; on any other kind it always passes.
func accessCheck(inode *Inode, creds Credentials, want uint16) error {
	if creds.UID == 0 {
		if want&permExec != 0 && inode.Kind == KindFile &&
			inode.Mode&0o111 == 0 {
			return ErrPermission
		}
		return nil
	}

	var granted uint16
	switch {
	case creds.UID == inode.UID:
		granted = inode.Mode >> 6
	case creds.memberOf(inode.GID):
		granted = inode.Mode >> 3
	default:
		granted = inode.Mode
	}
	if granted&want != want {
		return ErrPermission
	}
	return nil
}

// canWriteEntry checks permission to add or remove an entry in a
// directory: write and search access on the directory, plus the
// sticky-bit restriction on removal when victim is non-nil.
func canWriteEntry(directory *Inode, creds Credentials, victim *Inode) error {
	if err := accessCheck(directory, creds, permWrite|permExec); err != nil {
		return err
	}
	if victim != nil && directory.Mode&0o1000 != 0 && creds.UID != 0 {
		// Sticky directory: only the owner of the directory or of
		// the entry itself may remove it.
		if creds.UID != victim.UID && creds.UID != directory.UID {
			return ErrPermission
		}
	}
	return nil
}

// canSetAttr checks permission for a metadata change. Owners (and
// root) may change modes and times; chown is root-only; chgrp is
// allowed for the owner into a group they belong to.
func canSetAttr(inode *Inode, creds Credentials, changes SetAttr) error {
	if creds.UID == 0 {
		return nil
	}
	owner := creds.UID == inode.UID
	if changes.Mode != nil && !owner {
		return ErrPermission
	}
	if changes.UID != nil && *changes.UID != inode.UID {
		return ErrPermission
	}
	if changes.GID != nil {
		if !owner || !creds.memberOf(*changes.GID) {
			return ErrPermission
		}
	}
	if (changes.Atime != nil || changes.Mtime != nil) && !owner {
		return ErrPermission
	}
	if changes.Size != nil {
		return accessCheck(inode, creds, permWrite)
	}
	return nil
}
