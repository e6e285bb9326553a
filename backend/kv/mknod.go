package kv

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

// handleMknod mirrors fuse_mknod: only the root directory may be the
// parent (dpfs_kv's namespace has no subdirectories) and only regular
// files may be created.
func (b *Backend) handleMknod(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	if hdr.Nodeid != fuseops.RootID {
		return errnoNeg(syscall.EIO), dispatch.Done
	}

	var req fuseops.MknodIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	if req.Mode&unix.S_IFMT != unix.S_IFREG {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	name := cString(in[binary.Size(req):])
	id := fnv1aHash(name)

	attr := fuseops.Attr{
		Ino:     id,
		Mode:    unix.S_IFREG | (req.Mode &^ unix.S_IFMT),
		Blksize: 1,
		Blocks:  1,
	}

	b.mu.Lock()
	b.inodes[id] = &record{attr: attr, name: name}
	b.mu.Unlock()

	if err := out.WriteBuf(encodeEntryOut(id, &attr)); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleUnlink mirrors fuse_unlink: both the inode and data records are
// dropped by the same name hash, with no error if either was already
// absent.
func (b *Backend) handleUnlink(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	name := cString(in)
	id := fnv1aHash(name)

	b.mu.Lock()
	delete(b.inodes, id)
	delete(b.data, id)
	b.mu.Unlock()

	return 0, dispatch.Done
}
