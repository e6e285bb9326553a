package passthrough

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/uring"
)

func (b *Backend) handleUnlink(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	return b.unlinkAt(hdr, in, 0)
}

func (b *Backend) handleRmdir(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	return b.unlinkAt(hdr, in, unix.AT_REMOVEDIR)
}

// unlinkAt submits an io_uring unlinkat, mirroring
// fuser_mirror_unlink/fuser_mirror_rmdir's shared io_uring_prep_unlinkat
// call (flags distinguishing the two).
func (b *Backend) unlinkAt(hdr fuseops.InHeader, in []byte, flags uint32) (int32, dispatch.Status) {
	name := cString(in)
	parentEntry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	parent := nodeOf(parentEntry)

	nameBuf := cBytes(name)
	res, err := b.ring.Submit(func(s *uring.SQE) {
		uring.PrepUnlinkat(s, int32(parent.pathFD), addrOf(nameBuf), flags)
	})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if res < 0 {
		return errnoNeg(syscall.Errno(-res)), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleRename services both RENAME and RENAME2 (the latter's Flags are
// not honored beyond the plain rename semantics, since the original's
// uring build issues the same renameat2-less io_uring_prep_renameat call
// for both).
func (b *Backend) handleRename(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var newdir uint64
	var names []byte
	if hdr.Opcode == fuseops.OpRename2 {
		var req fuseops.Rename2In
		if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
			return errnoNeg(syscall.EINVAL), dispatch.Done
		}
		newdir = req.Newdir
		names = in[binary.Size(req):]
	} else {
		var req fuseops.RenameIn
		if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
			return errnoNeg(syscall.EINVAL), dispatch.Done
		}
		newdir = req.Newdir
		names = in[binary.Size(req):]
	}
	oldName := cString(names)
	newName := cString(names[len(oldName)+1:])

	oldParentEntry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	newParentEntry, ok := b.inodes.Get(newdir)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	oldParent := nodeOf(oldParentEntry)
	newParent := nodeOf(newParentEntry)

	oldBuf := cBytes(oldName)
	newBuf := cBytes(newName)
	res, err := b.ring.Submit(func(s *uring.SQE) {
		uring.PrepRenameat(s, int32(oldParent.pathFD), addrOf(oldBuf), int32(newParent.pathFD), addrOf(newBuf))
	})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if res < 0 {
		return errnoNeg(syscall.Errno(-res)), dispatch.Done
	}
	return 0, dispatch.Done
}
