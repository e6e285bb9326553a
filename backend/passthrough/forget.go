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

func (b *Backend) handleForget(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.ForgetIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err == nil {
		b.forgetOne(hdr.Nodeid, req.Nlookup)
	}
	return 0, dispatch.Done
}

func (b *Backend) handleBatchForget(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.BatchForgetIn
	r := bytes.NewReader(in)
	if err := binary.Read(r, wire, &req); err != nil {
		return 0, dispatch.Done
	}
	rest := in[binary.Size(req):]

	oneSize := binary.Size(fuseops.ForgetOne{})
	for i := uint32(0); i < req.Count; i++ {
		off := int(i) * oneSize
		if off+oneSize > len(rest) {
			break
		}
		var one fuseops.ForgetOne
		if err := binary.Read(bytes.NewReader(rest[off:off+oneSize]), wire, &one); err != nil {
			break
		}
		b.forgetOne(one.Nodeid, one.Nlookup)
	}
	return 0, dispatch.Done
}

// forgetOne implements spec.md §4.8's deferred anchor-fd close: the
// O_PATH anchor fd is only closed, via io_uring, once the inode table's
// lookup count reaches zero and the entry is actually removed — mirroring
// fuser_mirror_forget_one's refcounted fd teardown.
func (b *Backend) forgetOne(nodeid uint64, nlookup uint64) {
	entry, ok := b.inodes.Get(nodeid)
	if !ok {
		return
	}
	n := nodeOf(entry)
	if !b.inodes.Forget(nodeid, nlookup) {
		return
	}

	n.mu.Lock()
	pathFD := n.pathFD
	srcIno := n.srcIno
	n.mu.Unlock()

	b.srcMu.Lock()
	delete(b.srcToNode, srcIno)
	b.srcMu.Unlock()

	b.ring.Submit(func(s *uring.SQE) { uring.PrepClose(s, int32(pathFD)) })
}

func (b *Backend) handleFallocate(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.FallocateIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	if err := unix.Fallocate(int(req.FH), req.Mode, int64(req.Offset), int64(req.Length)); err != nil {
		return errnoNeg(err.(syscall.Errno)), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleReadlink is a deliberate stub: the local-mirror backend never
// resolves symlink targets itself (spec.md line 280), matching the
// original's fuser_mirror_readlink returning -ENOSYS unconditionally.
func (b *Backend) handleReadlink(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	return errnoNeg(syscall.ENOSYS), dispatch.Done
}
