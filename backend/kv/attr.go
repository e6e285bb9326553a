package kv

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

func (b *Backend) handleGetattr(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	if hdr.Nodeid == fuseops.RootID {
		attr := rootAttr()
		if err := out.WriteBuf(encodeAttrOut(&attr)); err != nil {
			return errnoNeg(syscall.ERANGE), dispatch.Done
		}
		return 0, dispatch.Done
	}

	b.mu.RLock()
	rec, ok := b.inodes[hdr.Nodeid]
	b.mu.RUnlock()
	if !ok {
		return errnoNeg(syscall.ENOENT), dispatch.Done
	}
	if err := out.WriteBuf(encodeAttrOut(&rec.attr)); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleSetattr applies only the fields fuse_setattr honors in the
// original: mode, uid, gid, size (with the matching block-count
// recompute). Atime/mtime/ctime are accepted by the wire format but
// silently ignored, exactly as dpfs_kv does.
func (b *Backend) handleSetattr(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.SetattrIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}

	b.mu.Lock()
	rec, ok := b.inodes[hdr.Nodeid]
	if !ok {
		b.mu.Unlock()
		return errnoNeg(syscall.ENOENT), dispatch.Done
	}
	if req.Valid&fuseops.SetAttrMode != 0 {
		rec.attr.Mode = req.Mode
	}
	if req.Valid&fuseops.SetAttrUID != 0 {
		rec.attr.UID = req.UID
	}
	if req.Valid&fuseops.SetAttrGID != 0 {
		rec.attr.GID = req.GID
	}
	if req.Valid&fuseops.SetAttrSize != 0 {
		rec.attr.Size = req.Size
		rec.attr.Blocks = (req.Size + 511) / 512
	}
	attr := rec.attr
	b.mu.Unlock()

	if err := out.WriteBuf(encodeAttrOut(&attr)); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleStatfs replies with the same hard-coded counters fuse_statfs
// does: dpfs_kv never tracked real capacity since RAMCloud has no
// notion of a fixed-size volume.
func (b *Backend) handleStatfs(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	so := fuseops.StatfsOut{St: fuseops.Kstatfs{
		Blocks:  1024 * 1024,
		Bfree:   1024,
		Bavail:  1024,
		Files:   1024,
		Ffree:   1024,
		Bsize:   1,
		Frsize:  4096,
		Namelen: 128,
	}}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &so)
	if err := out.WriteBuf(buf.Bytes()); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}
