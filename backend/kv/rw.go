package kv

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

// handleRead mirrors fuse_read/AsyncReadOp: an out-of-range offset (or
// one past EOF) yields a short, possibly empty, read rather than an
// error.
func (b *Backend) handleRead(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.ReadIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}

	b.mu.RLock()
	_, ok := b.inodes[hdr.Nodeid]
	data := b.data[hdr.Nodeid]
	b.mu.RUnlock()
	if !ok {
		return errnoNeg(syscall.ENOENT), dispatch.Done
	}

	if req.Offset >= uint64(len(data)) {
		return 0, dispatch.Done
	}
	data = data[req.Offset:]
	if uint64(len(data)) > uint64(req.Size) {
		data = data[:req.Size]
	}
	if err := out.WriteBuf(data); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleWrite mirrors fuse_write's "ramcloud backend only allows
// complete file writes" restriction: any nonzero offset is rejected
// outright rather than attempting a partial update.
func (b *Backend) handleWrite(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.WriteIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	if req.Offset != 0 {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	payload := in[binary.Size(req):]
	if uint32(len(payload)) > req.Size {
		payload = payload[:req.Size]
	}

	b.mu.Lock()
	rec, ok := b.inodes[hdr.Nodeid]
	if !ok {
		b.mu.Unlock()
		return errnoNeg(syscall.ENOENT), dispatch.Done
	}
	stored := append([]byte(nil), payload...)
	b.data[hdr.Nodeid] = stored
	rec.attr.Size = uint64(len(stored))
	rec.attr.Blocks = (rec.attr.Size + 511) / 512
	b.mu.Unlock()

	if err := out.WriteBuf(encodeWriteOut(uint32(len(stored)))); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}
