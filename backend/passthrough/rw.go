package passthrough

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/uring"
)

// pread submits one io_uring preadv against fd, mirroring
// fuser_mirror_read's single-iovec io_uring_prep_readv call.
func (b *Backend) pread(fd int32, size uint32, offset uint64) ([]byte, int32, error) {
	buf := make([]byte, size)
	if size == 0 {
		return buf, 0, nil
	}
	iov := unix.Iovec{Base: &buf[0]}
	iov.SetLen(int(size))
	res, err := b.ring.Submit(func(s *uring.SQE) {
		uring.PrepReadv(s, fd, uintptr(unsafe.Pointer(&iov)), 1, offset)
	})
	return buf, res, err
}

// pwrite submits one io_uring pwritev against fd, mirroring
// fuser_mirror_write's single-iovec io_uring_prep_writev call.
func (b *Backend) pwrite(fd int32, data []byte, offset uint64) (int32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	iov := unix.Iovec{Base: &data[0]}
	iov.SetLen(len(data))
	return b.ring.Submit(func(s *uring.SQE) {
		uring.PrepWritev(s, fd, uintptr(unsafe.Pointer(&iov)), 1, offset)
	})
}

func (b *Backend) handleRead(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.ReadIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	data, res, err := b.pread(int32(req.FH), req.Size, req.Offset)
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if res < 0 {
		return errnoNeg(syscall.Errno(-res)), dispatch.Done
	}
	if err := out.WriteBuf(data[:res]); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

func (b *Backend) handleWrite(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.WriteIn
	r := bytes.NewReader(in)
	if err := binary.Read(r, wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	payload := in[binary.Size(req):]
	if uint32(len(payload)) > req.Size {
		payload = payload[:req.Size]
	}

	res, err := b.pwrite(int32(req.FH), payload, req.Offset)
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if res < 0 {
		return errnoNeg(syscall.Errno(-res)), dispatch.Done
	}

	wo := fuseops.WriteOut{Size: uint32(res)}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &wo)
	out.WriteBuf(buf.Bytes())
	return 0, dispatch.Done
}

func (b *Backend) handleFsync(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.FsyncIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	datasync := req.FsyncFlags&1 != 0
	res, err := b.ring.Submit(func(s *uring.SQE) {
		uring.PrepFsync(s, int32(req.FH), datasync)
	})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if res < 0 {
		return errnoNeg(syscall.Errno(-res)), dispatch.Done
	}
	return 0, dispatch.Done
}
