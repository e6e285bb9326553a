package passthrough

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/uring"
)

// statNode issues an AT_EMPTY_PATH statx against n's anchor fd via
// io_uring, the translation of fuser_mirror_getattr's
// io_uring_prep_statx call.
func (b *Backend) statNode(n *node) (*unix.Stat_t, syscall.Errno) {
	var stx unix.Statx_t
	res, err := b.ring.Submit(func(s *uring.SQE) {
		uring.PrepStatx(s, int32(n.pathFD), uintptr(unsafe.Pointer(&stx)), unix.STATX_BASIC_STATS)
	})
	if err != nil {
		return nil, syscall.EREMOTEIO
	}
	if res < 0 {
		return nil, syscall.Errno(-res)
	}
	st := statxToStat(&stx)
	return &st, 0
}

func statxToStat(stx *unix.Statx_t) unix.Stat_t {
	var st unix.Stat_t
	st.Dev = unix.Mkdev(stx.Dev_major, stx.Dev_minor)
	st.Ino = stx.Ino
	st.Nlink = uint64(stx.Nlink)
	st.Mode = uint32(stx.Mode)
	st.Uid = stx.Uid
	st.Gid = stx.Gid
	st.Rdev = unix.Mkdev(stx.Rdev_major, stx.Rdev_minor)
	st.Size = int64(stx.Size)
	st.Blksize = int64(stx.Blksize)
	st.Blocks = int64(stx.Blocks)
	st.Atim = unix.Timespec{Sec: stx.Atime.Sec, Nsec: int64(stx.Atime.Nsec)}
	st.Mtim = unix.Timespec{Sec: stx.Mtime.Sec, Nsec: int64(stx.Mtime.Nsec)}
	st.Ctim = unix.Timespec{Sec: stx.Ctime.Sec, Nsec: int64(stx.Ctime.Nsec)}
	return st
}

func (b *Backend) handleGetattr(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	st, errno := b.statNode(nodeOf(entry))
	if errno != 0 {
		return errnoNeg(errno), dispatch.Done
	}
	out.WriteBuf(encodeAttrOut(st))
	return 0, dispatch.Done
}

// handleSetattr applies chmod/chown/truncate/utimes against the anchor's
// /proc/self/fd/<pathFD> entry: none of these have an io_uring opcode in
// the original's uring build either, so they fall back to ordinary
// blocking syscalls the same way fuser_mirror_setattr does.
func (b *Backend) handleSetattr(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.SetattrIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	n := nodeOf(entry)
	procPath := fmt.Sprintf("/proc/self/fd/%d", n.pathFD)

	if req.Valid&fuseops.SetAttrMode != 0 {
		if err := unix.Chmod(procPath, req.Mode&07777); err != nil {
			return errnoNeg(err.(syscall.Errno)), dispatch.Done
		}
	}
	if req.Valid&(fuseops.SetAttrUID|fuseops.SetAttrGID) != 0 {
		uid, gid := -1, -1
		if req.Valid&fuseops.SetAttrUID != 0 {
			uid = int(req.UID)
		}
		if req.Valid&fuseops.SetAttrGID != 0 {
			gid = int(req.GID)
		}
		if err := unix.Chown(procPath, uid, gid); err != nil {
			return errnoNeg(err.(syscall.Errno)), dispatch.Done
		}
	}
	if req.Valid&fuseops.SetAttrSize != 0 {
		if err := unix.Truncate(procPath, int64(req.Size)); err != nil {
			return errnoNeg(err.(syscall.Errno)), dispatch.Done
		}
	}
	const timeBits = fuseops.SetAttrAtime | fuseops.SetAttrMtime | fuseops.SetAttrAtimeNow | fuseops.SetAttrMtimeNow
	if req.Valid&timeBits != 0 {
		times := []unix.Timespec{{Nsec: unix.UTIME_OMIT}, {Nsec: unix.UTIME_OMIT}}
		switch {
		case req.Valid&fuseops.SetAttrAtimeNow != 0:
			times[0] = unix.Timespec{Nsec: unix.UTIME_NOW}
		case req.Valid&fuseops.SetAttrAtime != 0:
			times[0] = unix.Timespec{Sec: int64(req.Atime), Nsec: int64(req.AtimeNsec)}
		}
		switch {
		case req.Valid&fuseops.SetAttrMtimeNow != 0:
			times[1] = unix.Timespec{Nsec: unix.UTIME_NOW}
		case req.Valid&fuseops.SetAttrMtime != 0:
			times[1] = unix.Timespec{Sec: int64(req.Mtime), Nsec: int64(req.MtimeNsec)}
		}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, procPath, times, 0); err != nil {
			return errnoNeg(err.(syscall.Errno)), dispatch.Done
		}
	}

	st, errno := b.statNode(n)
	if errno != 0 {
		return errnoNeg(errno), dispatch.Done
	}
	out.WriteBuf(encodeAttrOut(st))
	return 0, dispatch.Done
}

func (b *Backend) handleStatfs(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var st unix.Statfs_t
	procPath := fmt.Sprintf("/proc/self/fd/%d", b.rootFD)
	if err := unix.Statfs(procPath, &st); err != nil {
		return errnoNeg(err.(syscall.Errno)), dispatch.Done
	}
	out.WriteBuf(encodeStatfsOut(&st))
	return 0, dispatch.Done
}

func encodeStatfsOut(st *unix.Statfs_t) []byte {
	so := fuseops.StatfsOut{St: fuseops.Kstatfs{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		Namelen: uint32(st.Namelen),
		Frsize:  uint32(st.Frsize),
	}}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &so)
	return buf.Bytes()
}
