// Package iovec implements the scatter-gather cursor over a FUSE
// reply's output buffer segments, and directory-entry emission into it.
// It is the Go translation of the `struct iov` cursor in
// original_source/virtiofs_emu_fuse_lowlevel/fuse_ll.h, generalized from
// a single iovcnt/iov_idx/buf_idx/bytes_unused cursor to operate over
// [][]byte segments (our stand-in for virtio's struct iovec chains).
package iovec

import (
	"encoding/binary"

	"github.com/dpfs-project/dpfs/internal/dpfserr"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

const direntAlignment = 8

// Cursor walks a sequence of buffer segments, tracking how much of the
// current segment remains and how much total space is left across all
// segments.
type Cursor struct {
	segs         [][]byte
	segIdx       int
	segOff       int
	bytesUnused  int
}

// NewCursor builds a cursor over segs starting at the first byte of the
// first segment.
func NewCursor(segs [][]byte) *Cursor {
	c := &Cursor{segs: segs}
	for _, s := range segs {
		c.bytesUnused += len(s)
	}
	return c
}

// BytesUnused reports how many bytes remain across all segments.
func (c *Cursor) BytesUnused() int { return c.bytesUnused }

// WriteBuf copies buf into the cursor, advancing across segment
// boundaries as needed. It writes nothing and returns dpfserr.ErrShortBuffer
// if buf is larger than the remaining space.
func (c *Cursor) WriteBuf(buf []byte) error {
	if len(buf) > c.bytesUnused {
		return dpfserr.ErrShortBuffer
	}
	remaining := buf
	for len(remaining) > 0 {
		seg := c.segs[c.segIdx]
		avail := len(seg) - c.segOff
		n := len(remaining)
		if n > avail {
			n = avail
		}
		copy(seg[c.segOff:c.segOff+n], remaining[:n])
		c.segOff += n
		c.bytesUnused -= n
		remaining = remaining[n:]
		if c.segOff == len(seg) {
			c.segIdx++
			c.segOff = 0
		}
	}
	return nil
}

func alignedLen(n int) int {
	rem := n % direntAlignment
	if rem == 0 {
		return n
	}
	return n + (direntAlignment - rem)
}

// direntHeaderSize is sizeof(struct fuse_dirent) sans the trailing
// flexible name array: ino(8) + off(8) + namelen(4) + type(4).
const direntHeaderSize = 24

// DirentSize returns the 8-byte-aligned total size add_direntry would
// write for a directory entry with the given name.
func DirentSize(name string) int {
	return alignedLen(direntHeaderSize + len(name))
}

// AddDirEntry writes one plain directory entry (ino, off, type, name)
// into the cursor. It writes nothing and returns 0 if the aligned entry
// would not fit; otherwise it returns the number of bytes written.
func AddDirEntry(c *Cursor, name string, ino uint64, mode uint32, off uint64) int {
	total := DirentSize(name)
	if total > c.bytesUnused {
		return 0
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[0:8], ino)
	binary.LittleEndian.PutUint64(buf[8:16], off)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[20:24], fuseops.DirentType(mode))
	copy(buf[direntHeaderSize:direntHeaderSize+len(name)], name)
	// Trailing bytes beyond the name up to total are left zeroed for
	// 8-byte alignment padding.
	if err := c.WriteBuf(buf); err != nil {
		return 0
	}
	return total
}

// entryOutSize is sized for the modern (non-compat) EntryOut struct; the
// "plus" direntry always uses the current-minor layout because readdirplus
// was introduced well after the compat cutoffs reply_entry cares about.
const entryOutSize = fuseops.EntryOutSize

// AddDirEntryPlus writes a readdirplus entry: the preceding EntryOut
// (filled from attr/ino/generation/timeouts) followed by the plain
// dirent, matching fuse_add_direntry_plus. Returns 0 without side effects
// if the combined size would not fit.
func AddDirEntryPlus(c *Cursor, name string, entry fuseops.EntryOut, off uint64) int {
	total := entryOutSize + DirentSize(name)
	if total > c.bytesUnused {
		return 0
	}
	buf := make([]byte, entryOutSize)
	putEntryOut(buf, entry)
	if err := c.WriteBuf(buf); err != nil {
		return 0
	}
	n := AddDirEntry(c, name, entry.Nodeid, entry.Attr.Mode, off)
	if n == 0 {
		return 0
	}
	return total
}

func putEntryOut(buf []byte, e fuseops.EntryOut) {
	binary.LittleEndian.PutUint64(buf[0:8], e.Nodeid)
	binary.LittleEndian.PutUint64(buf[8:16], e.Generation)
	binary.LittleEndian.PutUint64(buf[16:24], e.EntryValidSec)
	binary.LittleEndian.PutUint64(buf[24:32], e.AttrValidSec)
	binary.LittleEndian.PutUint32(buf[32:36], e.EntryValidNsec)
	binary.LittleEndian.PutUint32(buf[36:40], e.AttrValidNsec)
	putAttr(buf[40:40+88], e.Attr)
}

// putAttr encodes the full 88-byte fuse_attr (with blksize/padding).
func putAttr(buf []byte, a fuseops.Attr) {
	binary.LittleEndian.PutUint64(buf[0:8], a.Ino)
	binary.LittleEndian.PutUint64(buf[8:16], a.Size)
	binary.LittleEndian.PutUint64(buf[16:24], a.Blocks)
	binary.LittleEndian.PutUint64(buf[24:32], a.Atime)
	binary.LittleEndian.PutUint64(buf[32:40], a.Mtime)
	binary.LittleEndian.PutUint64(buf[40:48], a.Ctime)
	binary.LittleEndian.PutUint32(buf[48:52], a.AtimeNsec)
	binary.LittleEndian.PutUint32(buf[52:56], a.MtimeNsec)
	binary.LittleEndian.PutUint32(buf[56:60], a.CtimeNsec)
	binary.LittleEndian.PutUint32(buf[60:64], a.Mode)
	binary.LittleEndian.PutUint32(buf[64:68], a.Nlink)
	binary.LittleEndian.PutUint32(buf[68:72], a.UID)
	binary.LittleEndian.PutUint32(buf[72:76], a.GID)
	binary.LittleEndian.PutUint32(buf[76:80], a.Rdev)
	binary.LittleEndian.PutUint32(buf[80:84], a.Blksize)
	binary.LittleEndian.PutUint32(buf[84:88], a.Padding)
}
