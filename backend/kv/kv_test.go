package kv

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpfs-project/dpfs/internal/fuseops"
)

// cursor is a minimal dispatchCursor backed by a fixed-size buffer, the
// same shape as backend/rpctunnel's replyCursor.
type cursor struct {
	buf  []byte
	used int
}

func newCursor(n int) *cursor { return &cursor{buf: make([]byte, n)} }

func (c *cursor) WriteBuf(b []byte) error {
	if c.used+len(b) > len(c.buf) {
		return bytes.ErrTooLarge
	}
	copy(c.buf[c.used:], b)
	c.used += len(b)
	return nil
}

func (c *cursor) BytesUnused() int { return len(c.buf) - c.used }

func mknodReq(mode uint32, name string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, wire, &fuseops.MknodIn{Mode: mode})
	buf.WriteString(name)
	buf.WriteByte(0)
	return buf.Bytes()
}

func TestMknodLookupRoundTrip(t *testing.T) {
	b := New(Config{})

	out := newCursor(256)
	errno, _ := b.handleMknod(fuseops.InHeader{Nodeid: fuseops.RootID}, mknodReq(0100644, "hello.txt"), out)
	require.Zero(t, errno)

	var entry fuseops.EntryOut
	require.NoError(t, binary.Read(bytes.NewReader(out.buf[:out.used]), wire, &entry))
	assert.Equal(t, fnv1aHash("hello.txt"), entry.Nodeid)

	lookupOut := newCursor(256)
	nameBuf := append([]byte("hello.txt"), 0)
	errno, _ = b.handleLookup(fuseops.InHeader{}, nameBuf, lookupOut)
	require.Zero(t, errno)
	assert.Equal(t, out.buf[:out.used], lookupOut.buf[:lookupOut.used])
}

func TestMknodRejectsNonRootParent(t *testing.T) {
	b := New(Config{})
	out := newCursor(256)
	errno, _ := b.handleMknod(fuseops.InHeader{Nodeid: 42}, mknodReq(0100644, "x"), out)
	assert.Equal(t, errnoNeg(syscall.EIO), errno)
}

func TestWriteWholeFileThenRead(t *testing.T) {
	b := New(Config{})
	mkOut := newCursor(256)
	_, _ = b.handleMknod(fuseops.InHeader{Nodeid: fuseops.RootID}, mknodReq(0100644, "f"), mkOut)
	id := fnv1aHash("f")

	var wreq bytes.Buffer
	binary.Write(&wreq, wire, &fuseops.WriteIn{Size: 5})
	wreq.WriteString("hello")
	wOut := newCursor(64)
	errno, _ := b.handleWrite(fuseops.InHeader{Nodeid: id}, wreq.Bytes(), wOut)
	require.Zero(t, errno)

	var rreq bytes.Buffer
	binary.Write(&rreq, wire, &fuseops.ReadIn{Size: 64})
	rOut := newCursor(64)
	errno, _ = b.handleRead(fuseops.InHeader{Nodeid: id}, rreq.Bytes(), rOut)
	require.Zero(t, errno)
	assert.Equal(t, "hello", string(rOut.buf[:rOut.used]))
}

func TestWriteRejectsNonzeroOffset(t *testing.T) {
	b := New(Config{})
	mkOut := newCursor(256)
	_, _ = b.handleMknod(fuseops.InHeader{Nodeid: fuseops.RootID}, mknodReq(0100644, "f"), mkOut)
	id := fnv1aHash("f")

	var wreq bytes.Buffer
	binary.Write(&wreq, wire, &fuseops.WriteIn{Offset: 1, Size: 1})
	wreq.WriteByte('x')
	out := newCursor(64)
	errno, _ := b.handleWrite(fuseops.InHeader{Nodeid: id}, wreq.Bytes(), out)
	assert.Equal(t, errnoNeg(syscall.EINVAL), errno)
}

func TestUnlinkRemovesInodeAndData(t *testing.T) {
	b := New(Config{})
	mkOut := newCursor(256)
	_, _ = b.handleMknod(fuseops.InHeader{Nodeid: fuseops.RootID}, mknodReq(0100644, "f"), mkOut)

	nameBuf := append([]byte("f"), 0)
	errno, _ := b.handleUnlink(fuseops.InHeader{}, nameBuf, newCursor(0))
	require.Zero(t, errno)

	lookupOut := newCursor(256)
	errno, _ = b.handleLookup(fuseops.InHeader{}, nameBuf, lookupOut)
	assert.Equal(t, errnoNeg(syscall.ENOENT), errno)
}

func TestGetattrRoot(t *testing.T) {
	b := New(Config{})
	out := newCursor(256)
	errno, _ := b.handleGetattr(fuseops.InHeader{Nodeid: fuseops.RootID}, nil, out)
	require.Zero(t, errno)

	var ao fuseops.AttrOut
	require.NoError(t, binary.Read(bytes.NewReader(out.buf[:out.used]), wire, &ao))
	assert.Equal(t, fuseops.RootID, ao.Attr.Ino)
}

func TestOpendirReaddirListsCreatedFiles(t *testing.T) {
	b := New(Config{})
	for _, name := range []string{"a", "b", "c"} {
		out := newCursor(256)
		_, _ = b.handleMknod(fuseops.InHeader{Nodeid: fuseops.RootID}, mknodReq(0100644, name), out)
	}

	openOut := newCursor(32)
	errno, _ := b.handleOpendir(fuseops.InHeader{}, nil, openOut)
	require.Zero(t, errno)
	var oo fuseops.OpenOut
	require.NoError(t, binary.Read(bytes.NewReader(openOut.buf[:openOut.used]), wire, &oo))

	var rreq bytes.Buffer
	binary.Write(&rreq, wire, &fuseops.ReadIn{FH: oo.FH, Size: 4096})
	readOut := newCursor(4096)
	errno, _ = b.handleReaddir(fuseops.InHeader{}, rreq.Bytes(), readOut)
	require.Zero(t, errno)
	assert.NotZero(t, readOut.used)
}
