package iovec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBufAcrossSegments(t *testing.T) {
	a := make([]byte, 4)
	b := make([]byte, 4)
	c := NewCursor([][]byte{a, b})

	err := c.WriteBuf([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, a)
	assert.Equal(t, []byte{5, 6, 0, 0}, b)
	assert.Equal(t, 2, c.BytesUnused())
}

func TestWriteBufTooLargeFailsWithoutSideEffects(t *testing.T) {
	a := make([]byte, 2)
	c := NewCursor([][]byte{a})
	err := c.WriteBuf([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, []byte{0, 0}, a)
}

func TestAddDirEntryRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	c := NewCursor([][]byte{buf})

	n := AddDirEntry(c, "hello.txt", 42, 0100644, 1)
	require.NotZero(t, n)
	assert.Equal(t, DirentSize("hello.txt"), n)

	ino := binary.LittleEndian.Uint64(buf[0:8])
	off := binary.LittleEndian.Uint64(buf[8:16])
	namelen := binary.LittleEndian.Uint32(buf[16:20])
	typ := binary.LittleEndian.Uint32(buf[20:24])
	name := string(buf[24 : 24+namelen])

	assert.Equal(t, uint64(42), ino)
	assert.Equal(t, uint64(1), off)
	assert.Equal(t, "hello.txt", name)
	assert.EqualValues(t, 8, typ) // S_IFREG >> 12
}

func TestAddDirEntryInsufficientSpaceIsNoop(t *testing.T) {
	buf := make([]byte, 8)
	c := NewCursor([][]byte{buf})
	n := AddDirEntry(c, "toolong", 1, 0100644, 0)
	assert.Zero(t, n)
	assert.Equal(t, 8, c.BytesUnused())
}

func TestDirentSizeIs8ByteAligned(t *testing.T) {
	for _, name := range []string{"a", "ab", "abc", "abcdefgh", "abcdefghi"} {
		assert.Zero(t, DirentSize(name)%8)
	}
}
