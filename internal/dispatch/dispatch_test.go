package dispatch

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/session"
)

func encodeHeader(opcode fuseops.Opcode, unique, nodeid uint64) []byte {
	buf := make([]byte, fuseops.InHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], fuseops.InHeaderSize)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(opcode))
	binary.LittleEndian.PutUint64(buf[8:16], unique)
	binary.LittleEndian.PutUint64(buf[16:24], nodeid)
	return buf
}

type nopCursor struct{}

func (nopCursor) WriteBuf([]byte) error { return nil }
func (nopCursor) BytesUnused() int      { return 0 }

func TestDispatchReturnsEbusyBeforeInit(t *testing.T) {
	sess := session.New(16)
	table := NewTable(map[fuseops.Opcode]Handler{
		fuseops.OpLookup: func(hdr fuseops.InHeader, in []byte, out iovecCursor) (int32, Status) {
			return 0, Done
		},
	})

	hdr := encodeHeader(fuseops.OpLookup, 42, 1)
	_, errno, status := table.Dispatch(sess, hdr, nil, 2, 2, nopCursor{})
	assert.Equal(t, errEbusy, errno)
	assert.Equal(t, Done, status)
}

func TestDispatchReturnsEnosysForUnregisteredOpcode(t *testing.T) {
	sess := session.New(16)
	_, err := sess.Init(&fuseops.InitIn{Major: 7, Minor: 36}, ^uint32(0), 4096)
	require.NoError(t, err)

	table := NewTable(nil)
	hdr := encodeHeader(fuseops.OpLookup, 1, 1)
	_, errno, _ := table.Dispatch(sess, hdr, nil, 2, 2, nopCursor{})
	assert.Equal(t, errEnosys, errno)
}

func TestDispatchRejectsWrongIovecCount(t *testing.T) {
	sess := session.New(16)
	_, err := sess.Init(&fuseops.InitIn{Major: 7, Minor: 36}, ^uint32(0), 4096)
	require.NoError(t, err)

	called := false
	table := NewTable(map[fuseops.Opcode]Handler{
		fuseops.OpLookup: func(hdr fuseops.InHeader, in []byte, out iovecCursor) (int32, Status) {
			called = true
			return 0, Done
		},
	})

	hdr := encodeHeader(fuseops.OpLookup, 1, 1)
	_, errno, _ := table.Dispatch(sess, hdr, nil, 1, 2, nopCursor{})
	assert.Equal(t, errEinval, errno)
	assert.False(t, called)
}

func TestDispatchAllowsAtLeastCountsForRead(t *testing.T) {
	sess := session.New(16)
	_, err := sess.Init(&fuseops.InitIn{Major: 7, Minor: 36}, ^uint32(0), 4096)
	require.NoError(t, err)

	table := NewTable(map[fuseops.Opcode]Handler{
		fuseops.OpRead: func(hdr fuseops.InHeader, in []byte, out iovecCursor) (int32, Status) {
			return 0, Done
		},
	})

	hdr := encodeHeader(fuseops.OpRead, 1, 1)
	_, errno, status := table.Dispatch(sess, hdr, nil, 2, 4, nopCursor{})
	assert.Zero(t, errno)
	assert.Equal(t, Done, status)
}

func TestDispatchPropagatesEWouldBlockAsPending(t *testing.T) {
	sess := session.New(16)
	_, err := sess.Init(&fuseops.InitIn{Major: 7, Minor: 36}, ^uint32(0), 4096)
	require.NoError(t, err)

	table := NewTable(map[fuseops.Opcode]Handler{
		fuseops.OpRead: func(hdr fuseops.InHeader, in []byte, out iovecCursor) (int32, Status) {
			return EWouldBlock, Done
		},
	})

	hdr := encodeHeader(fuseops.OpRead, 1, 1)
	_, errno, status := table.Dispatch(sess, hdr, nil, 2, 2, nopCursor{})
	assert.Zero(t, errno)
	assert.Equal(t, Pending, status)
}

func TestEncodeOutHeaderWritesFields(t *testing.T) {
	buf := make([]byte, fuseops.OutHeaderSize)
	EncodeOutHeader(buf, 7, 16, -22)
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, int32(-22), int32(binary.LittleEndian.Uint32(buf[4:8])))
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(buf[8:16]))
}
