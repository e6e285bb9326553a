package devserver

import (
	"bytes"
	"encoding/binary"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/hal"
)

func inHeader(opcode fuseops.Opcode, unique uint64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, wire, &fuseops.InHeader{Len: fuseops.InHeaderSize, Opcode: opcode, Unique: unique})
	return buf.Bytes()
}

func initIn() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, wire, &fuseops.InitIn{Major: 7, Minor: 31, MaxReadahead: 131072})
	return buf.Bytes()
}

func TestHandleNegotiatesInitWhenBackendLeavesItUnregistered(t *testing.T) {
	s := New(map[fuseops.Opcode]dispatch.Handler{})

	hdr := inHeader(fuseops.OpInit, 42)
	out := [][]byte{make([]byte, fuseops.OutHeaderSize), make([]byte, 256)}

	rc := s.Handle(0, [][]byte{hdr, initIn()}, out, hal.CompletionToken{})
	require.Zero(t, rc)

	var outHdr fuseops.OutHeader
	require.NoError(t, binary.Read(bytes.NewReader(out[0]), wire, &outHdr))
	assert.Zero(t, outHdr.Error)
	assert.Equal(t, uint64(42), outHdr.Unique)

	var initOut fuseops.InitOut
	require.NoError(t, binary.Read(bytes.NewReader(out[1][:outHdr.Len-fuseops.OutHeaderSize]), wire, &initOut))
	assert.Equal(t, fuseops.KernelMinorVersion, initOut.Minor)
}

func TestHandleDefersToBackendOwnInit(t *testing.T) {
	called := false
	handlers := map[fuseops.Opcode]dispatch.Handler{
		fuseops.OpInit: func(hdr fuseops.InHeader, in []byte, out interface {
			WriteBuf([]byte) error
			BytesUnused() int
		}) (int32, dispatch.Status) {
			called = true
			return -38, dispatch.Done // ENOSYS, matching backend/null
		},
	}
	s := New(handlers)
	assert.True(t, s.ownInit)

	hdr := inHeader(fuseops.OpInit, 7)
	out := [][]byte{make([]byte, fuseops.OutHeaderSize), make([]byte, 64)}
	rc := s.Handle(0, [][]byte{hdr, initIn()}, out, hal.CompletionToken{})
	require.Zero(t, rc)
	assert.True(t, called, "Server.Handle must dispatch INIT through the table when the backend registers its own handler")

	var outHdr fuseops.OutHeader
	require.NoError(t, binary.Read(bytes.NewReader(out[0]), wire, &outHdr))
	assert.Equal(t, int32(-38), outHdr.Error)
}

func TestHandleForgetHasNoOutIov(t *testing.T) {
	called := false
	handlers := map[fuseops.Opcode]dispatch.Handler{
		fuseops.OpForget: func(hdr fuseops.InHeader, in []byte, out interface {
			WriteBuf([]byte) error
			BytesUnused() int
		}) (int32, dispatch.Status) {
			called = true
			return 0, dispatch.Done
		},
	}
	s := New(handlers)
	// bypass INIT negotiation: FORGET is always permitted per session.CheckOpcode.
	hdr := inHeader(fuseops.OpForget, 1)
	rc := s.Handle(0, [][]byte{hdr}, nil, hal.CompletionToken{})
	require.Zero(t, rc)
	assert.True(t, called)
}

func TestHandleRejectsEmptyInIov(t *testing.T) {
	s := New(map[fuseops.Opcode]dispatch.Handler{})
	rc := s.Handle(0, nil, [][]byte{make([]byte, fuseops.OutHeaderSize)}, hal.CompletionToken{})
	assert.Equal(t, int(syscall.EINVAL), rc)
}

func TestHandleRejectsRequestsBeforeInit(t *testing.T) {
	s := New(map[fuseops.Opcode]dispatch.Handler{
		fuseops.OpGetattr: func(hdr fuseops.InHeader, in []byte, out interface {
			WriteBuf([]byte) error
			BytesUnused() int
		}) (int32, dispatch.Status) {
			t.Fatal("handler must not run before INIT")
			return 0, dispatch.Done
		},
	})

	hdr := inHeader(fuseops.OpGetattr, 9)
	out := [][]byte{make([]byte, fuseops.OutHeaderSize), make([]byte, 256)}
	rc := s.Handle(0, [][]byte{hdr, make([]byte, 16)}, out, hal.CompletionToken{})
	require.Zero(t, rc)

	var outHdr fuseops.OutHeader
	require.NoError(t, binary.Read(bytes.NewReader(out[0]), wire, &outHdr))
	assert.Equal(t, int32(-16), outHdr.Error) // EBUSY, per session.CheckOpcode
}
