package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpfs-project/dpfs/internal/dpfserr"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

func TestCheckOpcodeBeforeInitOnlyAllowsInitForgetDestroy(t *testing.T) {
	s := New(16)

	assert.NoError(t, s.CheckOpcode(fuseops.OpInit))
	assert.NoError(t, s.CheckOpcode(fuseops.OpForget))
	assert.NoError(t, s.CheckOpcode(fuseops.OpBatchForget))
	assert.NoError(t, s.CheckOpcode(fuseops.OpDestroy))

	err := s.CheckOpcode(fuseops.OpLookup)
	assert.ErrorIs(t, err, dpfserr.ErrNotInitialized)
}

func TestInitForcesSpliceCapabilitiesOff(t *testing.T) {
	s := New(16)
	in := &fuseops.InitIn{
		Major: 7, Minor: 36, MaxReadahead: 1 << 20,
		Flags: fuseops.CapSpliceRead | fuseops.CapSpliceWrite | fuseops.CapPosixLocks,
	}
	out, err := s.Init(in, ^uint32(0), 4096)
	require.NoError(t, err)

	assert.Zero(t, out.Flags&fuseops.CapSpliceRead)
	assert.Zero(t, out.Flags&fuseops.CapSpliceWrite)
	assert.NotZero(t, out.Flags&fuseops.CapAsyncRead, "mandatory capability must be set")
	assert.NotZero(t, out.Flags&fuseops.CapReaddirplusAuto, "mandatory capability must be set")
	assert.True(t, s.Ready())
}

func TestInitTwiceFails(t *testing.T) {
	s := New(16)
	in := &fuseops.InitIn{Major: 7, Minor: 36}
	_, err := s.Init(in, ^uint32(0), 4096)
	require.NoError(t, err)

	_, err = s.Init(in, ^uint32(0), 4096)
	assert.ErrorIs(t, err, dpfserr.ErrAlreadyInitialized)
}

func TestInitClampsBufsizeToMinimumWhenMaxPagesUnset(t *testing.T) {
	s := New(16)
	in := &fuseops.InitIn{Major: 7, Minor: 36}
	out, err := s.Init(in, 0, 4096)
	require.NoError(t, err)
	_ = out
	assert.GreaterOrEqual(t, s.Bufsize, uint32(fuseops.MinReadBuffer))
}

func TestDestroyEndsReadiness(t *testing.T) {
	s := New(16)
	_, err := s.Init(&fuseops.InitIn{Major: 7, Minor: 36}, ^uint32(0), 4096)
	require.NoError(t, err)
	require.True(t, s.Ready())

	s.Destroy()
	assert.False(t, s.Ready())
	assert.ErrorIs(t, s.CheckOpcode(fuseops.OpLookup), dpfserr.ErrNotInitialized)
	assert.Equal(t, Destroyed, s.CurrentState())
}
