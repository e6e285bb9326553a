package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClampsToMinSlots(t *testing.T) {
	tbl := New(0)
	assert.Equal(t, 1, tbl.NumSlots())
}

func TestClaimAssignsFirstFreeSlotAndIncrementsSeqID(t *testing.T) {
	tbl := New(2)

	slot0, seq0, err := tbl.Claim()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), slot0)
	assert.Equal(t, uint32(1), seq0)

	slot1, _, err := tbl.Claim()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), slot1)
}

func TestClaimReturnsErrPoolExhaustedWhenAllSlotsBusy(t *testing.T) {
	tbl := New(1)
	_, _, err := tbl.Claim()
	require.NoError(t, err)

	_, _, err = tbl.Claim()
	assert.Error(t, err)
}

func TestReleaseFreesSlotForReuseWithNextSeqID(t *testing.T) {
	tbl := New(1)
	slotID, seqID, err := tbl.Claim()
	require.NoError(t, err)

	tbl.Release(slotID, seqID)

	slotID2, seqID2, err := tbl.Claim()
	require.NoError(t, err)
	assert.Equal(t, slotID, slotID2)
	assert.Equal(t, seqID+1, seqID2)
}

func TestHighestSlotIDTracksMaxClaimed(t *testing.T) {
	tbl := New(3)
	tbl.Claim()
	tbl.Claim()
	assert.Equal(t, uint32(1), tbl.HighestSlotID())
}

func TestInUseReflectsOutstandingClaims(t *testing.T) {
	tbl := New(2)
	assert.Equal(t, 0, tbl.InUse())
	slotID, seqID, _ := tbl.Claim()
	assert.Equal(t, 1, tbl.InUse())
	tbl.Release(slotID, seqID)
	assert.Equal(t, 0, tbl.InUse())
}
