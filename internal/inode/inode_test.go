package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocIDSkipsReservedRoot(t *testing.T) {
	table := New(4)
	id := table.AllocID()
	assert.NotEqual(t, uint64(1), id)
}

func TestInsertLookupIncrementsCount(t *testing.T) {
	table := New(4)
	id := table.AllocID()
	e := table.Insert(id, "/some/path")
	assert.Equal(t, uint64(1), e.Lookups)

	got, ok := table.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.Lookups)
	assert.Equal(t, "/some/path", got.Ref)
}

func TestGetDoesNotChangeLookupCount(t *testing.T) {
	table := New(4)
	id := table.AllocID()
	table.Insert(id, "x")

	e, ok := table.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Lookups)
}

func TestForgetRemovesEntryWhenCountReachesZero(t *testing.T) {
	table := New(4)
	id := table.AllocID()
	table.Insert(id, "x") // Lookups=1
	table.Lookup(id)      // Lookups=2

	removed := table.Forget(id, 1)
	assert.False(t, removed)
	_, ok := table.Get(id)
	assert.True(t, ok)

	removed = table.Forget(id, 1)
	assert.True(t, removed)
	_, ok = table.Get(id)
	assert.False(t, ok)
}

func TestForgetUnknownNodeidIsNoop(t *testing.T) {
	table := New(4)
	assert.False(t, table.Forget(999, 1))
}

func TestBumpIncrementsGeneration(t *testing.T) {
	table := New(4)
	id := table.AllocID()
	table.Insert(id, "x")

	g1 := table.Bump(id)
	g2 := table.Bump(id)
	assert.Equal(t, uint64(1), g1)
	assert.Equal(t, uint64(2), g2)
}

func TestLenReflectsLiveEntries(t *testing.T) {
	table := New(4)
	assert.Equal(t, 0, table.Len())
	id1 := table.AllocID()
	id2 := table.AllocID()
	table.Insert(id1, "a")
	table.Insert(id2, "b")
	assert.Equal(t, 2, table.Len())

	table.Forget(id1, 1)
	assert.Equal(t, 1, table.Len())
}
