package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rcbStub struct {
	id int
}

func TestNewRejectsBadCapacity(t *testing.T) {
	_, err := New(3, func() *rcbStub { return &rcbStub{} })
	require.Error(t, err)

	_, err = New(6, func() *rcbStub { return &rcbStub{} })
	require.Error(t, err)
}

func TestAllocFreeRoundTrip(t *testing.T) {
	p, err := New(4, func() *rcbStub { return &rcbStub{} })
	require.NoError(t, err)

	chunks := make([]*rcbStub, 0, 4)
	for i := 0; i < 4; i++ {
		c := p.Alloc()
		require.NotNil(t, c)
		chunks = append(chunks, c)
	}

	// Pool is empty now: alloc must return nil without blocking.
	assert.Nil(t, p.Alloc())

	for _, c := range chunks {
		p.Free(c)
	}

	// Occupancy returned to full; another full round should succeed.
	for i := 0; i < 4; i++ {
		assert.NotNil(t, p.Alloc())
	}
	assert.Nil(t, p.Alloc())
}

func TestAllocAfterCapacityExhaustedReturnsNilImmediately(t *testing.T) {
	p, err := New(4, func() *rcbStub { return &rcbStub{} })
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NotNil(t, p.Alloc())
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Nil(t, p.Alloc())
	}()
	<-done
}
