package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllFamiliesWithoutPanicking(t *testing.T) {
	r := New()
	require.NotNil(t, r)

	r.RequestsTotal.WithLabelValues("LOOKUP", "ok").Inc()
	r.RequestDuration.WithLabelValues("LOOKUP").Observe(1.2)
	r.BytesRead.Add(128)
	r.QueueDepth.WithLabelValues("0").Set(4)
	r.PoolExhaustions.WithLabelValues("rx").Inc()
	r.SlotsInUse.WithLabelValues("0").Set(2)

	mfs, err := r.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	r1 := New()
	r2 := New()
	assert.NotPanics(t, func() {
		r1.RequestsTotal.WithLabelValues("READ", "ok").Inc()
		r2.RequestsTotal.WithLabelValues("READ", "ok").Inc()
	})
}
