package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPartitionsDevicesWithRemainderOnThreadZero(t *testing.T) {
	registered := map[uint16]bool{}
	h := New(Params{
		NThreads: 3,
		Devices:  []uint16{0, 1, 2, 3, 4, 5, 6},
		RegisterDevice: func(id uint16) {
			registered[id] = true
		},
	})

	assert.Len(t, h.threads, 3)
	// 7 devices over 3 threads: floor(7/3)=2, remainder=1 -> thread0 gets 3, others 2.
	assert.Len(t, h.threads[0].devices, 3)
	assert.Len(t, h.threads[1].devices, 2)
	assert.Len(t, h.threads[2].devices, 2)

	for i := uint16(0); i < 7; i++ {
		assert.True(t, registered[i])
	}
}

func TestNewDefaultsToOneThread(t *testing.T) {
	h := New(Params{Devices: []uint16{0, 1}})
	assert.Len(t, h.threads, 1)
	assert.Len(t, h.threads[0].devices, 2)
}

func TestAsyncCompleteInvokesTokenCallback(t *testing.T) {
	h := New(Params{Devices: []uint16{0}})
	var gotStatus CompletionStatus = -1
	token := NewToken(0, func(s CompletionStatus) { gotStatus = s })

	h.AsyncComplete(token, CompletionSuccess)
	assert.Equal(t, CompletionSuccess, gotStatus)
}

func TestMockDevicesPartitionedSeparately(t *testing.T) {
	h := New(Params{
		Devices:     []uint16{0, 1},
		MockDevices: []uint16{10, 11},
	})
	assert.NotNil(t, h.mockThread)
	assert.Len(t, h.mockThread.devices, 2)
	assert.True(t, h.mockThread.devices[0].Mock)
}

func TestSuspendAllMarksDevicesSuspended(t *testing.T) {
	h := New(Params{Devices: []uint16{0, 1}})
	h.suspendAll(h.threads[0].devices)
	for _, d := range h.threads[0].devices {
		assert.True(t, d.isSuspended())
	}
}
