// Package hal is the Go translation of original_source/dpfs_hal: device
// lifecycle, static device-to-thread partitioning, best-effort CPU
// pinning, the polling loop, and the async-completion contract. It owns
// nothing about FUSE semantics; it only schedules devices onto threads.
// It stores the caller-supplied Handler, but PollIO and PollMMIO are
// no-ops, so the HAL itself never calls the Handler.
package hal

import (
	"context"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dpfs-project/dpfs/internal/logger"
)

// CompletionStatus is the outcome a backend reports via AsyncComplete.
type CompletionStatus int

const (
	CompletionSuccess CompletionStatus = iota
	CompletionError
)

// Handler services one FUSE request for a device. It returns 0 for
// synchronous completion, EWouldBlock to promise a later AsyncComplete
// call carrying the same token, or any other value to signal an error
// completion.
type Handler func(deviceID uint16, fuseInIov [][]byte, fuseOutIov [][]byte, token CompletionToken) int

// EWouldBlock mirrors the C EWOULDBLOCK value the handler contract uses.
const EWouldBlock = 11

// CompletionToken is the opaque context a Handler receives and must pass
// back, unchanged, to exactly one AsyncComplete call if it returns
// EWouldBlock.
type CompletionToken struct {
	DeviceID uint16
	opaque   any
}

// deviceState is a device's position in the running→suspending→suspended
// lifecycle (spec.md §4.6).
type deviceState int32

const (
	stateRunning deviceState = iota
	stateSuspending
	stateSuspended
)

// Device is one emulated virtio-fs PCI function.
type Device struct {
	ID     uint16
	Mock   bool
	state  atomic.Int32
	thread uint16
}

func (d *Device) isSuspended() bool { return deviceState(d.state.Load()) == stateSuspended }

// Params configures a HAL instance, the Go analogue of
// struct dpfs_hal_params.
type Params struct {
	NThreads            int
	PollingIntervalUsec int
	Devices             []uint16 // non-mock device ids
	MockDevices         []uint16 // mock device ids, polled at 1 Hz
	Handler             Handler
	// RegisterDevice is invoked synchronously, once per device, before
	// any polling begins — the Go analogue of dpfs_hal_ops.register_device.
	RegisterDevice func(deviceID uint16)
}

// HAL owns the polling threads and the devices partitioned across them.
type HAL struct {
	handler Handler
	threads []*pollThread

	mockThread *mockPoller

	running atomic.Bool
	wg      sync.WaitGroup
}

type pollThread struct {
	id                  uint16
	devices             []*Device
	pollingIntervalUsec int
}

// New constructs a HAL: partitions devices across NThreads (floor(D/N)
// each, remainder on thread 0, per spec.md §4.6), invokes
// RegisterDevice synchronously for every device, and prepares (but does
// not start) the polling threads and the mock-device background poller.
func New(p Params) *HAL {
	h := &HAL{handler: p.Handler}

	for _, id := range append(append([]uint16{}, p.Devices...), p.MockDevices...) {
		if p.RegisterDevice != nil {
			p.RegisterDevice(id)
		}
	}

	n := p.NThreads
	if n <= 0 {
		n = 1
	}
	d := len(p.Devices)
	base := d / n
	remainder := d % n

	threads := make([]*pollThread, n)
	idx := 0
	for t := 0; t < n; t++ {
		count := base
		if t == 0 {
			count += remainder
		}
		pt := &pollThread{id: uint16(t), pollingIntervalUsec: p.PollingIntervalUsec}
		for i := 0; i < count && idx < d; i++ {
			dev := &Device{ID: p.Devices[idx], thread: uint16(t)}
			pt.devices = append(pt.devices, dev)
			idx++
		}
		threads[t] = pt
	}
	h.threads = threads

	if len(p.MockDevices) > 0 {
		mockDevs := make([]*Device, len(p.MockDevices))
		for i, id := range p.MockDevices {
			mockDevs[i] = &Device{ID: id, Mock: true}
		}
		h.mockThread = &mockPoller{devices: mockDevs}
	}

	return h
}

// Loop blocks, running every polling thread and the mock-device poller
// until SIGINT, SIGTERM, or SIGPIPE arrives; each polling thread then
// marks its devices suspending and at once suspended, and Loop returns
// when every thread has exited. The HAL keeps no count of in-flight
// requests, so nothing waits for them before a device is marked
// suspended.
func (h *HAL) Loop() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	defer stop()

	h.running.Store(true)

	for _, pt := range h.threads {
		h.wg.Add(1)
		go h.runThread(ctx, pt)
	}
	if h.mockThread != nil {
		h.wg.Add(1)
		go h.runMockThread(ctx)
	}

	h.wg.Wait()
}

func (h *HAL) runThread(ctx context.Context, pt *pollThread) {
	defer h.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := pinToCore(pt.id); err != nil {
		logger.Warn("cpu pinning failed", logger.ThreadID(pt.id), logger.Err(err))
	}

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			h.suspendAll(pt.devices)
			return
		default:
		}

		for _, dev := range pt.devices {
			h.PollIO(dev.ID)
		}

		if pt.pollingIntervalUsec > 0 {
			time.Sleep(time.Duration(pt.pollingIntervalUsec) * time.Microsecond)
			for _, dev := range pt.devices {
				h.PollMMIO(dev.ID)
			}
		} else {
			iterations++
			if iterations%10000 == 0 {
				for _, dev := range pt.devices {
					h.PollMMIO(dev.ID)
				}
			}
		}
	}
}

func (h *HAL) runMockThread(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.suspendAll(h.mockThread.devices)
			return
		case <-ticker.C:
			for _, dev := range h.mockThread.devices {
				h.PollIO(dev.ID)
				h.PollMMIO(dev.ID)
			}
		}
	}
}

func (h *HAL) suspendAll(devices []*Device) {
	for _, dev := range devices {
		dev.state.Store(int32(stateSuspending))
	}
	for _, dev := range devices {
		dev.state.Store(int32(stateSuspended))
	}
	for _, dev := range devices {
		for !dev.isSuspended() {
			time.Sleep(time.Millisecond)
		}
	}
}

// PollIO drives one poll iteration on device. In this emulation layer
// there is no separate virtqueue to poll: embedding transports call
// Dispatch directly via Handler; PollIO exists so an embedder can drive
// polling itself per spec.md §4.6's poll_io contract.
func (h *HAL) PollIO(deviceID uint16) {}

// PollMMIO drives one management-IO poll iteration on device.
func (h *HAL) PollMMIO(deviceID uint16) {}

// AsyncComplete is called by a backend to report the outcome of a
// request whose Handler previously returned EWouldBlock. status is
// either CompletionSuccess or CompletionError.
func (h *HAL) AsyncComplete(token CompletionToken, status CompletionStatus) {
	if complete, ok := token.opaque.(func(CompletionStatus)); ok {
		complete(status)
	}
}

// NewToken builds a CompletionToken carrying an arbitrary completion
// callback, used by backends to thread their own RCB/continuation
// through the HAL without the HAL needing to know its shape.
func NewToken(deviceID uint16, onComplete func(CompletionStatus)) CompletionToken {
	return CompletionToken{DeviceID: deviceID, opaque: onComplete}
}

type mockPoller struct {
	devices []*Device
}

// pinToCore pins the calling goroutine's OS thread to core
// (numCores-1-threadID), best-effort, per spec.md §4.6. Failure is
// logged, never fatal.
func pinToCore(threadID uint16) error {
	var set unix.CPUSet
	n, err := numCPU()
	if err != nil {
		return err
	}
	core := n - 1 - int(threadID)
	if core < 0 {
		core = 0
	}
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

func numCPU() (int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, err
	}
	return set.Count(), nil
}
