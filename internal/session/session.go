// Package session implements the FUSE per-connection session state
// machine: the INIT/DESTROY handshake, capability negotiation, and the
// buffer-sizing rules of spec.md §4.3.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/dpfs-project/dpfs/internal/dpfserr"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

// State is one of the three session lifecycle states.
type State int32

const (
	Uninit State = iota
	Initialized
	Destroyed
)

// Capabilities the engine always negotiates on, per spec.md §4.3.
const mandatoryWant = fuseops.CapAsyncRead |
	fuseops.CapParallelDirops |
	fuseops.CapHandleKillpriv |
	fuseops.CapAsyncDIO |
	fuseops.CapHasIoctlDir |
	fuseops.CapAtomicOTrunc |
	fuseops.CapFlockLocks |
	fuseops.CapDoReaddirplus |
	fuseops.CapReaddirplusAuto

// Capabilities that must never be enabled regardless of client request.
const forcedOff = fuseops.CapSpliceRead | fuseops.CapSpliceWrite

// Session holds the per-device negotiated FUSE session state. One Session
// exists per emulated device.
type Session struct {
	mu sync.Mutex

	state State

	ProtoMinor          uint32
	Capable             uint32
	Want                uint32
	MaxWrite            uint32
	MaxReadahead        uint32
	MaxBackground       uint16
	CongestionThreshold uint16
	Bufsize             uint32
	TimeGranNsec        uint32

	// AutoInvalData defaults to false: enabling it measurably regresses
	// read performance (spec.md §4.3).
	AutoInvalData bool

	gotInit    atomic.Bool
	gotDestroy atomic.Bool
}

// New constructs a Session with capability-negotiation defaults applied;
// the caller (the backend's INIT handler) completes negotiation by
// calling Init with the client's proposal.
func New(maxBackground uint16) *Session {
	return &Session{
		state:               Uninit,
		MaxBackground:       maxBackground,
		CongestionThreshold: maxBackground * 3 / 4,
		TimeGranNsec:        1,
	}
}

// Ready reports whether requests other than INIT/FORGET/DESTROY may
// proceed: initialized and not yet destroyed.
func (s *Session) Ready() bool {
	return s.gotInit.Load() && !s.gotDestroy.Load()
}

// CheckOpcode enforces spec.md §4.3/§4.5's ordering rule: anything other
// than INIT/FORGET/DESTROY before INIT (or after DESTROY) is EBUSY.
func (s *Session) CheckOpcode(op fuseops.Opcode) error {
	switch op {
	case fuseops.OpInit, fuseops.OpForget, fuseops.OpBatchForget, fuseops.OpDestroy:
		return nil
	}
	if !s.Ready() {
		return dpfserr.ErrNotInitialized
	}
	return nil
}

// Init performs the INIT handshake: it validates state, negotiates
// capabilities, clamps bufsize, and records the session as initialized.
// capable is the full set of capabilities this backend supports.
func (s *Session) Init(in *fuseops.InitIn, capable uint32, pageSize uint32) (*fuseops.InitOut, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Initialized {
		return nil, dpfserr.ErrAlreadyInitialized
	}

	s.ProtoMinor = in.Minor
	s.Capable = capable
	negotiated := (in.Flags & capable) | mandatoryWant
	negotiated &^= forcedOff
	if !s.AutoInvalData {
		negotiated &^= fuseops.CapAutoInvalData
	}
	s.Want = negotiated

	s.MaxReadahead = in.MaxReadahead
	s.MaxWrite = 128 * 1024

	if in.Flags&fuseops.CapMaxPages == 0 {
		s.Bufsize = fuseops.DefaultMaxPagesPerReq*pageSize + fuseops.BufferHeaderOverhead
	} else {
		s.Bufsize = fuseops.MinReadBuffer
	}
	if s.Bufsize < fuseops.MinReadBuffer {
		s.Bufsize = fuseops.MinReadBuffer
	}

	s.state = Initialized
	s.gotInit.Store(true)

	return &fuseops.InitOut{
		Major:               fuseops.KernelVersion,
		Minor:               fuseops.KernelMinorVersion,
		MaxReadahead:        s.MaxReadahead,
		Flags:               s.Want,
		MaxBackground:       s.MaxBackground,
		CongestionThreshold: s.CongestionThreshold,
		MaxWrite:            s.MaxWrite,
		TimeGranNsec:        s.TimeGranNsec,
	}, nil
}

// Destroy marks the session as torn down; subsequent operations behave
// as if the session were never initialized.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Destroyed
	s.gotDestroy.Store(true)
}

// CurrentState returns the current lifecycle state.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
