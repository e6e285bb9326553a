// Package devserver is the glue every cmd/dpfs-* binary uses to turn a
// backend's Handlers() map into something internal/hal.New can poll: it
// owns the opcode-gated internal/dispatch.Table, negotiates one
// internal/session.Session per emulated device, and frames replies into
// the out_header internal/dispatch deliberately stays ignorant of.
// Most backends leave INIT unregistered (the negotiation is identical
// regardless of which backend answers the rest of the FUSE ABI), so
// Server negotiates it here instead of asking each backend to repeat the
// same handshake; a backend that registers its own INIT handler (such as
// backend/null) has INIT dispatched to that handler instead.
package devserver

import (
	"bytes"
	"encoding/binary"
	"sync"
	"syscall"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/hal"
	"github.com/dpfs-project/dpfs/internal/iovec"
	"github.com/dpfs-project/dpfs/internal/logger"
	"github.com/dpfs-project/dpfs/internal/session"
)

var wire = binary.LittleEndian

// DefaultCapable is the full set of negotiable capabilities this engine
// understands; a backend that needs to withhold one (e.g. POSIX locks)
// can build a Server with a narrower mask via NewWithCapable.
const DefaultCapable = fuseops.CapAsyncRead |
	fuseops.CapPosixLocks |
	fuseops.CapAtomicOTrunc |
	fuseops.CapExportSupport |
	fuseops.CapBigWrites |
	fuseops.CapDontMask |
	fuseops.CapFlockLocks |
	fuseops.CapHasIoctlDir |
	fuseops.CapDoReaddirplus |
	fuseops.CapReaddirplusAuto |
	fuseops.CapAsyncDIO |
	fuseops.CapWritebackCache |
	fuseops.CapParallelDirops |
	fuseops.CapHandleKillpriv |
	fuseops.CapMaxPages

// defaultMaxBackground is 64 queues × queue depth 64.
const defaultMaxBackground = 4096

var pageSize = uint32(syscall.Getpagesize())

func errnoNeg(errno syscall.Errno) int32 { return -int32(errno) }

// Server binds a dispatch.Table to hal.Handler's per-device contract.
type Server struct {
	table   *dispatch.Table
	capable uint32
	// ownInit is true when the backend registered its own OpInit handler
	// (e.g. backend/null's unconditional -ENOSYS reply); Server then
	// leaves INIT to the Table instead of negotiating a session itself.
	ownInit bool

	mu       sync.Mutex
	sessions map[uint16]*session.Session
}

// New builds a Server from a backend's Handlers() map, negotiating
// DefaultCapable on every device's INIT.
func New(handlers map[fuseops.Opcode]dispatch.Handler) *Server {
	return NewWithCapable(handlers, DefaultCapable)
}

// NewWithCapable is New with an explicit capability mask, for backends
// that must withhold a capability their storage cannot honor.
func NewWithCapable(handlers map[fuseops.Opcode]dispatch.Handler, capable uint32) *Server {
	_, ownInit := handlers[fuseops.OpInit]
	return &Server{
		table:    dispatch.NewTable(handlers),
		capable:  capable,
		ownInit:  ownInit,
		sessions: make(map[uint16]*session.Session),
	}
}

func (s *Server) sessionFor(deviceID uint16) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[deviceID]
	if !ok {
		sess = session.New(defaultMaxBackground)
		s.sessions[deviceID] = sess
	}
	return sess
}

// Handler adapts Handle to hal.Params.Handler's function type.
func (s *Server) Handler() hal.Handler { return s.Handle }

// Handle services one HAL-delivered request: it decodes the fixed
// in_header, negotiates INIT or dispatches through the Table, and writes
// the fuse_out_header (len, error, unique) once the handler has filled
// outIov[1:].
func (s *Server) Handle(deviceID uint16, inIov [][]byte, outIov [][]byte, _ hal.CompletionToken) int {
	if len(inIov) == 0 {
		return int(syscall.EINVAL)
	}

	var hdr fuseops.InHeader
	if err := binary.Read(bytes.NewReader(inIov[0]), wire, &hdr); err != nil {
		return int(syscall.EINVAL)
	}

	// FORGET/BATCH_FORGET carry no reply at all; the kernel never reads
	// out_iov for them, so there may be zero output segments.
	if len(outIov) == 0 {
		var inRest []byte
		if len(inIov) > 1 {
			inRest = inIov[1]
		}
		s.table.Dispatch(s.sessionFor(deviceID), inIov[0], inRest, len(inIov), 0, iovec.NewCursor(nil))
		return 0
	}

	body := outIov[1:]
	cur := iovec.NewCursor(body)
	cap0 := cur.BytesUnused()

	var errno int32
	var status dispatch.Status
	if hdr.Opcode == fuseops.OpInit && !s.ownInit {
		errno, status = s.handleInit(deviceID, hdr, inIov, cur)
	} else {
		var inRest []byte
		if len(inIov) > 1 {
			inRest = inIov[1]
		}
		_, errno, status = s.table.Dispatch(s.sessionFor(deviceID), inIov[0], inRest, len(inIov), len(outIov), cur)
	}

	if status == dispatch.Pending {
		return hal.EWouldBlock
	}

	used := cap0 - cur.BytesUnused()
	dispatch.EncodeOutHeader(outIov[0], hdr.Unique, uint32(fuseops.OutHeaderSize+used), errno)
	return 0
}

func (s *Server) handleInit(deviceID uint16, hdr fuseops.InHeader, inIov [][]byte, cur *iovec.Cursor) (int32, dispatch.Status) {
	if len(inIov) < 2 {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	var in fuseops.InitIn
	if err := binary.Read(bytes.NewReader(inIov[1]), wire, &in); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}

	out, err := s.sessionFor(deviceID).Init(&in, s.capable, pageSize)
	if err != nil {
		logger.Warn("devserver: duplicate INIT", "device", deviceID, "err", err)
		return errnoNeg(syscall.EALREADY), dispatch.Done
	}

	var buf bytes.Buffer
	binary.Write(&buf, wire, out)
	if err := cur.WriteBuf(buf.Bytes()); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}
