// Package dispatch implements the opcode-indexed FUSE request dispatcher:
// decoding the input header, validating iovec counts per spec.md §4.5's
// table, routing to the backend's Handler, and framing the reply.
package dispatch

import (
	"encoding/binary"

	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/session"
)

// Status is the outcome of a Handler invocation.
type Status int

const (
	// Done means the handler completed synchronously; out_iov is ready.
	Done Status = iota
	// Pending means the handler returned EWOULDBLOCK; a later
	// AsyncComplete call on the owning HAL device will finish the reply.
	Pending
)

// Handler services one opcode. It reads the request from in (including
// the already-decoded header) and writes the reply body (NOT the
// fuse_out_header, which the dispatcher owns) into out. It returns a
// negative POSIX errno on failure, 0 on success, or the special
// EWouldBlock sentinel to indicate async completion.
type Handler func(hdr fuseops.InHeader, in []byte, out iovecCursor) (errno int32, status Status)

// EWouldBlock is the sentinel errno a Handler returns to mean "I will
// complete this asynchronously via the HAL's completion contract."
const EWouldBlock int32 = -11 // matches EWOULDBLOCK/EAGAIN

// iovecCursor is the minimal surface dispatch needs from internal/iovec's
// Cursor; declared locally to avoid a hard dependency edge from dispatch
// to iovec beyond what handlers themselves already need.
type iovecCursor = interface {
	WriteBuf([]byte) error
	BytesUnused() int
}

// ioCounts records the exact (or minimum) input/output iovec counts the
// spec mandates for one opcode.
type ioCounts struct {
	in, out   int
	inAtLeast bool
	outAtLeast bool
}

// validation is the per-opcode iovec-count table of spec.md §4.5.
var validation = map[fuseops.Opcode]ioCounts{
	fuseops.OpInit:          {in: 2, out: 2},
	fuseops.OpDestroy:       {in: 1, out: 1},
	fuseops.OpLookup:        {in: 2, out: 2},
	fuseops.OpGetattr:       {in: 2, out: 2},
	fuseops.OpSetattr:       {in: 2, out: 2},
	fuseops.OpOpen:          {in: 2, out: 2},
	fuseops.OpOpendir:       {in: 2, out: 2},
	fuseops.OpCreate:        {in: 2, out: 2},
	fuseops.OpRelease:       {in: 2, out: 1},
	fuseops.OpReleasedir:    {in: 2, out: 1},
	fuseops.OpFlush:         {in: 2, out: 1},
	fuseops.OpFsync:         {in: 2, out: 1},
	fuseops.OpFsyncdir:      {in: 2, out: 1},
	fuseops.OpRead:          {in: 2, out: 2, outAtLeast: true},
	fuseops.OpWrite:         {in: 2, out: 2, inAtLeast: true},
	fuseops.OpMknod:         {in: 2, out: 2},
	fuseops.OpMkdir:         {in: 2, out: 2},
	fuseops.OpSymlink:       {in: 2, out: 2},
	fuseops.OpRename:        {in: 2, out: 1},
	fuseops.OpRename2:       {in: 2, out: 1},
	fuseops.OpUnlink:        {in: 2, out: 1},
	fuseops.OpRmdir:         {in: 2, out: 1},
	fuseops.OpStatfs:        {in: 1, out: 2},
	fuseops.OpReaddir:       {in: 2, out: 2, inAtLeast: true, outAtLeast: true},
	fuseops.OpReaddirplus:   {in: 2, out: 2, inAtLeast: true, outAtLeast: true},
	fuseops.OpForget:        {in: 1, out: 0},
	fuseops.OpBatchForget:   {in: 1, out: 0},
	fuseops.OpSetlk:         {in: 2, out: 1},
	fuseops.OpSetlkw:        {in: 2, out: 1},
	fuseops.OpFallocate:     {in: 2, out: 1},
}

func (c ioCounts) matches(inN, outN int) bool {
	inOK := inN == c.in
	if c.inAtLeast {
		inOK = inN >= c.in
	}
	outOK := outN == c.out
	if c.outAtLeast {
		outOK = outN >= c.out
	}
	return inOK && outOK
}

// Table is the immutable opcode→handler map, built once at HAL/device
// construction and never mutated afterward, per spec.md §5's "Opcode→
// handler dispatch tables are immutable after HAL construction."
type Table struct {
	handlers map[fuseops.Opcode]Handler
}

// NewTable builds a dispatch Table from the given handler set. Opcodes
// with no registered handler fall through to ENOSYS at dispatch time.
func NewTable(handlers map[fuseops.Opcode]Handler) *Table {
	cp := make(map[fuseops.Opcode]Handler, len(handlers))
	for k, v := range handlers {
		cp[k] = v
	}
	return &Table{handlers: cp}
}

const (
	errEinval    int32 = -22
	errEbusy     int32 = -16
	errEnosys    int32 = -38
)

// Dispatch decodes in[0]'s header, validates state and iovec counts, and
// invokes the registered handler (if any). It returns the negative errno
// to place in the out_header's error field (0 on success) and the
// completion status. The caller is responsible for writing the
// out_header itself (len, error, unique) using the returned values; this
// keeps Dispatch ignorant of where the out_header bytes live in out.
func (t *Table) Dispatch(sess *session.Session, hdrBytes []byte, inRest []byte, inIovcnt int, outIovcnt int, out iovecCursor) (unique uint64, errno int32, status Status) {
	hdr := decodeHeader(hdrBytes)
	unique = hdr.Unique

	if err := sess.CheckOpcode(hdr.Opcode); err != nil {
		return unique, errEbusy, Done
	}

	h, ok := t.handlers[hdr.Opcode]
	if !ok {
		return unique, errEnosys, Done
	}

	if c, ok := validation[hdr.Opcode]; ok && !c.matches(inIovcnt, outIovcnt) {
		return unique, errEinval, Done
	}

	e, st := h(hdr, inRest, out)
	if st == Pending {
		return unique, 0, Pending
	}
	if e == EWouldBlock {
		return unique, 0, Pending
	}
	return unique, e, Done
}

func decodeHeader(b []byte) fuseops.InHeader {
	return fuseops.InHeader{
		Len:     binary.LittleEndian.Uint32(b[0:4]),
		Opcode:  fuseops.Opcode(binary.LittleEndian.Uint32(b[4:8])),
		Unique:  binary.LittleEndian.Uint64(b[8:16]),
		Nodeid:  binary.LittleEndian.Uint64(b[16:24]),
		UID:     binary.LittleEndian.Uint32(b[24:28]),
		GID:     binary.LittleEndian.Uint32(b[28:32]),
		PID:     binary.LittleEndian.Uint32(b[32:36]),
		Padding: binary.LittleEndian.Uint32(b[36:40]),
	}
}

// EncodeOutHeader writes the fixed fuse_out_header into buf (which must
// be at least fuseops.OutHeaderSize bytes), per spec.md §4.5 step 2.
func EncodeOutHeader(buf []byte, unique uint64, length uint32, errno int32) {
	binary.LittleEndian.PutUint32(buf[0:4], length)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(errno))
	binary.LittleEndian.PutUint64(buf[8:16], unique)
}
