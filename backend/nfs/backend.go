package nfs

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/inode"
	"github.com/dpfs-project/dpfs/internal/nfsclient/compound"
	nfs4 "github.com/dpfs-project/dpfs/internal/nfsclient/types"
)

// wire is the byte order FUSE's low-level ABI uses on every real virtio-fs
// target (the kernel structs are native-endian and every supported
// architecture here is little-endian).
var wire = binary.LittleEndian

// file is the per-inode state this backend attaches to an
// internal/inode.Table Entry: the metadata filehandle, the cached
// open-filehandle/stateid once opened, and the FUSE open refcount.
type file struct {
	mu      sync.Mutex
	fh      nfs4.FileHandle
	openFH  nfs4.FileHandle
	stateid nfs4.Stateid4
	nopen   int
}

// Config is what the caller (cmd/dpfs-nfs) supplies to stand up a
// Backend, mirroring internal/config.NFSConfig plus the thread count the
// HAL was configured with (one connection per thread, spec.md §4.7).
type Config struct {
	Server   string
	Export   string
	NThreads int
}

// Backend is the NFSv4.1 backend engine: a fixed set of bring-up'd
// connections plus the inode table translating FUSE nodeids to cached
// NFS filehandles.
type Backend struct {
	conns   []*Connection
	rootFH  nfs4.FileHandle
	inodes  *inode.Table
	nextConn atomic.Uint64
}

// New performs connection bring-up for every configured thread per
// spec.md §4.7's sequential bring-up loop, then returns a ready Backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.NThreads <= 0 {
		cfg.NThreads = 1
	}
	owner := nfs4.ClientOwner4{
		Verifier: randomVerifier(),
		Opaque:   []byte(fmt.Sprintf("dpfs-client-%d", os.Getpid())),
	}
	pathComponents := strings.Split(strings.Trim(cfg.Export, "/"), "/")

	b := &Backend{inodes: inode.New(0)}
	var trunk *TrunkRecord
	for i := 0; i < cfg.NThreads; i++ {
		conn, newTrunk, rootFH, err := bringUp(ctx, cfg.Server, i, owner, trunk, pathComponents)
		if err != nil {
			for _, c := range b.conns {
				c.Close()
			}
			return nil, fmt.Errorf("nfs: connection %d bring-up: %w", i, err)
		}
		trunk = newTrunk
		if i == 0 {
			b.rootFH = rootFH
			b.inodes.Insert(fuseops.RootID, &file{fh: rootFH})
		}
		b.conns = append(b.conns, conn)
	}
	return b, nil
}

// pickConn round-robins across established connections, skipping any
// that are no longer in ConnEstablished (a closed connection is in
// SHOULD_CLOSE).
func (b *Backend) pickConn() (*Connection, error) {
	n := uint64(len(b.conns))
	for i := uint64(0); i < n; i++ {
		idx := (b.nextConn.Add(1)) % n
		c := b.conns[idx]
		if c.State() == ConnEstablished {
			return c, nil
		}
	}
	return nil, fmt.Errorf("nfs: no established connections")
}

func fileOf(e *inode.Entry) *file { return e.Ref.(*file) }

// Handlers returns the dispatch.Handler table for every opcode this
// backend answers, per spec.md §4.7's operation list.
func (b *Backend) Handlers() map[fuseops.Opcode]dispatch.Handler {
	return map[fuseops.Opcode]dispatch.Handler{
		fuseops.OpLookup:  b.handleLookup,
		fuseops.OpGetattr: b.handleGetattr,
		fuseops.OpSetattr: b.handleSetattr,
		fuseops.OpStatfs:  b.handleStatfs,
		fuseops.OpOpen:    b.handleOpen,
		fuseops.OpCreate:  b.handleCreate,
		fuseops.OpRead:    b.handleRead,
		fuseops.OpWrite:   b.handleWrite,
		fuseops.OpFsync:   b.handleFsync,
		fuseops.OpRelease: b.handleRelease,
	}
}

func errnoNeg(errno syscall.Errno) int32 { return -int32(errno) }

func toAttr(fileid uint64, a *compound.Attrs) fuseops.Attr {
	mode := a.Mode
	switch a.Type {
	case nfs4.NF4DIR:
		mode |= syscall.S_IFDIR
	default:
		mode |= syscall.S_IFREG
	}
	return fuseops.Attr{
		Ino:      fileid,
		Size:     a.Size,
		Mtime:    uint64(a.MtimeSec),
		MtimeNsec: a.MtimeNsec,
		Mode:     mode,
		Nlink:    a.Numlinks,
	}
}

// lookupAndAttr runs SEQUENCE, PUTFH(parent), LOOKUP(name), GETATTR,
// GETFH — spec.md §4.7's LOOKUP compound — on behalf of handleLookup.
func (c *Connection) lookupAndAttr(parentFH nfs4.FileHandle, name string) (nfs4.FileHandle, *compound.Attrs, uint32, error) {
	seq, err := c.claimSequence()
	if err != nil {
		return nil, nil, 0, err
	}
	defer seq.release()

	putfh, err := compound.PutFH(parentFH)
	if err != nil {
		return nil, nil, 0, err
	}
	lookup, err := compound.Lookup(name)
	if err != nil {
		return nil, nil, 0, err
	}
	getattr, err := compound.GetAttr(compound.StandardAttrs)
	if err != nil {
		return nil, nil, 0, err
	}
	getfh, err := compound.GetFH()
	if err != nil {
		return nil, nil, 0, err
	}

	reply, err := sendCompound(c.conn, c.xid.Add(1), []compound.Op{seq.op, putfh, lookup, getattr, getfh})
	if err != nil {
		return nil, nil, 0, err
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return nil, nil, 0, err
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return nil, nil, status, err
	}
	status, err := reply.DecodeStatusOnly()
	if err != nil || status != nfs4.NFS4_OK {
		return nil, nil, status, err
	}
	status, attrs, err := reply.DecodeGetAttr()
	if err != nil || status != nfs4.NFS4_OK {
		return nil, nil, status, err
	}
	status, fh, err := reply.DecodeGetFH()
	if err != nil || status != nfs4.NFS4_OK {
		return nil, attrs, status, err
	}
	return fh, attrs, nfs4.NFS4_OK, nil
}

func (b *Backend) handleLookup(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	name := cString(in)
	parentEntry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}

	fh, attrs, status, err := conn.lookupAndAttr(fileOf(parentEntry).fh, name)
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}

	entry, existed := b.inodes.Get(attrs.Fileid)
	if !existed {
		entry = b.inodes.Insert(attrs.Fileid, &file{fh: fh})
	} else {
		b.inodes.Lookup(attrs.Fileid)
	}

	out.WriteBuf(encodeEntryOut(entry.Nodeid, entry.Generation, attrs))
	return 0, dispatch.Done
}

func (b *Backend) handleGetattr(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}

	attrs, status, err := conn.getattr(fileOf(entry).fh)
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	out.WriteBuf(encodeAttrOut(hdr.Nodeid, attrs))
	return 0, dispatch.Done
}

func (c *Connection) getattr(fh nfs4.FileHandle) (*compound.Attrs, uint32, error) {
	seq, err := c.claimSequence()
	if err != nil {
		return nil, 0, err
	}
	defer seq.release()

	putfh, err := compound.PutFH(fh)
	if err != nil {
		return nil, 0, err
	}
	getattr, err := compound.GetAttr(compound.StandardAttrs)
	if err != nil {
		return nil, 0, err
	}
	reply, err := sendCompound(c.conn, c.xid.Add(1), []compound.Op{seq.op, putfh, getattr})
	if err != nil {
		return nil, 0, err
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return nil, 0, err
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return nil, status, err
	}
	status, attrs, err := reply.DecodeGetAttr()
	return attrs, status, err
}

func (b *Backend) handleSetattr(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.SetattrIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}

	setMode := req.Valid&fuseops.SetAttrMode != 0
	setSize := req.Valid&fuseops.SetAttrSize != 0

	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(fileOf(entry).fh)
	setattr, _ := compound.SetAttr(setMode, req.Mode, setSize, req.Size)
	getattr, _ := compound.GetAttr(compound.StandardAttrs)
	reply, err := sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, setattr, getattr})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	if status, err := reply.DecodeSetAttr(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, attrs, err := reply.DecodeGetAttr()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	out.WriteBuf(encodeAttrOut(hdr.Nodeid, attrs))
	return 0, dispatch.Done
}

func (b *Backend) handleStatfs(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(b.rootFH)
	getattr, _ := compound.GetAttr(compound.StatfsAttrs)
	reply, err := sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, getattr})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, attrs, err := reply.DecodeGetAttr()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}

	out.WriteBuf(encodeStatfsOut(attrs))
	return 0, dispatch.Done
}

func (b *Backend) handleOpen(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	return b.open(hdr, out, false, 0)
}

func (b *Backend) handleCreate(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.CreateIn
	r := bytes.NewReader(in)
	if err := binary.Read(r, wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	name := cString(in[16:])

	parentEntry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}

	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	putfh, _ := compound.PutFH(fileOf(parentEntry).fh)
	openSeq := conn.nextOpenSeq()
	openOp, _ := compound.OpenCreateUnchecked(openSeq, conn.clientID, openSeq, req.Mode)
	lookupOp, _ := compound.Lookup(name)
	getattr, _ := compound.GetAttr(compound.StandardAttrs)
	getfh, _ := compound.GetFH()

	reply, err := sendCompound(conn.conn, conn.xid.Add(1),
		[]compound.Op{seq.op, putfh, openOp, lookupOp, getattr, getfh})
	seq.release()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, openRes, err := reply.DecodeOpen()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	if openRes.RFlags&uint32(nfs4.OPEN4_RESULT_CONFIRM) != 0 {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, attrs, err := reply.DecodeGetAttr()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, fh, err := reply.DecodeGetFH()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}

	entry := b.inodes.Insert(attrs.Fileid, &file{fh: fh, openFH: fh, stateid: openRes.Stateid, nopen: 1})
	out.WriteBuf(encodeEntryOut(entry.Nodeid, entry.Generation, attrs))
	out.WriteBuf(encodeOpenOut(entry.Nodeid))
	return 0, dispatch.Done
}

// open implements spec.md §4.7's OPEN table: idempotent per inode —
// a second OPEN while nopen>=1 replies synchronously with a zeroed
// open-out.
func (b *Backend) open(hdr fuseops.InHeader, out dispatchCursor, _ bool, _ uint32) (int32, dispatch.Status) {
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	f := fileOf(entry)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nopen > 0 {
		f.nopen++
		out.WriteBuf(encodeOpenOut(0))
		return 0, dispatch.Done
	}

	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(f.fh)
	openSeq := conn.nextOpenSeq()
	openOp, _ := compound.OpenNoCreate(openSeq, conn.clientID, openSeq)
	getfh, _ := compound.GetFH()

	reply, err := sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, openOp, getfh})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, openRes, err := reply.DecodeOpen()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	if openRes.RFlags&uint32(nfs4.OPEN4_RESULT_CONFIRM) != 0 {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	status, openFH, err := reply.DecodeGetFH()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}

	f.openFH = openFH
	f.stateid = openRes.Stateid
	f.nopen = 1

	out.WriteBuf(encodeOpenOut(hdr.Nodeid))
	return 0, dispatch.Done
}

func (b *Backend) handleRead(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.ReadIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	f := fileOf(entry)
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(f.openFH)
	readOp, _ := compound.Read(f.stateid, req.Offset, req.Size)
	reply, err := sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, readOp})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, res, err := reply.DecodeRead()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	if err := out.WriteBuf(res.Data); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleWrite sends SEQUENCE, PUTFH(open-fh) and a single UNSTABLE4 WRITE
// op carrying the whole payload that follows WriteIn. The payload is not
// split into several WRITE ops, and neither the session's max-operations
// nor its max request size is checked against it.
func (b *Backend) handleWrite(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.WriteIn
	r := bytes.NewReader(in)
	if err := binary.Read(r, wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}
	payload := in[binary.Size(req):]

	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	f := fileOf(entry)
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(f.openFH)
	writeOp, _ := compound.Write(f.stateid, req.Offset, nfs4.UNSTABLE4, payload)
	reply, err := sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, writeOp})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	status, wres, err := reply.DecodeWrite()
	if err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}

	var wo fuseops.WriteOut
	wo.Size = wres.Count
	var buf bytes.Buffer
	binary.Write(&buf, wire, &wo)
	out.WriteBuf(buf.Bytes())
	return 0, dispatch.Done
}

func (b *Backend) handleFsync(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}
	conn, err := b.pickConn()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	seq, err := conn.claimSequence()
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(fileOf(entry).fh)
	commitOp, _ := compound.Commit()
	reply, err := sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, commitOp})
	if err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return errnoNeg(syscall.EREMOTEIO), dispatch.Done
	}
	// COMMIT4resok is only a write verifier this engine never inspects
	// (FUSE's FSYNC has no verifier concept); the status check above is
	// the only thing that matters, and nothing follows COMMIT in this
	// compound so the unread verifier bytes are harmless.
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return errnoNeg(nfs4.MapStatus(status)), dispatch.Done
	}
	return 0, dispatch.Done
}

// handleRelease implements spec.md §4.7's RELEASE table: decrement
// nopen; only at zero does it issue CLOSE.
func (b *Backend) handleRelease(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	entry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return 0, dispatch.Done
	}
	f := fileOf(entry)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nopen == 0 {
		return 0, dispatch.Done
	}
	f.nopen--
	if f.nopen > 0 {
		return 0, dispatch.Done
	}

	conn, err := b.pickConn()
	if err != nil {
		return 0, dispatch.Done
	}
	seq, err := conn.claimSequence()
	if err != nil {
		return 0, dispatch.Done
	}
	defer seq.release()

	putfh, _ := compound.PutFH(f.openFH)
	closeOp, _ := compound.Close(conn.nextOpenSeq(), f.stateid)
	sendCompound(conn.conn, conn.xid.Add(1), []compound.Op{seq.op, putfh, closeOp})
	return 0, dispatch.Done
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// dispatchCursor is a type alias (not a defined type) for the exact
// anonymous interface internal/dispatch.Handler expects as its out
// parameter, so handler methods declared against it satisfy
// dispatch.Handler without a wrapper.
type dispatchCursor = interface {
	WriteBuf([]byte) error
	BytesUnused() int
}

func encodeEntryOut(nodeid, generation uint64, a *compound.Attrs) []byte {
	e := fuseops.EntryOut{
		Nodeid:        nodeid,
		Generation:    generation,
		EntryValidSec: 1,
		AttrValidSec:  1,
		Attr:          toAttr(nodeid, a),
	}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &e)
	return buf.Bytes()
}

func encodeAttrOut(nodeid uint64, a *compound.Attrs) []byte {
	ao := fuseops.AttrOut{
		AttrValidSec: 1,
		Attr:         toAttr(nodeid, a),
	}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &ao)
	return buf.Bytes()
}

// encodeOpenOut uses the nodeid as the FUSE file handle: this backend
// keeps all per-open state in the inode table keyed by nodeid, so it
// never needs a separate FH namespace.
func encodeOpenOut(nodeid uint64) []byte {
	oo := fuseops.OpenOut{FH: nodeid}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &oo)
	return buf.Bytes()
}

func encodeStatfsOut(a *compound.Attrs) []byte {
	so := fuseops.StatfsOut{
		St: fuseops.Kstatfs{
			Blocks:  a.SpaceTotal / 4096,
			Bfree:   a.SpaceFree / 4096,
			Bavail:  a.SpaceAvail / 4096,
			Files:   a.FilesTotal,
			Ffree:   a.FilesFree,
			Bsize:   4096,
			Namelen: a.MaxName,
			Frsize:  4096,
		},
	}
	var buf bytes.Buffer
	binary.Write(&buf, wire, &so)
	return buf.Bytes()
}
