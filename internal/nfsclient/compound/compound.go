package compound

import (
	"bytes"
	"fmt"
	"io"

	nfs4 "github.com/dpfs-project/dpfs/internal/nfsclient/types"
	"github.com/dpfs-project/dpfs/internal/protocol/xdr"
)

// Op is one pre-encoded COMPOUND operation: an opcode followed by its
// already-serialized arguments.
type Op struct {
	Opcode uint32
	Args   []byte
}

func buildOp(opcode uint32, fill func(*bytes.Buffer) error) (Op, error) {
	var buf bytes.Buffer
	if err := fill(&buf); err != nil {
		return Op{}, fmt.Errorf("compound: encode op %d: %w", opcode, err)
	}
	return Op{Opcode: opcode, Args: buf.Bytes()}, nil
}

// EncodeArgs serializes the full COMPOUND4args body: tag, minorversion,
// and the op list, per RFC 8881 Section 15.1.
func EncodeArgs(tag string, ops []Op) ([]byte, error) {
	var buf bytes.Buffer
	if err := xdr.WriteXDRString(&buf, tag); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, nfs4.NFS4_MINOR_VERSION_1); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&buf, uint32(len(ops))); err != nil {
		return nil, err
	}
	for _, op := range ops {
		if err := xdr.WriteUint32(&buf, op.Opcode); err != nil {
			return nil, err
		}
		buf.Write(op.Args)
	}
	return buf.Bytes(), nil
}

// Reply is a parsed COMPOUND4res envelope: the overall status (the
// status of the last op processed, RFC 8881 Section 15.2), the echoed
// tag, and a reader positioned at the start of the op-result stream for
// per-operation Decode* calls.
type Reply struct {
	Status uint32
	Tag    string
	ops    io.Reader
}

// DecodeReply parses COMPOUND4res's fixed prefix (status, tag, op
// count) and returns a Reply whose embedded reader callers step through
// with the Decode* functions below, one call per op in the request they
// sent, in the same order.
func DecodeReply(data []byte) (*Reply, error) {
	r := bytes.NewReader(data)
	status, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("compound: decode status: %w", err)
	}
	tag, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("compound: decode tag: %w", err)
	}
	if _, err := xdr.DecodeUint32(r); err != nil { // numres, unused: caller knows its own op count
		return nil, fmt.Errorf("compound: decode numres: %w", err)
	}
	return &Reply{Status: status, Tag: tag, ops: r}, nil
}

// nextOpStatus reads the next op's opcode-echo and nfsstat4, the
// universal prefix of every *4res in the COMPOUND result stream.
func (rep *Reply) nextOpStatus() (opcode uint32, status uint32, err error) {
	opcode, err = xdr.DecodeUint32(rep.ops)
	if err != nil {
		return 0, 0, fmt.Errorf("compound: decode op opcode: %w", err)
	}
	status, err = xdr.DecodeUint32(rep.ops)
	if err != nil {
		return 0, 0, fmt.Errorf("compound: decode op status: %w", err)
	}
	return opcode, status, nil
}

// ============================================================================
// SEQUENCE
// ============================================================================

// Sequence builds the SEQUENCE op spec.md §4.7 requires at the head of
// every compound: it claims slotID with sequence seqID against session
// sessionID, echoing the table's current highestSlotID.
func Sequence(sessionID nfs4.SessionId4, seqID, slotID, highestSlotID uint32, cacheThis bool) (Op, error) {
	return buildOp(nfs4.OP_SEQUENCE, func(buf *bytes.Buffer) error {
		buf.Write(sessionID[:])
		if err := xdr.WriteUint32(buf, seqID); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, slotID); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, highestSlotID); err != nil {
			return err
		}
		return xdr.WriteBool(buf, cacheThis)
	})
}

// SequenceResult is the decoded SEQUENCE4resok.
type SequenceResult struct {
	SessionID           nfs4.SessionId4
	SeqID               uint32
	SlotID              uint32
	HighestSlotID       uint32
	TargetHighestSlotID uint32
}

func (rep *Reply) DecodeSequence() (uint32, *SequenceResult, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	res := &SequenceResult{}
	if _, err := io.ReadFull(rep.ops, res.SessionID[:]); err != nil {
		return status, nil, err
	}
	for _, dst := range []*uint32{&res.SeqID, &res.SlotID, &res.HighestSlotID, &res.TargetHighestSlotID} {
		v, err := xdr.DecodeUint32(rep.ops)
		if err != nil {
			return status, nil, err
		}
		*dst = v
	}
	// status_flags trailer: decoded and discarded, this client does not
	// act on SEQ4_STATUS_* bits.
	if _, err := xdr.DecodeUint32(rep.ops); err != nil {
		return status, nil, err
	}
	return status, res, nil
}

// ============================================================================
// PUTFH / PUTROOTFH / GETFH / LOOKUP
// ============================================================================

func PutFH(fh nfs4.FileHandle) (Op, error) {
	return buildOp(nfs4.OP_PUTFH, func(buf *bytes.Buffer) error {
		return xdr.WriteXDROpaque(buf, fh)
	})
}

func PutRootFH() (Op, error) {
	return buildOp(nfs4.OP_PUTROOTFH, func(buf *bytes.Buffer) error { return nil })
}

func Lookup(name string) (Op, error) {
	return buildOp(nfs4.OP_LOOKUP, func(buf *bytes.Buffer) error {
		return xdr.WriteXDRString(buf, name)
	})
}

func GetFH() (Op, error) {
	return buildOp(nfs4.OP_GETFH, func(buf *bytes.Buffer) error { return nil })
}

func (rep *Reply) DecodeStatusOnly() (uint32, error) {
	_, status, err := rep.nextOpStatus()
	return status, err
}

func (rep *Reply) DecodeGetFH() (uint32, nfs4.FileHandle, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	fh, err := xdr.DecodeOpaque(rep.ops)
	return status, nfs4.FileHandle(fh), err
}

// ============================================================================
// GETATTR / SETATTR
// ============================================================================

func GetAttr(attrs []int) (Op, error) {
	return buildOp(nfs4.OP_GETATTR, func(buf *bytes.Buffer) error {
		return encodeBitmap4(buf, attrs)
	})
}

func (rep *Reply) DecodeGetAttr() (uint32, *Attrs, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	a, err := decodeFattr4(rep.ops)
	return status, a, err
}

// SetAttr encodes SETATTR with the all-zero stateid this engine always
// uses (spec.md §4.7: "stateid=0"), mapping only MODE and SIZE.
func SetAttr(setMode bool, mode uint32, setSize bool, size uint64) (Op, error) {
	return buildOp(nfs4.OP_SETATTR, func(buf *bytes.Buffer) error {
		buf.Write(make([]byte, 4)) // stateid.seqid = 0
		buf.Write(make([]byte, 12)) // stateid.other = 0
		return encodeSetattr(buf, setMode, mode, setSize, size)
	})
}

// DecodeSetAttr reads SETATTR4res: status, then (on success) the
// attrsset bitmap4 the server echoes back. This engine never inspects
// attrsset, but must still consume it to keep the reply stream aligned
// for whatever op follows.
func (rep *Reply) DecodeSetAttr() (uint32, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, err
	}
	_, err = decodeBitmap4(rep.ops)
	return status, err
}

// ============================================================================
// OPEN / CLOSE
// ============================================================================

// OpenNoCreate builds OPEN(CLAIM_FH, NOCREATE, share=BOTH) against the
// current filehandle (the parent, already PUTFH'd), per spec.md §4.7's
// OPEN table for an existing file.
func OpenNoCreate(seqid uint32, ownerClientID uint64, ownerSeq uint32) (Op, error) {
	return encodeOpen(seqid, ownerClientID, ownerSeq, nfs4.OPEN4_NOCREATE, 0, false, 0)
}

// OpenCreateUnchecked builds OPEN(CLAIM_FH, CREATE, UNCHECKED4) with mode
// set from attrs, per spec.md §4.7's CREATE table.
func OpenCreateUnchecked(seqid uint32, ownerClientID uint64, ownerSeq uint32, mode uint32) (Op, error) {
	return encodeOpen(seqid, ownerClientID, ownerSeq, nfs4.OPEN4_CREATE, nfs4.UNCHECKED4, true, mode)
}

func encodeOpen(seqid uint32, ownerClientID uint64, ownerSeq uint32, openType, createMode uint32, setMode bool, mode uint32) (Op, error) {
	return buildOp(nfs4.OP_OPEN, func(buf *bytes.Buffer) error {
		if err := xdr.WriteUint32(buf, seqid); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, nfs4.OPEN4_SHARE_ACCESS_BOTH); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, nfs4.OPEN4_SHARE_DENY_NONE); err != nil {
			return err
		}
		// open_owner4: clientid + opaque owner (client id again, then the
		// monotonic per-open sequence number, as the opaque body).
		if err := xdr.WriteUint64(buf, ownerClientID); err != nil {
			return err
		}
		var owner bytes.Buffer
		xdr.WriteUint32(&owner, ownerSeq)
		if err := xdr.WriteXDROpaque(buf, owner.Bytes()); err != nil {
			return err
		}
		// openflag4
		if err := xdr.WriteUint32(buf, openType); err != nil {
			return err
		}
		if openType == nfs4.OPEN4_CREATE {
			if err := xdr.WriteUint32(buf, createMode); err != nil {
				return err
			}
			if err := encodeSetattr(buf, setMode, mode, false, 0); err != nil {
				return err
			}
		}
		// open_claim4: CLAIM_FH carries no further data beyond the
		// discriminant (RFC 8881 Section 18.16.3).
		return xdr.WriteUint32(buf, nfs4.CLAIM_FH)
	})
}

// OpenResult is the subset of OPEN4resok this engine consumes.
type OpenResult struct {
	Stateid nfs4.Stateid4
	RFlags  uint32
}

func (rep *Reply) DecodeOpen() (uint32, *OpenResult, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	res := &OpenResult{}
	seqid, err := xdr.DecodeUint32(rep.ops)
	if err != nil {
		return status, nil, err
	}
	res.Stateid.Seqid = seqid
	if _, err := io.ReadFull(rep.ops, res.Stateid.Other[:]); err != nil {
		return status, nil, err
	}
	// change_info4 cinfo: atomic(bool) + before(uint64) + after(uint64).
	if _, err := xdr.DecodeBool(rep.ops); err != nil {
		return status, nil, err
	}
	if _, err := xdr.DecodeUint64(rep.ops); err != nil {
		return status, nil, err
	}
	if _, err := xdr.DecodeUint64(rep.ops); err != nil {
		return status, nil, err
	}
	rflags, err := xdr.DecodeUint32(rep.ops)
	if err != nil {
		return status, nil, err
	}
	res.RFlags = rflags
	// attrset bitmap4 the server reports it honored.
	if _, err := decodeBitmap4(rep.ops); err != nil {
		return status, nil, err
	}
	// open_delegation4: this client never requests a delegation, so it
	// only handles OPEN_DELEGATE_NONE (discriminant 0, no body).
	delegType, err := xdr.DecodeUint32(rep.ops)
	if err != nil {
		return status, nil, err
	}
	if delegType != 0 {
		return status, nil, fmt.Errorf("compound: unexpected delegation type %d", delegType)
	}
	return status, res, nil
}

func Close(seqid uint32, stateid nfs4.Stateid4) (Op, error) {
	return buildOp(nfs4.OP_CLOSE, func(buf *bytes.Buffer) error {
		if err := xdr.WriteUint32(buf, seqid); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, stateid.Seqid); err != nil {
			return err
		}
		buf.Write(stateid.Other[:])
		return nil
	})
}

// ============================================================================
// READ / WRITE / COMMIT
// ============================================================================

func Read(stateid nfs4.Stateid4, offset uint64, count uint32) (Op, error) {
	return buildOp(nfs4.OP_READ, func(buf *bytes.Buffer) error {
		if err := xdr.WriteUint32(buf, stateid.Seqid); err != nil {
			return err
		}
		buf.Write(stateid.Other[:])
		if err := xdr.WriteUint64(buf, offset); err != nil {
			return err
		}
		return xdr.WriteUint32(buf, count)
	})
}

type ReadResult struct {
	EOF  bool
	Data []byte
}

func (rep *Reply) DecodeRead() (uint32, *ReadResult, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	eof, err := xdr.DecodeBool(rep.ops)
	if err != nil {
		return status, nil, err
	}
	data, err := xdr.DecodeOpaque(rep.ops)
	if err != nil {
		return status, nil, err
	}
	return status, &ReadResult{EOF: eof, Data: data}, nil
}

func Write(stateid nfs4.Stateid4, offset uint64, stable uint32, data []byte) (Op, error) {
	return buildOp(nfs4.OP_WRITE, func(buf *bytes.Buffer) error {
		if err := xdr.WriteUint32(buf, stateid.Seqid); err != nil {
			return err
		}
		buf.Write(stateid.Other[:])
		if err := xdr.WriteUint64(buf, offset); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, stable); err != nil {
			return err
		}
		return xdr.WriteXDROpaque(buf, data)
	})
}

type WriteResult struct {
	Count     uint32
	Committed uint32
	Verifier  [8]byte
}

func (rep *Reply) DecodeWrite() (uint32, *WriteResult, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	res := &WriteResult{}
	count, err := xdr.DecodeUint32(rep.ops)
	if err != nil {
		return status, nil, err
	}
	res.Count = count
	committed, err := xdr.DecodeUint32(rep.ops)
	if err != nil {
		return status, nil, err
	}
	res.Committed = committed
	if _, err := io.ReadFull(rep.ops, res.Verifier[:]); err != nil {
		return status, nil, err
	}
	return status, res, nil
}

// Commit always commits the whole file (offset=0, count=0), per
// spec.md §4.7: "FUSE does not pass a range".
func Commit() (Op, error) {
	return buildOp(nfs4.OP_COMMIT, func(buf *bytes.Buffer) error {
		if err := xdr.WriteUint64(buf, 0); err != nil {
			return err
		}
		return xdr.WriteUint32(buf, 0)
	})
}
