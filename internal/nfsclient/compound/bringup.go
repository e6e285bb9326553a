package compound

import (
	"bytes"
	"fmt"
	"io"

	nfs4 "github.com/dpfs-project/dpfs/internal/nfsclient/types"
	"github.com/dpfs-project/dpfs/internal/protocol/xdr"
)

// ExchangeID builds EXCHANGE_ID4args (RFC 8881 Section 18.35), the first
// operation of connection bring-up (spec.md §4.7). This engine never
// requests state protection (SP4_NONE) and never sends a client
// implementation id.
func ExchangeID(owner nfs4.ClientOwner4, flags uint32) (Op, error) {
	return buildOp(nfs4.OP_EXCHANGE_ID, func(buf *bytes.Buffer) error {
		buf.Write(owner.Verifier[:])
		if err := xdr.WriteXDROpaque(buf, owner.Opaque); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, flags); err != nil {
			return err
		}
		// state_protect4_a, SP4_NONE (discriminant 0, no body).
		if err := xdr.WriteUint32(buf, 0); err != nil {
			return err
		}
		// eia_client_impl_id<1>: zero elements.
		return xdr.WriteUint32(buf, 0)
	})
}

// ExchangeIDResult is the subset of EXCHANGE_ID4resok this engine keeps.
type ExchangeIDResult struct {
	ClientID          uint64
	SequenceID        uint32
	Flags             uint32
	ServerOwnerMinor  uint64
	ServerOwnerMajor  []byte
	ServerScope       []byte
}

func (rep *Reply) DecodeExchangeID() (uint32, *ExchangeIDResult, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	res := &ExchangeIDResult{}
	if res.ClientID, err = xdr.DecodeUint64(rep.ops); err != nil {
		return status, nil, err
	}
	if res.SequenceID, err = xdr.DecodeUint32(rep.ops); err != nil {
		return status, nil, err
	}
	if res.Flags, err = xdr.DecodeUint32(rep.ops); err != nil {
		return status, nil, err
	}
	// state_protect4_r echoed back: SP4_NONE expected, discriminant only.
	if _, err := xdr.DecodeUint32(rep.ops); err != nil {
		return status, nil, err
	}
	// server_owner4: minor_id (uint64) + major_id (opaque).
	if res.ServerOwnerMinor, err = xdr.DecodeUint64(rep.ops); err != nil {
		return status, nil, err
	}
	if res.ServerOwnerMajor, err = xdr.DecodeOpaque(rep.ops); err != nil {
		return status, nil, err
	}
	if res.ServerScope, err = xdr.DecodeOpaque(rep.ops); err != nil {
		return status, nil, err
	}
	// eir_server_impl_id<1>: decoded and discarded.
	count, err := xdr.DecodeUint32(rep.ops)
	if err != nil {
		return status, nil, err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := xdr.DecodeOpaque(rep.ops); err != nil { // nii_domain
			return status, nil, err
		}
		if _, err := xdr.DecodeOpaque(rep.ops); err != nil { // nii_name
			return status, nil, err
		}
		if _, err := xdr.DecodeUint64(rep.ops); err != nil { // nii_date.seconds
			return status, nil, err
		}
		if _, err := xdr.DecodeUint32(rep.ops); err != nil { // nii_date.nseconds
			return status, nil, err
		}
	}
	return status, res, nil
}

// ChannelAttrs is channel_attrs4 (RFC 8881 Section 18.36), used for both
// the fore and back channel of CREATE_SESSION.
type ChannelAttrs struct {
	HeaderPadSize         uint32
	MaxRequestSize        uint32
	MaxResponseSize       uint32
	MaxResponseSizeCached uint32
	MaxOperations         uint32
	MaxRequests           uint32
}

func (c ChannelAttrs) encode(buf *bytes.Buffer) error {
	for _, v := range []uint32{c.HeaderPadSize, c.MaxRequestSize, c.MaxResponseSize,
		c.MaxResponseSizeCached, c.MaxOperations, c.MaxRequests} {
		if err := xdr.WriteUint32(buf, v); err != nil {
			return err
		}
	}
	// ca_rdma_ird<1>: zero elements, this engine only speaks TCP.
	return xdr.WriteUint32(buf, 0)
}

func decodeChannelAttrs(r io.Reader) (ChannelAttrs, error) {
	var c ChannelAttrs
	fields := []*uint32{&c.HeaderPadSize, &c.MaxRequestSize, &c.MaxResponseSize,
		&c.MaxResponseSizeCached, &c.MaxOperations, &c.MaxRequests}
	for _, f := range fields {
		v, err := xdr.DecodeUint32(r)
		if err != nil {
			return c, err
		}
		*f = v
	}
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return c, err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := xdr.DecodeUint32(r); err != nil {
			return c, err
		}
	}
	return c, nil
}

// DefaultChannelAttrs requests generous but bounded channel sizing; once
// CREATE_SESSION replies, the connection sizes its slot table from the
// ca_maxrequests the server returned (spec.md §4.7: "allocate slot table").
func DefaultChannelAttrs(maxRequests uint32) ChannelAttrs {
	return ChannelAttrs{
		HeaderPadSize:         0,
		MaxRequestSize:        1 << 20,
		MaxResponseSize:       1 << 20,
		MaxResponseSizeCached: 8192,
		MaxOperations:         8,
		MaxRequests:           maxRequests,
	}
}

// CreateSession builds CREATE_SESSION4args (RFC 8881 Section 18.36),
// auto-binding the connection that sends it to both channels.
func CreateSession(clientID uint64, sequenceID, flags uint32, fore, back ChannelAttrs, cbProgram uint32) (Op, error) {
	return buildOp(nfs4.OP_CREATE_SESSION, func(buf *bytes.Buffer) error {
		if err := xdr.WriteUint64(buf, clientID); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, sequenceID); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, flags); err != nil {
			return err
		}
		if err := fore.encode(buf); err != nil {
			return err
		}
		if err := back.encode(buf); err != nil {
			return err
		}
		if err := xdr.WriteUint32(buf, cbProgram); err != nil {
			return err
		}
		// csa_sec_parms<>: AUTH_NONE only.
		if err := xdr.WriteUint32(buf, 1); err != nil {
			return err
		}
		return xdr.WriteUint32(buf, 0) // AUTH_NONE flavor, no body
	})
}

// CreateSessionResult is the subset of CREATE_SESSION4resok this engine
// keeps: the session id, sequence id, flags, and negotiated fore-channel
// attributes (the slot table is sized from MaxRequests).
type CreateSessionResult struct {
	SessionID  nfs4.SessionId4
	SequenceID uint32
	Flags      uint32
	Fore       ChannelAttrs
	Back       ChannelAttrs
}

func (rep *Reply) DecodeCreateSession() (uint32, *CreateSessionResult, error) {
	_, status, err := rep.nextOpStatus()
	if err != nil || status != nfs4.NFS4_OK {
		return status, nil, err
	}
	res := &CreateSessionResult{}
	if _, err := io.ReadFull(rep.ops, res.SessionID[:]); err != nil {
		return status, nil, err
	}
	if res.SequenceID, err = xdr.DecodeUint32(rep.ops); err != nil {
		return status, nil, err
	}
	if res.Flags, err = xdr.DecodeUint32(rep.ops); err != nil {
		return status, nil, err
	}
	if res.Fore, err = decodeChannelAttrs(rep.ops); err != nil {
		return status, nil, fmt.Errorf("compound: decode fore channel attrs: %w", err)
	}
	if res.Back, err = decodeChannelAttrs(rep.ops); err != nil {
		return status, nil, fmt.Errorf("compound: decode back channel attrs: %w", err)
	}
	return status, res, nil
}

// ReclaimComplete builds RECLAIM_COMPLETE4args, sent once on the first
// connection only (spec.md §4.7); NFS4ERR_COMPLETE_ALREADY is an
// acceptable status on a reconnect.
func ReclaimComplete() (Op, error) {
	return buildOp(nfs4.OP_RECLAIM_COMPLETE, func(buf *bytes.Buffer) error {
		return xdr.WriteBool(buf, false) // rca_one_fs = false: reclaim for the whole client
	})
}

// NFS4ERR_COMPLETE_ALREADY is not in RFC 7530's v4.0 table; defined here
// since it is v4.1-only (RFC 8881 Section 18.51).
const NFS4ERR_COMPLETE_ALREADY = 10054
