// Package types defines the NFSv4.1 client-side constants and small wire
// types this engine's backend/nfs needs that RFC 7530's v4.0 operation
// set (internal/protocol/nfs/v4/types) does not carry: the v4.1 session
// and slot operations (RFC 8881), CLAIM_FH, and the stability/attribute
// constants compound construction references.
package types

import "github.com/dpfs-project/dpfs/internal/protocol/nfs/v4/types"

// NFS4_MINOR_VERSION_1 is the only minor version this client speaks.
const NFS4_MINOR_VERSION_1 = 1

// v4.1 operation numbers added on top of RFC 7530's enum nfs_opnum4, per
// RFC 8881 Section 18.
const (
	OP_BACKCHANNEL_CTL     = 40
	OP_BIND_CONN_TO_SESSION = 41
	OP_EXCHANGE_ID         = 42
	OP_CREATE_SESSION      = 43
	OP_DESTROY_SESSION     = 44
	OP_FREE_STATEID        = 45
	OP_GET_DIR_DELEGATION  = 46
	OP_RECLAIM_COMPLETE    = 58
	OP_SECINFO_NO_NAME     = 52
	OP_SEQUENCE            = 53
	OP_TEST_STATEID        = 55
	OP_DESTROY_CLIENTID    = 57
)

// CLAIM_FH is the v4.1 open-claim type this engine always uses (RFC 8881
// Section 18.16.3); CLAIM_NULL and friends from the v4.0 set are unused.
const CLAIM_FH = 4

// Stability values for WRITE (RFC 8881 Section 18.32).
const (
	UNSTABLE4 = 0
	DATA_SYNC4 = 1
	FILE_SYNC4 = 2
)

// Channel direction bits for CREATE_SESSION / BIND_CONN_TO_SESSION (RFC
// 8881 Section 18.34-18.35).
const (
	CDFC4_FORE         = 0x1
	CDFC4_BACK         = 0x2
	CDFC4_FORE_OR_BOTH = 0x3
	CDFC4_BACK_OR_BOTH = 0x7

	CDFS4_FORE = 0x1
	CDFS4_BACK = 0x2
	CDFS4_BOTH = 0x3
)

// EXCHANGE_ID flags this client advertises (RFC 8881 Section 18.35.3).
const EXCHGID4_FLAG_USE_NON_PNFS = 0x00010000

// Re-exported v4.0 status/op constants this package's callers need
// alongside the v4.1 additions above, so backend/nfs imports only this
// package for NFS4 wire constants.
const (
	NFS4_OK        = types.NFS4_OK
	OP_SEQUENCE_V0 = 0 // unused placeholder kept out of the v4.0 table
	OP_PUTFH       = types.OP_PUTFH
	OP_PUTROOTFH   = types.OP_PUTROOTFH
	OP_LOOKUP      = types.OP_LOOKUP
	OP_GETATTR     = types.OP_GETATTR
	OP_GETFH       = types.OP_GETFH
	OP_SETATTR     = types.OP_SETATTR
	OP_OPEN        = types.OP_OPEN
	OP_CLOSE       = types.OP_CLOSE
	OP_READ        = types.OP_READ
	OP_WRITE       = types.OP_WRITE
	OP_COMMIT      = types.OP_COMMIT

	OPEN4_NOCREATE           = types.OPEN4_NOCREATE
	OPEN4_CREATE             = types.OPEN4_CREATE
	OPEN4_SHARE_ACCESS_BOTH  = types.OPEN4_SHARE_ACCESS_BOTH
	OPEN4_SHARE_DENY_NONE    = types.OPEN4_SHARE_DENY_NONE
	UNCHECKED4               = types.UNCHECKED4
	OPEN4_RESULT_CONFIRM     = types.OPEN4_RESULT_CONFIRM

	NF4REG = types.NF4REG
	NF4DIR = types.NF4DIR
)

// ClientOwner4 identifies this client instance to the server (RFC 8881
// Section 18.35). Opaque is normally a host+pid+boot-time derived value.
type ClientOwner4 struct {
	Verifier [8]byte
	Opaque   []byte
}

// SessionId4 is the 16-byte opaque session identifier returned by
// CREATE_SESSION.
type SessionId4 [16]byte

// Stateid4 is the 16-byte (4-byte seqid + 12-byte opaque other) handle
// returned by OPEN and consumed by READ/WRITE/CLOSE.
type Stateid4 struct {
	Seqid uint32
	Other [12]byte
}

// ZeroStateid is the all-zero stateid used by SETATTR and anonymous READ.
var ZeroStateid = Stateid4{}

// FileHandle is an opaque NFSv4 filehandle, up to NFS4_FHSIZE bytes.
type FileHandle []byte
