// Package nfs is the NFSv4.1 backend engine (spec.md §4.7): it brings up
// one connection per HAL polling thread, speaks COMPOUND requests over
// each, and answers FUSE requests by translating them into the
// operation-by-operation compounds spec.md's table defines.
//
// Grounded on the teacher's internal/adapter/nfs/v4/state/connection.go
// (connection bookkeeping) and internal/protocol/nfs/v4/state/v41_client.go
// (bring-up sequencing), inverted from server-accepts-connections to
// client-dials-and-negotiates.
package nfs

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpfs-project/dpfs/internal/logger"
	"github.com/dpfs-project/dpfs/internal/nfsclient/compound"
	"github.com/dpfs-project/dpfs/internal/nfsclient/rpc"
	"github.com/dpfs-project/dpfs/internal/nfsclient/slots"
	nfs4 "github.com/dpfs-project/dpfs/internal/nfsclient/types"
)

// ConnState is a connection's position in the bring-up/teardown
// lifecycle spec.md §4.7 describes.
type ConnState int32

const (
	ConnConnecting ConnState = iota
	ConnEstablished
	ConnShouldClose
)

// TrunkRecord is the first connection's server identity, copied into
// freshly owned storage (spec.md §4.7) so later connections can compare
// against it without racing connection 0's teardown.
type TrunkRecord struct {
	ServerOwnerMajor []byte
	ServerScope      []byte
}

// trunkingEligible reports whether candidate names the same server
// instance as the recorded first connection (RFC 8881 Section 2.10.5):
// matching server_owner.major_id and server_scope.
func (t *TrunkRecord) trunkingEligible(majorID, scope []byte) bool {
	return bytes.Equal(t.ServerOwnerMajor, majorID) && bytes.Equal(t.ServerScope, scope)
}

// Connection is one NFSv4.1 session-bound TCP connection, with its own
// slot table and XID generator.
type Connection struct {
	Index int

	conn  net.Conn
	state atomic.Int32

	clientID   uint64
	sessionID  nfs4.SessionId4
	openSeqMu  sync.Mutex
	openSeq    uint32

	slots *slots.Table
	xid   atomic.Uint32
}

func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }
func (c *Connection) markShouldClose()  { c.state.Store(int32(ConnShouldClose)) }

// nextOpenSeq returns the next open_owner seqid for this connection's
// single implicit open-owner, per spec.md §4.7's OPEN table
// ("owner={clientid, monotonically-increasing u32}").
func (c *Connection) nextOpenSeq() uint32 {
	c.openSeqMu.Lock()
	defer c.openSeqMu.Unlock()
	c.openSeq++
	return c.openSeq
}

// dial opens the TCP connection and performs the NULL RPC libnfs-style
// "mount" preamble spec.md §4.7 calls out before EXCHANGE_ID. The preamble
// is built by rpc.EncodeCall with zero-length args; EncodeCall always names
// the COMPOUND procedure, so the server receives an empty COMPOUND call,
// not procedure 0 (NULL).
func dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nfs: dial %s: %w", addr, err)
	}
	nullCall, err := rpc.EncodeCall(0, nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := rpc.WriteRecord(conn, nullCall); err != nil {
		conn.Close()
		return nil, fmt.Errorf("nfs: NULL RPC: %w", err)
	}
	if _, err := rpc.ReadRecord(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("nfs: NULL RPC reply: %w", err)
	}
	return conn, nil
}

// sendCompound frames, sends, and waits for one COMPOUND request/reply
// round trip over conn.
func sendCompound(conn net.Conn, xid uint32, ops []compound.Op) (*compound.Reply, error) {
	args, err := compound.EncodeArgs("dpfs", ops)
	if err != nil {
		return nil, err
	}
	call, err := rpc.EncodeCall(xid, args)
	if err != nil {
		return nil, err
	}
	if err := rpc.WriteRecord(conn, call); err != nil {
		return nil, fmt.Errorf("nfs: send compound: %w", err)
	}
	msg, err := rpc.ReadRecord(conn)
	if err != nil {
		return nil, fmt.Errorf("nfs: read compound reply: %w", err)
	}
	_, body, err := rpc.DecodeReply(msg)
	if err != nil {
		return nil, err
	}
	return compound.DecodeReply(body)
}

func randomVerifier() [8]byte {
	var v [8]byte
	rand.Read(v[:])
	return v
}

// bringUp runs one connection through spec.md §4.7's sequential bring-up
// state machine. index == 0 selects the connection-0-only steps (trunking
// record capture, root lookup, reclaim complete).
func bringUp(ctx context.Context, addr string, index int, owner nfs4.ClientOwner4, trunk *TrunkRecord, rootPath []string) (*Connection, *TrunkRecord, nfs4.FileHandle, error) {
	conn, err := dial(ctx, addr)
	if err != nil {
		return nil, nil, nil, err
	}

	c := &Connection{Index: index, conn: conn}
	c.state.Store(int32(ConnConnecting))

	eidOp, err := compound.ExchangeID(owner, nfs4.EXCHGID4_FLAG_USE_NON_PNFS)
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	reply, err := sendCompound(conn, c.xid.Add(1), []compound.Op{eidOp})
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	status, eid, err := reply.DecodeExchangeID()
	if err != nil || status != nfs4.NFS4_OK {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("nfs: EXCHANGE_ID failed: status=%d err=%v", status, err)
	}

	if index == 0 {
		trunk = &TrunkRecord{
			ServerOwnerMajor: append([]byte(nil), eid.ServerOwnerMajor...),
			ServerScope:      append([]byte(nil), eid.ServerScope...),
		}
	} else if trunk != nil && !trunk.trunkingEligible(eid.ServerOwnerMajor, eid.ServerScope) {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("nfs: connection %d not trunking-eligible with connection 0", index)
	}

	c.clientID = eid.ClientID

	fore := compound.DefaultChannelAttrs(slots.DefaultSlots)
	back := compound.DefaultChannelAttrs(1)
	csOp, err := compound.CreateSession(eid.ClientID, eid.SequenceID, 0, fore, back, 0)
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	reply, err = sendCompound(conn, c.xid.Add(1), []compound.Op{csOp})
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	status, cs, err := reply.DecodeCreateSession()
	if err != nil || status != nfs4.NFS4_OK {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("nfs: CREATE_SESSION failed: status=%d err=%v", status, err)
	}
	c.sessionID = cs.SessionID
	c.slots = slots.New(cs.Fore.MaxRequests)

	var rootFH nfs4.FileHandle
	if index == 0 {
		rootFH, err = lookupTrueRootFH(c, rootPath)
		if err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("nfs: LOOKUP_TRUE_ROOTFH: %w", err)
		}

		rcOp, err := compound.ReclaimComplete()
		if err != nil {
			conn.Close()
			return nil, nil, nil, err
		}
		status, err := c.runSimple(rcOp)
		if err != nil || (status != nfs4.NFS4_OK && status != compound.NFS4ERR_COMPLETE_ALREADY) {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("nfs: RECLAIM_COMPLETE failed: status=%d err=%v", status, err)
		}
	}

	c.state.Store(int32(ConnEstablished))
	logger.Info("nfs connection established", logger.Connection(index))
	return c, trunk, rootFH, nil
}

// lookupTrueRootFH builds PUTROOTFH + LOOKUP(component)... + GETFH,
// returning the root's filehandle to be stored at nodeid=FUSE_ROOT_ID.
func lookupTrueRootFH(c *Connection, pathComponents []string) (nfs4.FileHandle, error) {
	seq, err := c.claimSequence()
	if err != nil {
		return nil, err
	}
	defer seq.release()

	ops := []compound.Op{seq.op}
	rootOp, err := compound.PutRootFH()
	if err != nil {
		return nil, err
	}
	ops = append(ops, rootOp)
	for _, comp := range pathComponents {
		if comp == "" {
			continue
		}
		lookupOp, err := compound.Lookup(comp)
		if err != nil {
			return nil, err
		}
		ops = append(ops, lookupOp)
	}
	fhOp, err := compound.GetFH()
	if err != nil {
		return nil, err
	}
	ops = append(ops, fhOp)

	reply, err := sendCompound(c.conn, c.xid.Add(1), ops)
	if err != nil {
		return nil, err
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return nil, err
	}
	if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
		return nil, fmt.Errorf("nfs: PUTROOTFH failed: status=%d err=%v", status, err)
	}
	for range pathComponents {
		if status, err := reply.DecodeStatusOnly(); err != nil || status != nfs4.NFS4_OK {
			return nil, fmt.Errorf("nfs: LOOKUP failed: status=%d err=%v", status, err)
		}
	}
	status, fh, err := reply.DecodeGetFH()
	if err != nil || status != nfs4.NFS4_OK {
		return nil, fmt.Errorf("nfs: GETFH failed: status=%d err=%v", status, err)
	}
	return fh, nil
}

// claimedSeq bundles a claimed slot's SEQUENCE op with the bookkeeping
// needed to release the slot once the compound's reply is in hand.
type claimedSeq struct {
	op     compound.Op
	table  *slots.Table
	slotID uint32
	seqID  uint32
}

func (s *claimedSeq) release() { s.table.Release(s.slotID, s.seqID) }

// claimSequence implements spec.md §4.7's request-time slot claim: linear
// scan for a free slot, sleep-and-retry backpressure when the table is
// fully busy.
func (c *Connection) claimSequence() (*claimedSeq, error) {
	for {
		slotID, seqID, err := c.slots.Claim()
		if err == nil {
			op, encErr := compound.Sequence(c.sessionID, seqID, slotID, c.slots.HighestSlotID(), false)
			if encErr != nil {
				c.slots.Release(slotID, seqID)
				return nil, encErr
			}
			return &claimedSeq{op: op, table: c.slots, slotID: slotID, seqID: seqID}, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// runSimple sends a one-op-plus-SEQUENCE compound and returns that op's
// status, for operations (like RECLAIM_COMPLETE) whose result this
// engine does not otherwise decode.
func (c *Connection) runSimple(op compound.Op) (uint32, error) {
	seq, err := c.claimSequence()
	if err != nil {
		return 0, err
	}
	defer seq.release()

	reply, err := sendCompound(c.conn, c.xid.Add(1), []compound.Op{seq.op, op})
	if err != nil {
		return 0, err
	}
	if _, _, err := reply.DecodeSequence(); err != nil {
		return 0, err
	}
	return reply.DecodeStatusOnly()
}

func (c *Connection) Close() error {
	c.markShouldClose()
	return c.conn.Close()
}
