// Package slots implements the client side of the NFSv4.1 session slot
// table (RFC 8881 Section 2.10.6). It is adapted from the teacher's
// internal/adapter/nfs/v4/state/slot_table.go, inverted end to end: the
// teacher's table validates and reserves a slot the server allocated to
// an arriving request; this table claims a free slot before a compound
// is sent, so the caller supplies its own sa_sequenceid/sa_slotid.
package slots

import (
	"sync"

	"github.com/dpfs-project/dpfs/internal/dpfserr"
)

// DefaultSlots is the number of slots requested at CREATE_SESSION time
// when the server does not further constrain ca_maxrequests.
const DefaultSlots = 32

// MinSlots is the minimum usable session slot count (RFC 8881 requires
// at least 1).
const MinSlots = 1

type slot struct {
	seqID uint32 // last sequence id used on this slot
	busy  bool
}

// Table is a single connection's client-side slot table: an SPSC-style
// claim/release pair per in-flight compound, guarded by one mutex since
// claims race across the connection's own request-issuing goroutines.
type Table struct {
	mu                  sync.Mutex
	slots               []slot
	highestSlotID       uint32
	targetHighestSlotID uint32
}

// New builds a Table sized to numSlots, clamped to [MinSlots, numSlots].
func New(numSlots uint32) *Table {
	if numSlots < MinSlots {
		numSlots = MinSlots
	}
	return &Table{
		slots:               make([]slot, numSlots),
		highestSlotID:       numSlots - 1,
		targetHighestSlotID: numSlots - 1,
	}
}

// Claim performs the linear first-free-wins scan spec.md §4.7 describes
// for request-time compound construction: it returns the slot id and the
// sequence id to use for this request (the slot's last-used id plus one),
// and marks the slot busy. If no slot is free it returns
// dpfserr.ErrPoolExhausted; the caller's backpressure path is to sleep
// briefly and retry, per spec.md.
func (t *Table) Claim() (slotID uint32, seqID uint32, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if !t.slots[i].busy {
			t.slots[i].busy = true
			seqID = t.slots[i].seqID + 1
			t.highestSlotID = 0
			for j := range t.slots {
				if t.slots[j].busy {
					t.highestSlotID = uint32(j)
				}
			}
			return uint32(i), seqID, nil
		}
	}
	return 0, 0, dpfserr.ErrPoolExhausted
}

// Release marks slotID free again and records seqID as the last sequence
// id completed on it, so the next Claim computes the correct successor.
// Called once the compound's reply (or its transport failure) has been
// observed.
func (t *Table) Release(slotID, seqID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(slotID) >= len(t.slots) {
		return
	}
	t.slots[slotID].seqID = seqID
	t.slots[slotID].busy = false
}

// HighestSlotID reports the highest slot id that was busy when the most
// recent Claim returned (Claim rescans the table each time), echoed in
// sa_highest_slotid on every request. Before the first Claim it reports
// numSlots-1.
func (t *Table) HighestSlotID() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.highestSlotID
}

// NumSlots returns the table's fixed slot count.
func (t *Table) NumSlots() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// SetTargetHighestSlotID records the server's sr_target_highest_slotid
// hint from a SEQUENCE reply, used to size future CREATE_SESSION /
// BIND_CONN_TO_SESSION requests on additional connections.
func (t *Table) SetTargetHighestSlotID(target uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targetHighestSlotID = target
}

// InUse reports how many slots are currently claimed, exposed as the
// slots_in_use gauge (internal/metrics).
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.slots {
		if t.slots[i].busy {
			n++
		}
	}
	return n
}
