// Package inode implements the fileid-to-path/handle lookup table shared
// by every backend: a bucketed hash map keyed by the 64-bit fileid the
// backend assigns, with per-bucket locking so unrelated inodes never
// contend on the same mutex. The single shared-map-plus-mutex idiom is
// the same one the metadata layer's LockManager uses for byte-range
// locks; this package generalizes it to multiple buckets because the
// inode table sits on the hot path of every request, not just locking
// operations.
package inode

import (
	"sync"
)

const defaultBucketCount = 8192

// Entry is one inode table row: the kernel-visible nodeid, the backend's
// private reference (a path, file handle, or similar token), and the
// lookup-count/generation bookkeeping FORGET needs.
type Entry struct {
	Nodeid     uint64
	Ref        any
	Generation uint64

	// Lookups is the kernel's outstanding reference count for this
	// nodeid, incremented on every LOOKUP-family reply and decremented by
	// FORGET/BATCH_FORGET.
	Lookups uint64
}

type bucket struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
}

// Table is a bucketed, concurrency-safe inode table. The table-level
// mutex only protects nodeid allocation and bucket-count invariants;
// all entry reads/writes take the owning bucket's lock.
type Table struct {
	buckets []*bucket

	allocMu  sync.Mutex
	nextID   uint64
}

// New builds a Table with bucketCount buckets (rounded up to the
// package default if zero) and reserves nodeid 1 for the filesystem
// root, per the Inode entity's root special-case.
func New(bucketCount int) *Table {
	if bucketCount <= 0 {
		bucketCount = defaultBucketCount
	}
	t := &Table{
		buckets: make([]*bucket, bucketCount),
		nextID:  2, // 1 is reserved for root
	}
	for i := range t.buckets {
		t.buckets[i] = &bucket{entries: make(map[uint64]*Entry)}
	}
	return t
}

func (t *Table) bucketFor(nodeid uint64) *bucket {
	return t.buckets[nodeid%uint64(len(t.buckets))]
}

// AllocID reserves a fresh nodeid for a newly-discovered inode.
func (t *Table) AllocID() uint64 {
	t.allocMu.Lock()
	defer t.allocMu.Unlock()
	id := t.nextID
	t.nextID++
	return id
}

// Insert adds or replaces the entry for nodeid, returning it.
func (t *Table) Insert(nodeid uint64, ref any) *Entry {
	b := t.bucketFor(nodeid)
	b.mu.Lock()
	defer b.mu.Unlock()
	e := &Entry{Nodeid: nodeid, Ref: ref, Lookups: 1}
	b.entries[nodeid] = e
	return e
}

// Lookup returns the entry for nodeid and increments its lookup count,
// mirroring a LOOKUP-family reply handing the kernel a new reference.
// The second return is false if no such entry exists.
func (t *Table) Lookup(nodeid uint64) (*Entry, bool) {
	b := t.bucketFor(nodeid)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[nodeid]
	if !ok {
		return nil, false
	}
	e.Lookups++
	return e, true
}

// Get returns the entry for nodeid without affecting its lookup count.
func (t *Table) Get(nodeid uint64) (*Entry, bool) {
	b := t.bucketFor(nodeid)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[nodeid]
	return e, ok
}

// Forget decrements nlookup references for nodeid and, if the count
// reaches zero, removes the entry from the table. Returns true if the
// entry was removed.
func (t *Table) Forget(nodeid uint64, nlookup uint64) bool {
	b := t.bucketFor(nodeid)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[nodeid]
	if !ok {
		return false
	}
	if nlookup >= e.Lookups {
		delete(b.entries, nodeid)
		return true
	}
	e.Lookups -= nlookup
	return false
}

// Bump increments the generation counter for an existing entry, used
// when a nodeid is about to be reassigned to a different backend
// object (e.g. after an unlink/recreate race) so stale kernel caches of
// the old generation are not confused with the new object.
func (t *Table) Bump(nodeid uint64) uint64 {
	b := t.bucketFor(nodeid)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[nodeid]
	if !ok {
		return 0
	}
	e.Generation++
	return e.Generation
}

// Len reports the total number of live entries across all buckets.
// Intended for metrics and tests; it is not a cheap O(1) call.
func (t *Table) Len() int {
	n := 0
	for _, b := range t.buckets {
		b.mu.Lock()
		n += len(b.entries)
		b.mu.Unlock()
	}
	return n
}
