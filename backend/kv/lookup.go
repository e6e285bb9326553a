package kv

import (
	"syscall"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
)

// handleLookup mirrors fuse_lookup: the parent nodeid is not consulted
// (dpfs_kv's namespace is a single flat directory), only the hash of the
// requested name.
func (b *Backend) handleLookup(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	name := cString(in)
	id := fnv1aHash(name)

	b.mu.RLock()
	rec, ok := b.inodes[id]
	b.mu.RUnlock()
	if !ok {
		return errnoNeg(syscall.ENOENT), dispatch.Done
	}
	if err := out.WriteBuf(encodeEntryOut(id, &rec.attr)); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}
