package kv

import (
	"bytes"
	"encoding/binary"
	"sort"
	"syscall"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/iovec"
)

// handleOpendir snapshots the current inode set, the in-memory stand-in
// for fuse_opendir's `new RAMCloud::TableEnumerator`.
func (b *Backend) handleOpendir(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	b.mu.RLock()
	entries := make([]uint64, 0, len(b.inodes))
	for id := range b.inodes {
		entries = append(entries, id)
	}
	b.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i] < entries[j] })

	fh := b.nextFH.Add(1)
	b.dirMu.Lock()
	b.dirs[fh] = &dirHandle{entries: entries}
	b.dirMu.Unlock()

	if err := out.WriteBuf(encodeOpenOut(fh)); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}

func (b *Backend) handleReleasedir(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.ReleaseIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err == nil {
		b.dirMu.Lock()
		delete(b.dirs, req.FH)
		b.dirMu.Unlock()
	}
	return 0, dispatch.Done
}

// handleReaddir mirrors fuse_readdir: the enumerator (here, dirHandle's
// cursor) advances on every call and is never seeked to the client's
// declared offset, matching the original's own disregard of
// fuse_read_in.offset on continuation calls.
func (b *Backend) handleReaddir(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	var req fuseops.ReadIn
	if err := binary.Read(bytes.NewReader(in), wire, &req); err != nil {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}

	b.dirMu.Lock()
	dh, ok := b.dirs[req.FH]
	b.dirMu.Unlock()
	if !ok {
		return errnoNeg(syscall.EINVAL), dispatch.Done
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	capacity := int(req.Size)
	if u := out.BytesUnused(); u < capacity {
		capacity = u
	}
	seg := make([]byte, capacity)
	cur := iovec.NewCursor([][]byte{seg})

	off := uint64(dh.cursor) + 1
	for dh.cursor < len(dh.entries) {
		id := dh.entries[dh.cursor]
		b.mu.RLock()
		rec, ok := b.inodes[id]
		b.mu.RUnlock()
		if !ok {
			dh.cursor++
			continue
		}
		if iovec.AddDirEntry(cur, rec.name, id, rec.attr.Mode, off) == 0 {
			break
		}
		dh.cursor++
		off++
	}

	used := capacity - cur.BytesUnused()
	if err := out.WriteBuf(seg[:used]); err != nil {
		return errnoNeg(syscall.ERANGE), dispatch.Done
	}
	return 0, dispatch.Done
}
