package passthrough

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/inode"
	"github.com/dpfs-project/dpfs/internal/logger"
)

// doLookup is the direct translation of mirror_impl.c's do_lookup: open
// name under parent's anchor fd as O_PATH|O_NOFOLLOW, fstatat it,
// reject anything outside the root's device (spec.md §4.8's
// cross-device-boundary check), then either install a fresh node or
// reuse the one already tracked for this source inode, closing the
// newly-opened fd in that case (same collision handling the original
// performs under its single mutex).
func (b *Backend) doLookup(parent *node, name string) (*inode.Entry, *unix.Stat_t, syscall.Errno) {
	newFD, err := unix.Openat(parent.pathFD, name, unix.O_PATH|unix.O_NOFOLLOW, 0)
	if err != nil {
		return nil, nil, err.(syscall.Errno)
	}

	var st unix.Stat_t
	if err := unix.Fstatat(newFD, "", &st, unix.AT_EMPTY_PATH|unix.AT_SYMLINK_NOFOLLOW); err != nil {
		errno := err.(syscall.Errno)
		unix.Close(newFD)
		return nil, nil, errno
	}

	if st.Dev != b.srcDev {
		logger.Warn("lookup crossed device boundary, hiding mountpoint", "name", name)
		unix.Close(newFD)
		return nil, nil, syscall.ENOTSUP
	}
	if st.Ino == fuseops.RootID {
		unix.Close(newFD)
		return nil, nil, syscall.EIO
	}

	b.srcMu.Lock()
	nodeid, existed := b.srcToNode[st.Ino]
	if existed {
		b.srcMu.Unlock()
		entry, _ := b.inodes.Lookup(nodeid)
		n := nodeOf(entry)
		n.mu.Lock()
		unix.Close(newFD) // reuse the existing anchor fd, discard the one just opened
		n.mu.Unlock()
		return entry, &st, 0
	}

	nodeid = b.inodes.AllocID()
	b.srcToNode[st.Ino] = nodeid
	b.srcMu.Unlock()

	n := &node{pathFD: newFD, srcIno: st.Ino, srcDev: st.Dev}
	entry := b.inodes.Insert(nodeid, n)
	return entry, &st, 0
}

func (b *Backend) handleLookup(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	name := cString(in)
	parentEntry, ok := b.inodes.Get(hdr.Nodeid)
	if !ok {
		return errnoNeg(syscall.ESTALE), dispatch.Done
	}

	entry, st, errno := b.doLookup(nodeOf(parentEntry), name)
	if errno == syscall.ENOENT {
		// Negative-dentry convention: a zeroed entry_out with nodeid 0,
		// matching fuser_mirror_lookup's handling of ENOENT.
		out.WriteBuf(encodeEntryOut(0, 0, &unix.Stat_t{}))
		return 0, dispatch.Done
	}
	if errno != 0 {
		return errnoNeg(errno), dispatch.Done
	}

	out.WriteBuf(encodeEntryOut(entry.Nodeid, entry.Generation, st))
	return 0, dispatch.Done
}
