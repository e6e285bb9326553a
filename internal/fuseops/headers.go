package fuseops

// InHeader is the fixed-size header prefixed to every FUSE request,
// decoded from in_iov[0] by the dispatcher.
type InHeader struct {
	Len     uint32
	Opcode  Opcode
	Unique  uint64
	Nodeid  uint64
	UID     uint32
	GID     uint32
	PID     uint32
	Padding uint32
}

const InHeaderSize = 40

// OutHeader is the fixed-size header every reply begins with.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

const OutHeaderSize = 16

// Attr mirrors struct fuse_attr (stat-like fields sent over the wire).
type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint32
	Blksize   uint32
	Padding   uint32
}

// AttrOut is the reply payload for GETATTR/SETATTR.
type AttrOut struct {
	AttrValidSec  uint64
	AttrValidNsec uint32
	Dummy         uint32
	Attr          Attr
}

// AttrOutCompatSize is the pre-minor-9 reply size (96 bytes: 16-byte
// timeout header + 80-byte compat attr lacking blksize/padding, vs. the
// modern 104-byte form with the full 88-byte attr), per spec.md §4.5
// reply-size law.
const AttrOutCompatSize = 96
const AttrOutSize = 104

// EntryOut is the reply payload for LOOKUP/MKNOD/MKDIR/SYMLINK/LINK and
// the entry half of CREATE.
type EntryOut struct {
	Nodeid         uint64
	Generation     uint64
	EntryValidSec  uint64
	AttrValidSec   uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

const EntryOutCompatSize = 120
const EntryOutSize = 128

// OpenOut is the reply payload for OPEN/OPENDIR and the open half of
// CREATE.
type OpenOut struct {
	FH        uint64
	OpenFlags uint32
	Padding   uint32
}

const OpenOutSize = 16

// InitIn is the INIT request payload.
type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
}

// InitOut is the INIT reply payload.
type InitOut struct {
	Major               uint32
	Minor               uint32
	MaxReadahead        uint32
	Flags               uint32
	MaxBackground       uint16
	CongestionThreshold uint16
	MaxWrite            uint32
	TimeGranNsec        uint32
	MaxPages            uint16
	Padding             uint16
	Unused              [8]uint32
}

// GetattrIn carries the GETATTR_FH flag and file handle when set.
type GetattrIn struct {
	GetattrFlags uint32
	Dummy        uint32
	FH           uint64
}

// SetattrIn carries the "to_set" validity bitmask and the new values.
type SetattrIn struct {
	Valid     uint32
	Padding   uint32
	FH        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Unused4   uint32
	UID       uint32
	GID       uint32
	Unused5   uint32
}

// OpenIn carries open(2) flags.
type OpenIn struct {
	Flags  uint32
	Unused uint32
}

// CreateIn carries the struct prefix of a CREATE request; the name
// follows as a NUL-terminated string in the next input iovec.
type CreateIn struct {
	Flags   uint32
	Mode    uint32
	Umask   uint32
	Padding uint32
}

// ReleaseIn carries the file handle and flags for RELEASE/RELEASEDIR.
type ReleaseIn struct {
	FH           uint64
	Flags        uint32
	ReleaseFlags uint32
	LockOwner    uint64
}

const ReleaseFlushFlag uint32 = 1 << 0

// FsyncIn carries the file handle and datasync flag for FSYNC/FSYNCDIR.
type FsyncIn struct {
	FH         uint64
	FsyncFlags uint32
	Padding    uint32
}

// ReadIn carries the read range and, for readdir, plus-mode hints.
type ReadIn struct {
	FH         uint64
	Offset     uint64
	Size       uint32
	ReadFlags  uint32
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

// WriteIn is the fixed prefix of a WRITE request; payload bytes follow in
// subsequent input iovecs.
type WriteIn struct {
	FH         uint64
	Offset     uint64
	Size       uint32
	WriteFlags uint32
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

// WriteOut is the WRITE reply payload.
type WriteOut struct {
	Size    uint32
	Padding uint32
}

// MknodIn is the fixed prefix of a MKNOD request.
type MknodIn struct {
	Mode    uint32
	Rdev    uint32
	Umask   uint32
	Padding uint32
}

// MkdirIn is the fixed prefix of a MKDIR request.
type MkdirIn struct {
	Mode  uint32
	Umask uint32
}

// RenameIn is the fixed prefix of a RENAME request; two NUL-terminated
// names (old, new) follow.
type RenameIn struct {
	Newdir uint64
}

// Rename2In is the fixed prefix of a RENAME2 request.
type Rename2In struct {
	Newdir  uint64
	Flags   uint32
	Padding uint32
}

const (
	RenameNoReplace uint32 = 1 << 0
	RenameExchange  uint32 = 1 << 1
)

// Kstatfs mirrors struct fuse_kstatfs; StatfsOut wraps it as the STATFS
// reply payload.
type Kstatfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	Padding uint32
	Spare   [6]uint32
}

type StatfsOut struct {
	St Kstatfs
}

const StatfsOutCompatSize = 48
const StatfsOutSize = 80

// ForgetIn carries the lookup-count decrement for a single FORGET.
type ForgetIn struct {
	Nlookup uint64
}

// ForgetOne is one entry of a BATCH_FORGET request.
type ForgetOne struct {
	Nodeid  uint64
	Nlookup uint64
}

// BatchForgetIn is the fixed prefix of a BATCH_FORGET request; Count
// ForgetOne entries follow in the trailing slab of the input iovec.
type BatchForgetIn struct {
	Count   uint32
	Dummy   uint32
}

// FileLock mirrors struct fuse_file_lock (only the flock-style fields are
// meaningful here; byte-range fields are carried but rejected).
type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	PID   uint32
}

// LkIn is the request payload for SETLK/SETLKW.
type LkIn struct {
	FH      uint64
	Owner   uint64
	Lk      FileLock
	LkFlags uint32
	Padding uint32
}

const LkFlockFlag uint32 = 1 << 0

// FallocateIn is the request payload for FALLOCATE.
type FallocateIn struct {
	FH      uint64
	Offset  uint64
	Length  uint64
	Mode    uint32
	Padding uint32
}

// Dirent file-type nibble, derived from (mode & S_IFMT) >> 12 per
// spec.md §4.4.
const (
	DTUnknown = 0
	DTFifo    = 1
	DTChr     = 2
	DTDir     = 4
	DTBlk     = 6
	DTReg     = 8
	DTLnk     = 10
	DTSock    = 12
)

// DirentType converts a POSIX mode's file-type bits to the FUSE dirent
// type nibble.
func DirentType(mode uint32) uint32 {
	return (mode & 0170000) >> 12
}
