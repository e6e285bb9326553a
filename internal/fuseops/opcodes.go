// Package fuseops defines the wire-level constants and header structs of
// the FUSE low-level ABI that this engine speaks on the host side of the
// virtio-fs queue. Field names and layout follow the kernel's
// include/uapi/linux/fuse.h, the same source libfuse's fuse_lowlevel.h and
// this repository's own fuse_ll.h (original_source/virtiofs_emu_fuse_lowlevel)
// copy from; we keep our own copy because no Go module in the ecosystem
// exposes the raw low-level struct layout (jacobsa/fuse builds on top of
// bazil.org/fuse's already-decoded Go structs, not the wire bytes).
package fuseops

// Opcode identifies a FUSE low-level request type.
type Opcode uint32

const (
	OpLookup      Opcode = 1
	OpForget      Opcode = 2
	OpGetattr     Opcode = 3
	OpSetattr     Opcode = 4
	OpReadlink    Opcode = 5
	OpSymlink     Opcode = 6
	OpMknod       Opcode = 8
	OpMkdir       Opcode = 9
	OpUnlink      Opcode = 10
	OpRmdir       Opcode = 11
	OpRename      Opcode = 12
	OpLink        Opcode = 13
	OpOpen        Opcode = 14
	OpRead        Opcode = 15
	OpWrite       Opcode = 16
	OpStatfs      Opcode = 17
	OpRelease     Opcode = 18
	OpFsync       Opcode = 20
	OpSetxattr    Opcode = 21
	OpGetxattr    Opcode = 22
	OpListxattr   Opcode = 23
	OpRemovexattr Opcode = 24
	OpFlush       Opcode = 25
	OpInit        Opcode = 26
	OpOpendir     Opcode = 27
	OpReaddir     Opcode = 28
	OpReleasedir  Opcode = 29
	OpFsyncdir    Opcode = 30
	OpGetlk       Opcode = 31
	OpSetlk       Opcode = 32
	OpSetlkw      Opcode = 33
	OpAccess      Opcode = 34
	OpCreate      Opcode = 35
	OpInterrupt   Opcode = 36
	OpBmap        Opcode = 37
	OpDestroy     Opcode = 38
	OpIoctl       Opcode = 39
	OpPoll        Opcode = 40
	OpNotifyReply Opcode = 41
	OpBatchForget Opcode = 42
	OpFallocate   Opcode = 43
	OpReaddirplus Opcode = 44
	OpRename2     Opcode = 45
	OpLseek       Opcode = 46
	OpCopyFileRng Opcode = 47
	OpSetupmapping   Opcode = 48
	OpRemovemapping  Opcode = 49
)

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "UNKNOWN"
}

var opcodeNames = map[Opcode]string{
	OpLookup: "LOOKUP", OpForget: "FORGET", OpGetattr: "GETATTR",
	OpSetattr: "SETATTR", OpReadlink: "READLINK", OpSymlink: "SYMLINK",
	OpMknod: "MKNOD", OpMkdir: "MKDIR", OpUnlink: "UNLINK", OpRmdir: "RMDIR",
	OpRename: "RENAME", OpLink: "LINK", OpOpen: "OPEN", OpRead: "READ",
	OpWrite: "WRITE", OpStatfs: "STATFS", OpRelease: "RELEASE",
	OpFsync: "FSYNC", OpSetxattr: "SETXATTR", OpGetxattr: "GETXATTR",
	OpListxattr: "LISTXATTR", OpRemovexattr: "REMOVEXATTR", OpFlush: "FLUSH",
	OpInit: "INIT", OpOpendir: "OPENDIR", OpReaddir: "READDIR",
	OpReleasedir: "RELEASEDIR", OpFsyncdir: "FSYNCDIR", OpGetlk: "GETLK",
	OpSetlk: "SETLK", OpSetlkw: "SETLKW", OpAccess: "ACCESS",
	OpCreate: "CREATE", OpInterrupt: "INTERRUPT", OpBmap: "BMAP",
	OpDestroy: "DESTROY", OpIoctl: "IOCTL", OpPoll: "POLL",
	OpNotifyReply: "NOTIFY_REPLY", OpBatchForget: "BATCH_FORGET",
	OpFallocate: "FALLOCATE", OpReaddirplus: "READDIRPLUS",
	OpRename2: "RENAME2", OpLseek: "LSEEK", OpCopyFileRng: "COPY_FILE_RANGE",
	OpSetupmapping: "SETUPMAPPING", OpRemovemapping: "REMOVEMAPPING",
}

// RootID is the nodeid reserved for the filesystem root, per spec.md §3
// (Inode entity) and §9 (DESIGN NOTES): "The root inode is special-cased
// at nodeid = 1."
const RootID uint64 = 1

// Capability flags negotiated during INIT (FUSE_* in fuse.h). Only the
// subset this engine negotiates is named.
const (
	CapAsyncRead        uint32 = 1 << 0
	CapPosixLocks       uint32 = 1 << 1
	CapAtomicOTrunc      uint32 = 1 << 3
	CapExportSupport    uint32 = 1 << 4
	CapBigWrites        uint32 = 1 << 5
	CapDontMask         uint32 = 1 << 6
	CapSpliceWrite      uint32 = 1 << 7
	CapSpliceMove       uint32 = 1 << 8
	CapSpliceRead       uint32 = 1 << 9
	CapFlockLocks       uint32 = 1 << 10
	CapHasIoctlDir      uint32 = 1 << 11
	CapAutoInvalData    uint32 = 1 << 12
	CapDoReaddirplus    uint32 = 1 << 13
	CapReaddirplusAuto  uint32 = 1 << 14
	CapAsyncDIO         uint32 = 1 << 15
	CapWritebackCache   uint32 = 1 << 16
	CapNoOpenSupport    uint32 = 1 << 17
	CapParallelDirops   uint32 = 1 << 18
	CapHandleKillpriv   uint32 = 1 << 19
	CapMaxPages         uint32 = 1 << 22
)

// SetAttr "to_set" bitmask values.
const (
	SetAttrMode     uint32 = 1 << 0
	SetAttrUID      uint32 = 1 << 1
	SetAttrGID      uint32 = 1 << 2
	SetAttrSize     uint32 = 1 << 3
	SetAttrAtime    uint32 = 1 << 4
	SetAttrMtime    uint32 = 1 << 5
	SetAttrAtimeNow uint32 = 1 << 7
	SetAttrMtimeNow uint32 = 1 << 8
	SetAttrCtime    uint32 = 1 << 10
)

const (
	KernelVersion      uint32 = 7
	KernelMinorVersion uint32 = 36

	// DefaultMaxPagesPerReq bounds bufsize when the client does not
	// announce FUSE_MAX_PAGES (spec.md §4.3 Buffer sizing).
	DefaultMaxPagesPerReq = 32
	// MinReadBuffer is the smallest bufsize value the kernel accepts;
	// we clamp up to this rather than reject.
	MinReadBuffer = 8192
	// BufferHeaderOverhead is the slack fuse_lowlevel leaves for request
	// headers on top of page-aligned payload.
	BufferHeaderOverhead = 0x1000
)
