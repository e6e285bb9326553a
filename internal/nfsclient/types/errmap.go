package types

import (
	"syscall"

	v4types "github.com/dpfs-project/dpfs/internal/protocol/nfs/v4/types"
)

// MapStatus translates an nfsstat4 value to the POSIX errno backend/nfs
// returns in the FUSE out_hdr. Per spec.md §4.7: the mapping is monotonic
// (numerically equal) up through NFS4ERR_MLINK, since that range reuses
// the NFSv3/POSIX error values directly; the codes above it named in the
// switch below map to the errnos listed there, and any other code maps to
// ENOSYS.
func MapStatus(status uint32) syscall.Errno {
	if status == v4types.NFS4_OK {
		return 0
	}
	if status <= v4types.NFS4ERR_MLINK {
		return syscall.Errno(status)
	}
	switch status {
	case v4types.NFS4ERR_NAMETOOLONG:
		return syscall.ENAMETOOLONG
	case v4types.NFS4ERR_NOTEMPTY:
		return syscall.ENOTEMPTY
	case v4types.NFS4ERR_DQUOT:
		return syscall.EDQUOT
	case v4types.NFS4ERR_STALE:
		return syscall.ESTALE
	case v4types.NFS4ERR_BADHANDLE, v4types.NFS4ERR_FHEXPIRED, v4types.NFS4ERR_MOVED,
		v4types.NFS4ERR_NOFILEHANDLE:
		return syscall.ESTALE
	case v4types.NFS4ERR_NOTSUPP, v4types.NFS4ERR_ATTRNOTSUPP, v4types.NFS4ERR_LOCK_NOTSUPP:
		return syscall.EOPNOTSUPP
	case v4types.NFS4ERR_DELAY, v4types.NFS4ERR_GRACE, v4types.NFS4ERR_RESOURCE:
		return syscall.EAGAIN
	case v4types.NFS4ERR_LOCKED, v4types.NFS4ERR_DENIED, v4types.NFS4ERR_SHARE_DENIED,
		v4types.NFS4ERR_FILE_OPEN:
		return syscall.EACCES
	case v4types.NFS4ERR_BADNAME, v4types.NFS4ERR_BADCHAR:
		return syscall.EINVAL
	case v4types.NFS4ERR_DEADLOCK:
		return syscall.EDEADLK
	default:
		return syscall.ENOSYS
	}
}
