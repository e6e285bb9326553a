package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Keys are shared across the
// HAL, dispatcher, and every backend so log aggregation can filter and
// join on them regardless of which layer emitted the line.
const (
	// ========================================================================
	// Device / thread identity
	// ========================================================================
	KeyDeviceID = "device_id" // virtio-fs device index
	KeyThreadID = "thread_id" // polling thread index

	// ========================================================================
	// FUSE request identity
	// ========================================================================
	KeyOpcode = "opcode" // FUSE opcode name (LOOKUP, WRITE, ...)
	KeyUnique = "unique" // fuse_in_header.unique, correlates request/reply
	KeyNodeid = "nodeid" // fuse_in_header.nodeid
	KeyErrno  = "errno"  // negative POSIX errno placed in the reply header

	// ========================================================================
	// Backend identity
	// ========================================================================
	KeyBackend    = "backend"    // backend kind: passthrough, nfs, rpctunnel, kv, null
	KeyConnection = "connection" // NFS connection index
	KeySlot       = "slot"       // NFS slot table index

	// ========================================================================
	// File system operations
	// ========================================================================
	KeyPath = "path" // full file/directory path (passthrough backend)
	KeyName = "name" // entry name within a parent directory
	KeySize = "size" // file size in bytes
	KeyMode = "mode" // file mode/permissions

	// ========================================================================
	// I/O operations
	// ========================================================================
	KeyOffset       = "offset"
	KeyCount        = "count"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"

	// ========================================================================
	// Client identification
	// ========================================================================
	KeyUID = "uid"
	KeyGID = "gid"
	KeyPID = "pid"

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
)

// DeviceID returns a slog.Attr for the emulated device index.
func DeviceID(id uint16) slog.Attr { return slog.Any(KeyDeviceID, id) }

// ThreadID returns a slog.Attr for the polling thread index.
func ThreadID(id uint16) slog.Attr { return slog.Any(KeyThreadID, id) }

// Opcode returns a slog.Attr for the FUSE opcode name.
func Opcode(name string) slog.Attr { return slog.String(KeyOpcode, name) }

// Unique returns a slog.Attr for fuse_in_header.unique.
func Unique(u uint64) slog.Attr { return slog.Uint64(KeyUnique, u) }

// Nodeid returns a slog.Attr for fuse_in_header.nodeid.
func Nodeid(id uint64) slog.Attr { return slog.Uint64(KeyNodeid, id) }

// Errno returns a slog.Attr for a negative POSIX errno.
func Errno(e int32) slog.Attr { return slog.Int(KeyErrno, int(e)) }

// Backend returns a slog.Attr for the backend kind.
func Backend(kind string) slog.Attr { return slog.String(KeyBackend, kind) }

// Connection returns a slog.Attr for an NFS connection index.
func Connection(idx int) slog.Attr { return slog.Int(KeyConnection, idx) }

// Slot returns a slog.Attr for an NFS slot table index.
func Slot(idx int) slog.Attr { return slog.Int(KeySlot, idx) }

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Name returns a slog.Attr for an entry name.
func Name(n string) slog.Attr { return slog.String(KeyName, n) }

// Size returns a slog.Attr for a file size.
func Size(s uint64) slog.Attr { return slog.Uint64(KeySize, s) }

// Mode returns a slog.Attr for a file mode.
func Mode(m uint32) slog.Attr { return slog.Any(KeyMode, m) }

// Offset returns a slog.Attr for a file offset.
func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

// Count returns a slog.Attr for a requested byte count.
func Count(c uint32) slog.Attr { return slog.Any(KeyCount, c) }

// BytesRead returns a slog.Attr for actual bytes read.
func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for actual bytes written.
func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

// UID returns a slog.Attr for a user ID.
func UID(uid uint32) slog.Attr { return slog.Any(KeyUID, uid) }

// GID returns a slog.Attr for a group ID.
func GID(gid uint32) slog.Attr { return slog.Any(KeyGID, gid) }

// PID returns a slog.Attr for a process ID.
func PID(pid uint32) slog.Attr { return slog.Any(KeyPID, pid) }

// DurationMs returns a slog.Attr for an operation duration.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// MaxRetries returns a slog.Attr for the maximum retry count.
func MaxRetries(n int) slog.Attr { return slog.Int(KeyMaxRetries, n) }

// HandleHex formats an opaque byte handle (e.g. an NFS filehandle) as hex.
func HandleHex(h []byte) slog.Attr {
	return slog.String("handle", fmt.Sprintf("%x", h))
}
