// Package dpfserr provides sentinel errors shared across the dispatch
// engine and its backends, mirroring the typed-sentinel-plus-errors.Is
// convention used throughout the codebase's metadata layer.
package dpfserr

import "errors"

var (
	// ErrNotInitialized is returned when an operation other than INIT is
	// attempted before the FUSE session has completed its handshake.
	ErrNotInitialized = errors.New("dpfs: session not initialized")

	// ErrAlreadyInitialized is returned by a duplicate INIT request.
	ErrAlreadyInitialized = errors.New("dpfs: session already initialized")

	// ErrDestroyed names a request arriving after DESTROY. session.CheckOpcode
	// does not return it; it reports that case as ErrNotInitialized.
	ErrDestroyed = errors.New("dpfs: session destroyed")

	// ErrPoolExhausted is returned when a memory pool has no free chunks.
	ErrPoolExhausted = errors.New("dpfs: memory pool exhausted")

	// ErrShortBuffer is returned when a scatter-gather cursor does not
	// have enough remaining space for a requested write.
	ErrShortBuffer = errors.New("dpfs: short output buffer")

	// ErrUnsupportedLock is returned for POSIX byte-range lock requests;
	// only advisory flock-style whole-file locks are supported.
	ErrUnsupportedLock = errors.New("dpfs: only flock-style locks are supported")

	// ErrCrossDevice is returned when a lookup would cross the root
	// filesystem's device boundary.
	ErrCrossDevice = errors.New("dpfs: lookup crossed device boundary")

	// ErrRemoteIO is returned when a backend's remote transport fails
	// before a protocol-level status can be determined.
	ErrRemoteIO = errors.New("dpfs: remote I/O error")

	// ErrSuspended is returned when a request arrives for a device that
	// has already stopped accepting new work.
	ErrSuspended = errors.New("dpfs: device suspended")
)
