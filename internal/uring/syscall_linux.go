package uring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Raw io_uring syscall numbers (linux/amd64). golang.org/x/sys/unix does
// not export these as of the version this module vendors, so they are
// named here directly — the same approach taken by every pure-Go
// (non-liburing) io_uring binding in the ecosystem, since the numbers
// are a stable part of the kernel ABI, not an implementation detail.
const (
	sysIOURingSetup  = 425
	sysIOURingEnter  = 426
)

func setup(entries uint32, p *params) (int, unix.Errno) {
	r1, _, errno := unix.Syscall(sysIOURingSetup, uintptr(entries), uintptr(unsafe.Pointer(p)), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), 0
}

func enter(fd int, toSubmit uint32, minComplete uint32, flags uint32) (int, unix.Errno) {
	r1, _, errno := unix.Syscall6(sysIOURingEnter, uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), 0
}
