// Package null implements the canonical minimal backend: it exists to
// prove a device can attach to the HAL and answer the wire ABI at all,
// not to serve a real filesystem. Grounded directly on
// original_source/virtiofs_nulldev/main.c, which registers only a
// FUSE_INIT handler that unconditionally replies -ENOSYS and leaves
// every other opcode unregistered (the emulation layer's own fallback
// handles those).
package null

import (
	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/logger"
)

type dispatchCursor = interface {
	WriteBuf([]byte) error
	BytesUnused() int
}

// Backend answers INIT with -ENOSYS and nothing else, the direct
// translation of virtiofs_nulldev's fuse_init.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Handlers() map[fuseops.Opcode]dispatch.Handler {
	return map[fuseops.Opcode]dispatch.Handler{
		fuseops.OpInit: b.handleInit,
	}
}

func (b *Backend) handleInit(hdr fuseops.InHeader, in []byte, out dispatchCursor) (int32, dispatch.Status) {
	logger.Info("null backend: init called, but not implemented")
	return -38, dispatch.Done // -ENOSYS
}
