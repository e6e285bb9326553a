package uring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These tests exercise the SQE-prep helpers only: bringing up a real Ring
// requires a kernel that supports io_uring, which the host running these
// tests may not have, so the ring-lifecycle/reaper path is left to
// integration testing against backend/passthrough.

func TestPrepStatxSetsEmptyPathAndNofollow(t *testing.T) {
	var s SQE
	PrepStatx(&s, 7, 0xdeadbeef, 0x7ff)
	assert.EqualValues(t, OpStatx, s.Opcode)
	assert.EqualValues(t, 7, s.Fd)
	assert.EqualValues(t, 0xdeadbeef, s.Addr)
	assert.EqualValues(t, 0x7ff, s.Len)
}

func TestPrepOpenatCarriesFlagsAndMode(t *testing.T) {
	var s SQE
	PrepOpenat(&s, -1, 0x1000, 0x241, 0644)
	assert.EqualValues(t, OpOpenat, s.Opcode)
	assert.EqualValues(t, -1, s.Fd)
	assert.EqualValues(t, 0x241, s.OpFlags)
	assert.EqualValues(t, 0644, s.Len)
}

func TestPrepRenameatCarriesBothDirFds(t *testing.T) {
	var s SQE
	PrepRenameat(&s, 3, 0x100, 5, 0x200)
	assert.EqualValues(t, OpRenameat, s.Opcode)
	assert.EqualValues(t, 3, s.Fd)
	assert.EqualValues(t, 5, s.SpliceFdIn)
	assert.EqualValues(t, 0x100, s.Addr)
	assert.EqualValues(t, 0x200, s.Off)
}

func TestPrepReadvAndWritevCarryOffsetAndIovcnt(t *testing.T) {
	var r SQE
	PrepReadv(&r, 9, 0x300, 2, 4096)
	assert.EqualValues(t, OpReadv, r.Opcode)
	assert.EqualValues(t, 2, r.Len)
	assert.EqualValues(t, 4096, r.Off)

	var w SQE
	PrepWritev(&w, 9, 0x300, 1, 0)
	assert.EqualValues(t, OpWritev, w.Opcode)
	assert.EqualValues(t, 1, w.Len)
}
