package rpc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCallProducesNonEmptyEnvelope(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	out, err := EncodeCall(7, payload)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(out, payload))
}

func TestWriteReadRecordRoundTripsSingleFragment(t *testing.T) {
	var buf bytes.Buffer
	msg := []byte("hello compound")
	require.NoError(t, WriteRecord(&buf, msg))

	got, err := ReadRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestReadRecordReassemblesMultipleFragments(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x03})
	buf.Write([]byte("abc"))
	buf.Write([]byte{0x80, 0x00, 0x00, 0x02})
	buf.Write([]byte("de"))

	got, err := ReadRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), got)
}
