package compound

import (
	"bytes"
	"testing"

	nfs4 "github.com/dpfs-project/dpfs/internal/nfsclient/types"
	"github.com/dpfs-project/dpfs/internal/protocol/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitmap4RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeBitmap4(&buf, StandardAttrs))

	words, err := decodeBitmap4(&buf)
	require.NoError(t, err)
	for _, attr := range StandardAttrs {
		assert.True(t, bitmapHas(words, attr))
	}
	assert.False(t, bitmapHas(words, fattr4SpaceAvail))
}

func TestEncodeArgsPlacesTagMinorVersionAndOpcodes(t *testing.T) {
	seq, err := Sequence(nfs4.SessionId4{}, 1, 0, 0, false)
	require.NoError(t, err)
	fh, err := PutRootFH()
	require.NoError(t, err)

	args, err := EncodeArgs("dpfs", []Op{seq, fh})
	require.NoError(t, err)

	r := bytes.NewReader(args)
	tag, err := xdr.DecodeString(r)
	require.NoError(t, err)
	assert.Equal(t, "dpfs", tag)

	minorVersion, err := xdr.DecodeUint32(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), minorVersion)

	numOps, err := xdr.DecodeUint32(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), numOps)

	opcode, err := xdr.DecodeUint32(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(nfs4.OP_SEQUENCE), opcode)
}

func TestDecodeReplyAndGetAttrRoundTrip(t *testing.T) {
	var attrVals bytes.Buffer
	require.NoError(t, xdr.WriteUint64(&attrVals, 42)) // fileid

	var opBody bytes.Buffer
	require.NoError(t, encodeBitmap4(&opBody, []int{fattr4Fileid}))
	require.NoError(t, xdr.WriteXDROpaque(&opBody, attrVals.Bytes()))

	var reply bytes.Buffer
	require.NoError(t, xdr.WriteUint32(&reply, nfs4.NFS4_OK)) // overall status
	require.NoError(t, xdr.WriteXDRString(&reply, "dpfs"))
	require.NoError(t, xdr.WriteUint32(&reply, 1)) // numres
	require.NoError(t, xdr.WriteUint32(&reply, uint32(nfs4.OP_GETATTR)))
	require.NoError(t, xdr.WriteUint32(&reply, nfs4.NFS4_OK))
	reply.Write(opBody.Bytes())

	rep, err := DecodeReply(reply.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "dpfs", rep.Tag)

	status, attrs, err := rep.DecodeGetAttr()
	require.NoError(t, err)
	assert.Equal(t, uint32(nfs4.NFS4_OK), status)
	assert.Equal(t, uint64(42), attrs.Fileid)
}
