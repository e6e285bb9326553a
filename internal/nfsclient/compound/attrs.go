// Package compound builds and parses the NFSv4.1 COMPOUND request/reply
// bodies backend/nfs issues per spec.md §4.7's operation-by-operation
// tables, adapted from the request/reply encode/decode pairs in
// internal/adapter/nfs/v4/types (e.g. exchange_id.go, create_session.go)
// but generalized from server-side arg/res structs to client-side
// builder functions that each return ready-to-send op bytes, and reader
// functions that each consume one op's reply from the wire.
package compound

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dpfs-project/dpfs/internal/protocol/xdr"
)

// fattr4 attribute numbers this engine requests or sets, per RFC 8881
// Section 5.8 (Table 5).
const (
	fattr4Type       = 1
	fattr4Size       = 4
	fattr4FilesFree  = 22
	fattr4FilesTotal = 23
	fattr4Fileid     = 20
	fattr4Maxname    = 29
	fattr4Mode       = 33
	fattr4Numlinks   = 35
	fattr4SpaceAvail = 42
	fattr4SpaceFree  = 43
	fattr4SpaceTotal = 44
	fattr4TimeModify = 53
)

// StandardAttrs is the GETATTR request bitmap spec.md §4.7 calls
// "standard": TYPE, SIZE, MODE, FILEID, NUMLINKS, TIME_MODIFY.
var StandardAttrs = []int{fattr4Type, fattr4Size, fattr4Mode, fattr4Fileid, fattr4Numlinks, fattr4TimeModify}

// StatfsAttrs is the GETATTR request bitmap for STATFS: FILES_FREE,
// FILES_TOTAL, MAXNAME, SPACE_AVAIL, SPACE_FREE, SPACE_TOTAL.
var StatfsAttrs = []int{fattr4FilesFree, fattr4FilesTotal, fattr4Maxname, fattr4SpaceAvail, fattr4SpaceFree, fattr4SpaceTotal}

// encodeBitmap4 writes a bitmap4 (RFC 8881 Section 3.3.1 uint32 bitmap<>)
// covering the given attribute numbers.
func encodeBitmap4(buf *bytes.Buffer, attrs []int) error {
	var words []uint32
	for _, a := range attrs {
		word := a / 32
		for len(words) <= word {
			words = append(words, 0)
		}
		words[word] |= 1 << uint(a%32)
	}
	if err := xdr.WriteUint32(buf, uint32(len(words))); err != nil {
		return err
	}
	for _, w := range words {
		if err := xdr.WriteUint32(buf, w); err != nil {
			return err
		}
	}
	return nil
}

func decodeBitmap4(r io.Reader) ([]uint32, error) {
	count, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, count)
	for i := range words {
		w, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		words[i] = w
	}
	return words, nil
}

func bitmapHas(words []uint32, attr int) bool {
	word := attr / 32
	if word >= len(words) {
		return false
	}
	return words[word]&(1<<uint(attr%32)) != 0
}

// Attrs carries the subset of fattr4 values this engine understands,
// decoded from a GETATTR reply's attr_vals opaque blob.
type Attrs struct {
	Type      uint32
	Size      uint64
	Mode      uint32
	Fileid    uint64
	Numlinks  uint32
	MtimeSec  int64
	MtimeNsec uint32

	FilesFree  uint64
	FilesTotal uint64
	MaxName    uint32
	SpaceAvail uint64
	SpaceFree  uint64
	SpaceTotal uint64
}

// decodeFattr4 parses a GETATTR reply body: bitmap4 then opaque
// attr_vals<>, decoding each present attribute in ascending attribute
// number order (RFC 8881 Section 3.3.3), which is the only order fattr4
// encodes them in.
func decodeFattr4(r io.Reader) (*Attrs, error) {
	words, err := decodeBitmap4(r)
	if err != nil {
		return nil, fmt.Errorf("compound: decode attr bitmap: %w", err)
	}
	valsBytes, err := xdr.DecodeOpaque(r)
	if err != nil {
		return nil, fmt.Errorf("compound: decode attr_vals: %w", err)
	}
	vr := bytes.NewReader(valsBytes)

	a := &Attrs{}
	maxAttr := len(words) * 32
	for attr := 0; attr < maxAttr; attr++ {
		if !bitmapHas(words, attr) {
			continue
		}
		switch attr {
		case fattr4Type:
			a.Type, err = xdr.DecodeUint32(vr)
		case fattr4Size:
			a.Size, err = xdr.DecodeUint64(vr)
		case fattr4FilesFree:
			a.FilesFree, err = xdr.DecodeUint64(vr)
		case fattr4FilesTotal:
			a.FilesTotal, err = xdr.DecodeUint64(vr)
		case fattr4Fileid:
			a.Fileid, err = xdr.DecodeUint64(vr)
		case fattr4Maxname:
			a.MaxName, err = xdr.DecodeUint32(vr)
		case fattr4Mode:
			a.Mode, err = xdr.DecodeUint32(vr)
		case fattr4Numlinks:
			a.Numlinks, err = xdr.DecodeUint32(vr)
		case fattr4SpaceAvail:
			a.SpaceAvail, err = xdr.DecodeUint64(vr)
		case fattr4SpaceFree:
			a.SpaceFree, err = xdr.DecodeUint64(vr)
		case fattr4SpaceTotal:
			a.SpaceTotal, err = xdr.DecodeUint64(vr)
		case fattr4TimeModify:
			var sec uint64
			sec, err = xdr.DecodeUint64(vr)
			a.MtimeSec = int64(sec)
			if err == nil {
				a.MtimeNsec, err = xdr.DecodeUint32(vr)
			}
		default:
			// Unknown-but-requested attribute: this engine never sets a
			// bit it cannot decode, so reaching here means the server
			// echoed something unexpected; surface it rather than
			// silently desyncing the rest of the blob.
			return nil, fmt.Errorf("compound: unexpected attribute %d in reply", attr)
		}
		if err != nil {
			return nil, fmt.Errorf("compound: decode attribute %d: %w", attr, err)
		}
	}
	return a, nil
}

// encodeSetattr builds the bitmap4 and attr_vals blob for SETATTR, which per
// spec.md §4.7 maps only MODE and SIZE from the FUSE "to_set" bitmask.
func encodeSetattr(buf *bytes.Buffer, setMode bool, mode uint32, setSize bool, size uint64) error {
	var attrs []int
	if setMode {
		attrs = append(attrs, fattr4Mode)
	}
	if setSize {
		attrs = append(attrs, fattr4Size)
	}
	if err := encodeBitmap4(buf, attrs); err != nil {
		return err
	}
	var vals bytes.Buffer
	if setSize {
		if err := xdr.WriteUint64(&vals, size); err != nil {
			return err
		}
	}
	if setMode {
		if err := xdr.WriteUint32(&vals, mode); err != nil {
			return err
		}
	}
	return xdr.WriteXDROpaque(buf, vals.Bytes())
}
