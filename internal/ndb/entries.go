package ndb

import (
	"encoding/binary"
	"fmt"
)

// NodeEntry is a leaf of the node B-tree.
type NodeEntry struct {
	NID        NID
	DataBID    BID
	SubnodeBID BID
	ParentNID  NID
}

func (e NodeEntry) String() string {
	return fmt.Sprintf("node{nid=%s data=%s sub=%s parent=%s}", e.NID, e.DataBID, e.SubnodeBID, e.ParentNID)
}

// BlockEntry is a leaf of the block B-tree.
type BlockEntry struct {
	BREF BREF
	// Size is the stored payload length, trailer excluded.
	Size uint16
	// Inflated is the payload length after decompression. Only Unicode4K
	// containers carry it; elsewhere it equals Size.
	Inflated uint16
	RefCount uint32
}

func (e BlockEntry) String() string {
	return fmt.Sprintf("block{%s cb=%d inflated=%d ref=%d}", e.BREF, e.Size, e.Inflated, e.RefCount)
}

// Compressed reports whether the stored payload must be inflated.
func (e BlockEntry) Compressed() bool {
	return e.Inflated != 0 && e.Inflated != e.Size
}

// decodeNodeEntry reads an NBTENTRY. Unicode NIDs occupy eight bytes of which
// only the low four are meaningful.
func decodeNodeEntry(f Format, b []byte) (NodeEntry, uint64, error) {
	var (
		e   NodeEntry
		err error
	)
	w := f.IDSize()
	if e.NID, err = ReadNID(b, 0); err != nil {
		return e, 0, err
	}
	if e.DataBID, err = ReadBID(f, b, w); err != nil {
		return e, 0, err
	}
	if e.SubnodeBID, err = ReadBID(f, b, 2*w); err != nil {
		return e, 0, err
	}
	if e.ParentNID, err = ReadNID(b, 3*w); err != nil {
		return e, 0, err
	}
	return e, uint64(e.NID), nil
}

// decodeBlockEntry reads a BBTENTRY. The lookup key ignores the reserved bit.
func decodeBlockEntry(f Format, b []byte) (BlockEntry, uint64, error) {
	var e BlockEntry
	ref, err := ReadBREF(f, b, 0)
	if err != nil {
		return e, 0, err
	}
	e.BREF = ref
	off := f.BREFSize()
	if !fits(b, off, 4) {
		return e, 0, short("bbt entry", b, off, 4)
	}
	e.Size = binary.LittleEndian.Uint16(b[off:])
	switch f {
	case FormatUnicode4K:
		if !fits(b, off, 8) {
			return e, 0, short("bbt entry", b, off, 8)
		}
		e.Inflated = binary.LittleEndian.Uint16(b[off+2:])
		e.RefCount = binary.LittleEndian.Uint32(b[off+4:])
	default:
		e.Inflated = e.Size
		e.RefCount = uint32(binary.LittleEndian.Uint16(b[off+2:]))
	}
	return e, uint64(ref.BID.Masked()), nil
}

// decodeIndexEntry reads a BTENTRY: the lowest key of the child page and its
// location.
func decodeIndexEntry(f Format, b []byte) (uint64, BREF, error) {
	key, err := readID(f, "btkey", b, 0)
	if err != nil {
		return 0, BREF{}, err
	}
	ref, err := ReadBREF(f, b, f.IDSize())
	return key, ref, err
}
