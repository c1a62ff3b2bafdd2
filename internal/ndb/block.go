package ndb

import (
	"encoding/binary"
	"fmt"
)

const (
	btypeXBlock  = 0x01
	btypeSubnode = 0x02
)

// BlockTrailer closes every block.
type BlockTrailer struct {
	Size uint16
	Sig  uint16
	CRC  uint32
	BID  BID
}

// ParseBlockTrailer decodes the trailer at the end of an allocated block.
func ParseBlockTrailer(f Format, block []byte) (BlockTrailer, error) {
	n := f.BlockTrailerSize()
	if len(block) < n {
		return BlockTrailer{}, structuralf("block of %d bytes has no trailer", len(block))
	}
	b := block[len(block)-n:]
	t := BlockTrailer{
		Size: binary.LittleEndian.Uint16(b[0:]),
		Sig:  binary.LittleEndian.Uint16(b[2:]),
	}
	var err error
	if f == FormatANSI {
		t.BID, err = ReadBID(f, b, 4)
		t.CRC = binary.LittleEndian.Uint32(b[8:])
	} else {
		t.CRC = binary.LittleEndian.Uint32(b[4:])
		t.BID, err = ReadBID(f, b, 8)
	}
	return t, err
}

// DataTree is the payload of a node: one buffer per leaf block, in order.
type DataTree struct {
	Blocks [][]byte
	// Size is the declared total length: lcbTotal of the top data tree block,
	// or the single leaf's length.
	Size uint32
}

// Bytes concatenates the leaf buffers.
func (d *DataTree) Bytes() []byte {
	if len(d.Blocks) == 1 {
		return d.Blocks[0]
	}
	out := make([]byte, 0, d.Size)
	for _, b := range d.Blocks {
		out = append(out, b...)
	}
	return out
}

// readRawBlock reads the stored payload of a block and validates its trailer.
func (db *DB) readRawBlock(bid BID) (BlockEntry, []byte, error) {
	const msg = "readRawBlock:"
	e, ok, err := db.LookupBlock(bid)
	if err != nil {
		return e, nil, err
	}
	if !ok {
		return e, nil, fmt.Errorf("%s block %s: %w", msg, bid, ErrNotFound)
	}

	f := db.header.Format
	buf := make([]byte, f.BlockAllocSize(int(e.Size)))
	if _, err := db.src.ReadAt(buf, int64(e.BREF.IB)); err != nil {
		return e, nil, fmt.Errorf("%s read block %s: %w", msg, e.BREF, err)
	}
	t, err := ParseBlockTrailer(f, buf)
	if err != nil {
		return e, nil, err
	}
	if t.BID.Masked() != bid.Masked() {
		return e, nil, structuralf("%s block %s trailer names bid %s", msg, e.BREF, t.BID)
	}
	if t.Size != e.Size {
		return e, nil, structuralf("%s block %s trailer cb %d, block tree says %d", msg, e.BREF, t.Size, e.Size)
	}
	if sig := ComputeSig(e.BREF.IB, t.BID); t.Sig != sig {
		return e, nil, structuralf("%s block %s signature 0x%04x, want 0x%04x", msg, e.BREF, t.Sig, sig)
	}
	return e, buf[:e.Size], nil
}

// ReadBlocks resolves a data BID to its leaf buffers. Internal BIDs are
// XBLOCKs (one level of BIDs) or XXBLOCKs (two levels); every leaf is run
// through the filter chain before it is returned.
func (db *DB) ReadBlocks(bid BID) (*DataTree, error) {
	dt := &DataTree{}
	if err := db.readTree(bid, -1, dt, true); err != nil {
		return nil, err
	}
	return dt, nil
}

// ReadBlock resolves a data BID and concatenates its leaves.
func (db *DB) ReadBlock(bid BID) ([]byte, error) {
	dt, err := db.ReadBlocks(bid)
	if err != nil {
		return nil, err
	}
	return dt.Bytes(), nil
}

// readTree appends the leaves under bid to dt. wantLevel is the cLevel the
// parent expects, -1 at the top.
func (db *DB) readTree(bid BID, wantLevel int, dt *DataTree, top bool) error {
	const msg = "readTree:"
	e, data, err := db.readRawBlock(bid)
	if err != nil {
		return err
	}

	if !bid.Internal() {
		if wantLevel > 0 {
			return structuralf("%s leaf block %s where a level %d data tree block was expected", msg, bid, wantLevel)
		}
		lb := &LeafBlock{Entry: e, Data: data}
		if err := db.filters.apply(lb); err != nil {
			return err
		}
		dt.Blocks = append(dt.Blocks, lb.Data)
		if top {
			dt.Size = uint32(len(lb.Data))
		}
		return nil
	}

	if wantLevel == 0 {
		return structuralf("%s internal block %s where a leaf was expected", msg, bid)
	}
	x, err := parseXBlock(db.header.Format, data)
	if err != nil {
		return fmt.Errorf("%s block %s: %w", msg, bid, err)
	}
	if wantLevel > 0 && int(x.level) != wantLevel {
		return structuralf("%s block %s has level %d, want %d", msg, bid, x.level, wantLevel)
	}
	if top {
		dt.Size = x.total
		dt.Blocks = make([][]byte, 0, len(x.bids))
	}
	for _, child := range x.bids {
		if err := db.readTree(child, int(x.level)-1, dt, false); err != nil {
			return err
		}
	}
	return nil
}

type xblock struct {
	level uint8
	total uint32
	bids  []BID
}

func parseXBlock(f Format, b []byte) (*xblock, error) {
	hdr := f.Layout().XBlockHeader
	if len(b) < hdr {
		return nil, structuralf("data tree block of %d bytes", len(b))
	}
	if b[0] != btypeXBlock {
		return nil, structuralf("data tree block type 0x%02x", b[0])
	}
	x := &xblock{
		level: b[1],
		total: binary.LittleEndian.Uint32(b[4:]),
	}
	if x.level != 1 && x.level != 2 {
		return nil, structuralf("data tree block depth %d", x.level)
	}
	cEnt := int(binary.LittleEndian.Uint16(b[2:]))
	w := f.IDSize()
	if hdr+cEnt*w > len(b) {
		return nil, structuralf("data tree block with %d entries in %d bytes", cEnt, len(b))
	}
	x.bids = make([]BID, cEnt)
	for i := range x.bids {
		bid, err := ReadBID(f, b, hdr+i*w)
		if err != nil {
			return nil, err
		}
		x.bids[i] = bid
	}
	return x, nil
}
