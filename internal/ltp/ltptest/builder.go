// Package ltptest builds heaps, property contexts and table contexts for
// tests.
package ltptest

import (
	"encoding/binary"
	"sort"

	"golang.org/x/text/encoding/unicode"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/ndb/ndbtest"
)

// Heap lays out heap items over one or more blocks.
type Heap struct {
	sig    ltp.ClientSig
	root   ndb.HID
	blocks [][][]byte
}

// NewHeap starts a heap with one empty block.
func NewHeap(sig ltp.ClientSig) *Heap {
	return &Heap{sig: sig, blocks: [][][]byte{nil}}
}

// NextBlock makes later items go to a new block.
func (h *Heap) NextBlock() {
	h.blocks = append(h.blocks, nil)
}

// Add appends an item to the current block.
func (h *Heap) Add(item []byte) ndb.HID {
	bi := len(h.blocks) - 1
	h.blocks[bi] = append(h.blocks[bi], item)
	return ndb.MakeHID(uint16(bi), uint16(len(h.blocks[bi])))
}

// SetRoot sets hidUserRoot.
func (h *Heap) SetRoot(hid ndb.HID) { h.root = hid }

// Bytes encodes every block.
func (h *Heap) Bytes() [][]byte {
	out := make([][]byte, len(h.blocks))
	for i, items := range h.blocks {
		hdr := 2
		switch {
		case i == 0:
			hdr = 12
		case i == 8 || (i > 8 && (i-8)%128 == 0):
			hdr = 66
		}
		b := make([]byte, hdr)
		alloc := []uint16{uint16(hdr)}
		for _, it := range items {
			b = append(b, it...)
			alloc = append(alloc, uint16(len(b)))
		}
		if len(b)%2 != 0 {
			b = append(b, 0)
		}
		binary.LittleEndian.PutUint16(b, uint16(len(b)))
		if i == 0 {
			b[2] = 0xEC
			b[3] = byte(h.sig)
			binary.LittleEndian.PutUint32(b[4:], uint32(h.root))
		}
		pm := make([]byte, 4+2*len(alloc))
		binary.LittleEndian.PutUint16(pm, uint16(len(items)))
		for j, a := range alloc {
			binary.LittleEndian.PutUint16(pm[4+2*j:], a)
		}
		out[i] = append(b, pm...)
	}
	return out
}

// Store writes the heap as the data of node nid, with the given subnodes.
func (h *Heap) Store(b *ndbtest.Builder, nid ndb.NID, subnodes ...ndb.SubnodeEntry) {
	e := ndb.NodeEntry{NID: nid, DataBID: b.AddDataTree(h.Bytes()...)}
	if len(subnodes) > 0 {
		e.SubnodeBID = b.AddSubnodes(subnodes...)
	}
	b.AddNode(e)
}

// BTH adds a one-level BTH over records (already key+data encoded) and
// returns the header HID.
func (h *Heap) BTH(keySize, entrySize uint8, records [][]byte) ndb.HID {
	var leaf []byte
	for _, r := range records {
		leaf = append(leaf, r...)
	}
	var root ndb.HID
	if len(records) > 0 {
		root = h.Add(leaf)
	}
	hdr := []byte{byte(ltp.SigBTH), keySize, entrySize, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(hdr[4:], uint32(root))
	return h.Add(hdr)
}

// UTF16 encodes s as stored by PtypString.
func UTF16(s string) []byte {
	b, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	return b
}

// MultiValue encodes variable-size values as ulCount, offsets, data.
func MultiValue(parts ...[]byte) []byte {
	hdr := 4 + 4*len(parts)
	b := make([]byte, hdr)
	binary.LittleEndian.PutUint32(b, uint32(len(parts)))
	for i, p := range parts {
		binary.LittleEndian.PutUint32(b[4+4*i:], uint32(len(b)))
		b = append(b, p...)
	}
	return b
}

// U32 encodes v little endian.
func U32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// U64 encodes v little endian.
func U64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

type pcRecord struct {
	id   ltp.PropID
	typ  ltp.PropType
	slot uint32
}

// PC builds a property context.
type PC struct {
	heap *Heap
	recs []pcRecord
}

// NewPC starts an empty property context.
func NewPC() *PC {
	return &PC{heap: NewHeap(ltp.SigPC)}
}

// Heap exposes the underlying heap for items the PC points at.
func (p *PC) Heap() *Heap { return p.heap }

// Inline adds a property stored directly in its 4-byte slot.
func (p *PC) Inline(id ltp.PropID, t ltp.PropType, slot uint32) *PC {
	p.recs = append(p.recs, pcRecord{id: id, typ: t, slot: slot})
	return p
}

// Heaped adds a property whose value is a heap item.
func (p *PC) Heaped(id ltp.PropID, t ltp.PropType, value []byte) *PC {
	return p.Inline(id, t, uint32(p.heap.Add(value)))
}

// Subnode adds a property whose value is the data of subnode nid.
func (p *PC) Subnode(id ltp.PropID, t ltp.PropType, nid ndb.NID) *PC {
	return p.Inline(id, t, uint32(nid))
}

func (p *PC) finish() *Heap {
	sort.Slice(p.recs, func(i, j int) bool { return p.recs[i].id < p.recs[j].id })
	recs := make([][]byte, len(p.recs))
	for i, r := range p.recs {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint16(b, uint16(r.id))
		binary.LittleEndian.PutUint16(b[2:], uint16(r.typ))
		binary.LittleEndian.PutUint32(b[4:], r.slot)
		recs[i] = b
	}
	p.heap.SetRoot(p.heap.BTH(2, 6, recs))
	return p.heap
}

// Bytes encodes the heap blocks of the property context.
func (p *PC) Bytes() [][]byte { return p.finish().Bytes() }

// Store writes the property context as node nid.
func (p *PC) Store(b *ndbtest.Builder, nid ndb.NID, subnodes ...ndb.SubnodeEntry) {
	p.finish().Store(b, nid, subnodes...)
}

// TC builds a table context. Columns are laid out by width the way writers
// do: 8 and 4 byte cells, then 2 byte, then 1 byte, then the bitmap.
type TC struct {
	heap *Heap
	cols []ltp.Column
	rows []tcRow
}

type tcRow struct {
	id    uint32
	cells map[ltp.PropTag][]byte
}

// NewTC starts a table with the given column tags. Column widths follow
// the tag types.
func NewTC(tags ...ltp.PropTag) *TC {
	tc := &TC{heap: NewHeap(ltp.SigTC)}
	for i, tag := range tags {
		tc.cols = append(tc.cols, ltp.Column{Tag: tag, Size: uint8(cellSize(tag.Type())), Bit: uint8(i)})
	}
	return tc
}

func cellSize(t ltp.PropType) int {
	if n := t.FixedSize(); n > 0 && n <= 8 {
		return n
	}
	return 4
}

// Item adds a heap item and returns its HID, for variable-size cells.
func (t *TC) Item(b []byte) ndb.HID { return t.heap.Add(b) }

// Column returns column i so tests can alter its descriptor. Offsets are
// reassigned on Store.
func (t *TC) Column(i int) *ltp.Column { return &t.cols[i] }

// Row adds a row. cells maps a column tag to its raw cell bytes; columns
// without a cell are absent.
func (t *TC) Row(id uint32, cells map[ltp.PropTag][]byte) *TC {
	t.rows = append(t.rows, tcRow{id: id, cells: cells})
	return t
}

// layout assigns offsets and returns the group ends.
func (t *TC) layout() [4]uint16 {
	var ends [4]uint16
	off := 0
	for _, group := range [][2]int{{4, 8}, {2, 2}, {1, 1}} {
		for i := range t.cols {
			if n := int(t.cols[i].Size); n >= group[0] && n <= group[1] {
				t.cols[i].Offset = uint16(off)
				off += n
			}
		}
		switch group[0] {
		case 4:
			ends[0] = uint16(off)
		case 2:
			ends[1] = uint16(off)
		case 1:
			ends[2] = uint16(off)
		}
	}
	ends[3] = uint16(off + (len(t.cols)+7)/8)
	return ends
}

// RowWidth returns the width of one row after layout.
func (t *TC) RowWidth() int { return int(t.layout()[3]) }

func (t *TC) encodeRow(ends [4]uint16, r tcRow) []byte {
	b := make([]byte, ends[3])
	for _, c := range t.cols {
		cell, ok := r.cells[c.Tag]
		if !ok {
			continue
		}
		copy(b[c.Offset:int(c.Offset)+int(c.Size)], cell)
		b[int(ends[2])+int(c.Bit)/8] |= 1 << (7 - c.Bit%8)
	}
	return b
}

// Store writes the table as node nid. With rowsNID set the row matrix goes
// to that subnode, split over blocks the way a writer would; otherwise it is
// a heap item.
func (t *TC) Store(b *ndbtest.Builder, nid ndb.NID, rowsNID ndb.NID) {
	f := b.Format()
	ends := t.layout()

	idxSize := uint8(4)
	if f == ndb.FormatANSI {
		idxSize = 2
	}
	recs := make([][]byte, len(t.rows))
	for i, r := range t.rows {
		rec := make([]byte, 4+int(idxSize))
		binary.LittleEndian.PutUint32(rec, r.id)
		if idxSize == 2 {
			binary.LittleEndian.PutUint16(rec[4:], uint16(i))
		} else {
			binary.LittleEndian.PutUint32(rec[4:], uint32(i))
		}
		recs[i] = rec
	}
	sort.Slice(recs, func(i, j int) bool {
		return binary.LittleEndian.Uint32(recs[i]) < binary.LittleEndian.Uint32(recs[j])
	})
	rowIndex := t.heap.BTH(4, idxSize, recs)

	var subnodes []ndb.SubnodeEntry
	var hnidRows uint32
	if len(t.rows) > 0 {
		width := int(ends[3])
		if rowsNID != 0 {
			perBlock := f.MaxBlockData() / width
			var leaves [][]byte
			for start := 0; start < len(t.rows); start += perBlock {
				var leaf []byte
				for i := start; i < start+perBlock && i < len(t.rows); i++ {
					leaf = append(leaf, t.encodeRow(ends, t.rows[i])...)
				}
				leaves = append(leaves, leaf)
			}
			subnodes = append(subnodes, ndb.SubnodeEntry{NID: rowsNID, DataBID: b.AddDataTree(leaves...)})
			hnidRows = uint32(rowsNID)
		} else {
			var matrix []byte
			for _, r := range t.rows {
				matrix = append(matrix, t.encodeRow(ends, r)...)
			}
			hnidRows = uint32(t.heap.Add(matrix))
		}
	}

	info := make([]byte, 22+8*len(t.cols))
	info[0] = byte(ltp.SigTC)
	info[1] = byte(len(t.cols))
	for i, e := range ends {
		binary.LittleEndian.PutUint16(info[2+2*i:], e)
	}
	binary.LittleEndian.PutUint32(info[10:], uint32(rowIndex))
	binary.LittleEndian.PutUint32(info[14:], hnidRows)
	for i, c := range t.cols {
		off := 22 + 8*i
		binary.LittleEndian.PutUint32(info[off:], uint32(c.Tag))
		binary.LittleEndian.PutUint16(info[off+4:], c.Offset)
		info[off+6] = c.Size
		info[off+7] = c.Bit
	}
	t.heap.SetRoot(t.heap.Add(info))
	t.heap.Store(b, nid, subnodes...)
}
