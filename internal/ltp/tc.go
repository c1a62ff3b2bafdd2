package ltp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

const (
	tcInfoSize    = 22
	tcColDescSize = 8
	tcRowIDSize   = 4

	// indexes into TCINFO.rgib: ends of the 4/8-byte, 2-byte and 1-byte
	// column groups and of the existence bitmap.
	tci4b = 0
	tci2b = 1
	tci1b = 2
	tcibm = 3
)

// Column is a TCOLDESC.
type Column struct {
	Tag    PropTag
	Offset uint16
	Size   uint8
	Bit    uint8
}

// RowRef is an entry of the row index: row id and physical row position.
type RowRef struct {
	ID    uint32
	Index uint32
}

// Row is a decoded table row. Absent cells have no entry in Values.
type Row struct {
	ID     uint32
	Index  uint32
	Values map[PropID]Value
}

// TableContext is a row/column table. The row matrix is read on the first
// row access, so listing row ids stays cheap.
type TableContext struct {
	heap     *Heap
	opts     Options
	cols     []Column
	groups   [4]uint16
	rowWidth int
	cebSize  int
	rows     []RowRef
	hnidRows ndb.HNID

	matrixOnce   sync.Once
	matrix       [][]byte
	matrixErr    error
	rowsPerBlock int
}

// OpenTableContext parses the TCINFO and row index of a heap with the TC
// signature.
func OpenTableContext(h *Heap, opts Options) (*TableContext, error) {
	const msg = "OpenTableContext:"
	if h.ClientSig() != SigTC {
		return nil, fmt.Errorf("%s heap hosts %s: %w", msg, h.ClientSig(), ErrWrongContext)
	}
	b, err := h.GetBytes(h.Root())
	if err != nil {
		return nil, fmt.Errorf("%s %w", msg, err)
	}
	if len(b) < tcInfoSize {
		return nil, structuralf("%s tcinfo of %d bytes", msg, len(b))
	}
	if ClientSig(b[0]) != SigTC {
		return nil, structuralf("%s tcinfo type 0x%02x", msg, b[0])
	}
	cCols := int(b[1])
	if len(b) < tcInfoSize+cCols*tcColDescSize {
		return nil, structuralf("%s %d columns in %d bytes", msg, cCols, len(b))
	}

	tc := &TableContext{heap: h, opts: opts, cebSize: (cCols + 7) / 8}
	for i := range tc.groups {
		tc.groups[i] = binary.LittleEndian.Uint16(b[2+2*i:])
		if i > 0 && tc.groups[i] < tc.groups[i-1] {
			return nil, structuralf("%s column group ends decrease: %v", msg, tc.groups)
		}
	}
	tc.rowWidth = int(tc.groups[tcibm])
	if int(tc.groups[tcibm]-tc.groups[tci1b]) < tc.cebSize {
		return nil, structuralf("%s existence bitmap of %d bytes for %d columns", msg, tc.groups[tcibm]-tc.groups[tci1b], cCols)
	}

	tc.cols = make([]Column, cCols)
	for i := range tc.cols {
		off := tcInfoSize + i*tcColDescSize
		c := Column{
			Tag:    PropTag(binary.LittleEndian.Uint32(b[off:])),
			Offset: binary.LittleEndian.Uint16(b[off+4:]),
			Size:   b[off+6],
			Bit:    b[off+7],
		}
		if int(c.Offset)+int(c.Size) > int(tc.groups[tci1b]) {
			return nil, structuralf("%s column %s at %d+%d past the data area", msg, c.Tag, c.Offset, c.Size)
		}
		if int(c.Bit) >= tc.cebSize*8 {
			return nil, structuralf("%s column %s existence bit %d", msg, c.Tag, c.Bit)
		}
		tc.cols[i] = c
	}

	rowIndex, err := ndb.ReadHID(b, 10)
	if err != nil {
		return nil, fmt.Errorf("%s %w", msg, err)
	}
	if tc.hnidRows, err = ndb.ReadHNID(b, 14); err != nil {
		return nil, fmt.Errorf("%s %w", msg, err)
	}
	if rowIndex != 0 {
		if tc.rows, err = readRowIndex(h, rowIndex); err != nil {
			return nil, fmt.Errorf("%s %w", msg, err)
		}
	}
	return tc, nil
}

func readRowIndex(h *Heap, hid ndb.HID) ([]RowRef, error) {
	bth, err := OpenBTH(h, hid)
	if err != nil {
		return nil, err
	}
	want := 4
	if h.Format() == ndb.FormatANSI {
		want = 2
	}
	if hdr := bth.Header(); hdr.KeySize != tcRowIDSize || int(hdr.EntrySize) != want {
		return nil, structuralf("row index records of %d+%d bytes", hdr.KeySize, hdr.EntrySize)
	}
	rows, err := Collect(bth, func(r Record) (RowRef, error) {
		ref := RowRef{ID: binary.LittleEndian.Uint32(r.Key)}
		if want == 2 {
			ref.Index = uint32(binary.LittleEndian.Uint16(r.Data))
		} else {
			ref.Index = binary.LittleEndian.Uint32(r.Data)
		}
		return ref, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return rows, nil
}

// ReadTableContext opens the table context of node nid.
func ReadTableContext(db *ndb.DB, nid ndb.NID, opts Options) (*TableContext, error) {
	h, err := OpenHeap(db, nid)
	if err != nil {
		return nil, err
	}
	return OpenTableContext(h, opts)
}

// Heap returns the underlying heap.
func (tc *TableContext) Heap() *Heap { return tc.heap }

// Columns returns the column descriptors in stored order.
func (tc *TableContext) Columns() []Column { return tc.cols }

// RowWidth is the size of one row including the existence bitmap.
func (tc *TableContext) RowWidth() int { return tc.rowWidth }

// Len returns the number of rows.
func (tc *TableContext) Len() int { return len(tc.rows) }

// RowRefs returns the row index in row order.
func (tc *TableContext) RowRefs() []RowRef { return tc.rows }

// RowIDs returns the row ids in row order without reading any row data.
func (tc *TableContext) RowIDs() []uint32 {
	ids := make([]uint32, len(tc.rows))
	for i, r := range tc.rows {
		ids[i] = r.ID
	}
	return ids
}

// Row decodes the i-th row in row order.
func (tc *TableContext) Row(i int) (*Row, error) {
	if i < 0 || i >= len(tc.rows) {
		return nil, fmt.Errorf("row %d of %d: %w", i, len(tc.rows), ndb.ErrNotFound)
	}
	return tc.decodeRow(tc.rows[i])
}

// FindRow decodes the row with id. A missing row is reported with
// ok == false and a nil error.
func (tc *TableContext) FindRow(id uint32) (*Row, bool, error) {
	for _, r := range tc.rows {
		if r.ID == id {
			row, err := tc.decodeRow(r)
			return row, true, err
		}
	}
	return nil, false, nil
}

// Rows decodes every row. Without Options.Lenient the first failure is
// returned. In lenient mode rows keep the cells that decoded, rows that
// cannot be located are skipped, and the error joins every failure.
func (tc *TableContext) Rows() ([]*Row, error) {
	out := make([]*Row, 0, len(tc.rows))
	var errs []error
	for _, r := range tc.rows {
		row, err := tc.decodeRow(r)
		if err != nil {
			if !tc.opts.Lenient {
				return nil, err
			}
			errs = append(errs, err)
		}
		if row != nil {
			out = append(out, row)
		}
	}
	return out, errors.Join(errs...)
}

func (tc *TableContext) loadMatrix() {
	switch {
	case tc.hnidRows == 0:
	case tc.hnidRows.IsHID():
		b, err := tc.heap.GetBytes(tc.hnidRows.HID())
		if err != nil {
			tc.matrixErr = err
			return
		}
		tc.matrix = [][]byte{b}
	default:
		blocks, err := tc.heap.blocksForNID(tc.hnidRows.NID())
		if err != nil {
			tc.matrixErr = err
			return
		}
		tc.matrix = blocks
		if tc.rowWidth > 0 {
			tc.rowsPerBlock = tc.heap.Format().MaxBlockData() / tc.rowWidth
		}
	}
}

// rowBytes locates the row at physical index idx.
func (tc *TableContext) rowBytes(idx uint32) ([]byte, error) {
	tc.matrixOnce.Do(tc.loadMatrix)
	if tc.matrixErr != nil {
		return nil, tc.matrixErr
	}
	if tc.rowWidth == 0 {
		return nil, structuralf("rows of zero width")
	}
	block, off := 0, int(idx)*tc.rowWidth
	if tc.rowsPerBlock > 0 {
		block = int(idx) / tc.rowsPerBlock
		off = int(idx) % tc.rowsPerBlock * tc.rowWidth
	}
	if block >= len(tc.matrix) {
		return nil, structuralf("row %d is in block %d of %d", idx, block, len(tc.matrix))
	}
	b := tc.matrix[block]
	if off+tc.rowWidth > len(b) {
		return nil, structuralf("row %d at %d+%d past block end %d", idx, off, tc.rowWidth, len(b))
	}
	return b[off : off+tc.rowWidth], nil
}

func (tc *TableContext) decodeRow(ref RowRef) (*Row, error) {
	b, err := tc.rowBytes(ref.Index)
	if err != nil {
		return nil, &RowError{RowID: ref.ID, Err: err}
	}
	ceb := b[tc.groups[tci1b]:]
	row := &Row{ID: ref.ID, Index: ref.Index, Values: make(map[PropID]Value, len(tc.cols))}
	var errs []error
	for _, c := range tc.cols {
		if ceb[c.Bit/8]&(1<<(7-c.Bit%8)) == 0 {
			continue
		}
		v, err := tc.decodeCell(c, b[c.Offset:int(c.Offset)+int(c.Size)])
		if err != nil {
			err = &PropertyError{ID: c.Tag.ID(), Err: err}
			if !tc.opts.Lenient {
				return nil, &RowError{RowID: ref.ID, Err: err}
			}
			errs = append(errs, err)
			continue
		}
		row.Values[c.Tag.ID()] = v
	}
	if len(errs) > 0 {
		return row, &RowError{RowID: ref.ID, Err: errors.Join(errs...)}
	}
	return row, nil
}

func (tc *TableContext) decodeCell(c Column, cell []byte) (Value, error) {
	t := c.Tag.Type()
	if !t.Supported() {
		return nil, &UnsupportedTypeError{Type: t}
	}
	if want := t.cellSize(); int(c.Size) != want {
		return nil, &InvalidPropertySizeError{Type: t, Expected: want, Actual: int(c.Size)}
	}
	if t == PtypObject {
		return ObjectRef{NID: ndb.NID(binary.LittleEndian.Uint32(cell))}, nil
	}
	if n := t.FixedSize(); n > 0 && n <= 8 {
		return decodeFixed(t, cell)
	}
	b, err := tc.heap.BytesForHNID(ndb.HNID(binary.LittleEndian.Uint32(cell)))
	if err != nil {
		return nil, err
	}
	if t.FixedSize() > 0 {
		return decodeFixed(t, b)
	}
	return tc.opts.decodeVariable(t, b)
}
