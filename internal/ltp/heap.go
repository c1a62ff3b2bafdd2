// Package ltp decodes the structures layered on top of a node's data: the
// heap, the B-tree on heap, property contexts and table contexts.
package ltp

import (
	"encoding/binary"
	"fmt"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

// ClientSig is the bClientSig byte of a heap: which structure it hosts.
type ClientSig uint8

const (
	SigTC  ClientSig = 0x7C
	SigBTH ClientSig = 0xB5
	SigPC  ClientSig = 0xBC
)

func (s ClientSig) String() string {
	switch s {
	case SigTC:
		return "tc"
	case SigBTH:
		return "bth"
	case SigPC:
		return "pc"
	}
	return fmt.Sprintf("sig(0x%02x)", uint8(s))
}

const (
	heapSig = 0xEC

	heapFirstHeader  = 12 // ibHnpm, bSig, bClientSig, hidUserRoot, rgbFillLevel
	heapBitmapHeader = 66 // ibHnpm, rgbFillLevel[64]
	heapPageHeader   = 2  // ibHnpm
)

// SubnodeReader resolves subnodes to their data; *ndb.DB implements it.
type SubnodeReader interface {
	ReadSubnodeBlock(tree *ndb.SubnodeTree, nid ndb.NID) ([]byte, error)
	ReadSubnodeBlocks(tree *ndb.SubnodeTree, nid ndb.NID) (*ndb.DataTree, error)
}

type heapBlock struct {
	data  []byte
	alloc []uint16 // cAlloc+1 offsets
}

// Heap is a Heap-on-Node: a node's data blocks viewed as an item allocator.
type Heap struct {
	format ndb.Format
	blocks []heapBlock
	sig    ClientSig
	root   ndb.HID

	src ndb.NID
	sub *ndb.SubnodeTree
	snr SubnodeReader
}

// heapHeaderSize returns the header length of block i: block 0 has the full
// header, blocks 8, 136, 264, ... the bitmap header, others the page header.
func heapHeaderSize(i int) int {
	switch {
	case i == 0:
		return heapFirstHeader
	case i == 8 || (i > 8 && (i-8)%128 == 0):
		return heapBitmapHeader
	}
	return heapPageHeader
}

// NewHeap parses the heap spread over blocks. sub and snr resolve HNIDs
// that name subnodes; both may be nil when the heap has none.
func NewHeap(f ndb.Format, blocks [][]byte, sub *ndb.SubnodeTree, snr SubnodeReader) (*Heap, error) {
	const msg = "NewHeap:"
	if len(blocks) == 0 {
		return nil, structuralf("%s no blocks", msg)
	}
	h := &Heap{
		format: f,
		blocks: make([]heapBlock, len(blocks)),
		sub:    sub,
		snr:    snr,
	}
	for i, b := range blocks {
		hdr := heapHeaderSize(i)
		if len(b) < hdr {
			return nil, structuralf("%s block %d of %d bytes has no header", msg, i, len(b))
		}
		if i == 0 {
			if b[2] != heapSig {
				return nil, structuralf("%s bad heap signature 0x%02x", msg, b[2])
			}
			h.sig = ClientSig(b[3])
			h.root = ndb.HID(binary.LittleEndian.Uint32(b[4:]))
		}
		alloc, err := parsePageMap(b, hdr)
		if err != nil {
			return nil, fmt.Errorf("%s block %d: %w", msg, i, err)
		}
		h.blocks[i] = heapBlock{data: b, alloc: alloc}
	}
	return h, nil
}

// parsePageMap reads the HNPAGEMAP pointed at by ibHnpm.
func parsePageMap(b []byte, hdr int) ([]uint16, error) {
	ib := int(binary.LittleEndian.Uint16(b))
	if ib < hdr || ib+4 > len(b) {
		return nil, structuralf("page map offset %d outside %d..%d", ib, hdr, len(b)-4)
	}
	cAlloc := int(binary.LittleEndian.Uint16(b[ib:]))
	start := ib + 4
	if start+2*(cAlloc+1) > len(b) {
		return nil, structuralf("page map with %d items overruns the block", cAlloc)
	}
	alloc := make([]uint16, cAlloc+1)
	for i := range alloc {
		alloc[i] = binary.LittleEndian.Uint16(b[start+2*i:])
		if int(alloc[i]) > ib {
			return nil, structuralf("item offset %d past the page map at %d", alloc[i], ib)
		}
		if i > 0 && alloc[i] < alloc[i-1] {
			return nil, structuralf("item offsets decrease at %d", i)
		}
	}
	return alloc, nil
}

// OpenHeap reads the heap of node nid.
func OpenHeap(db *ndb.DB, nid ndb.NID) (*Heap, error) {
	node, err := db.Node(nid)
	if err != nil {
		return nil, err
	}
	if node.DataBID == 0 {
		return nil, structuralf("node %s has no data", nid)
	}
	dt, err := db.ReadBlocks(node.DataBID)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", nid, err)
	}
	sub, err := db.ReadSubnodeTree(node.SubnodeBID)
	if err != nil {
		return nil, fmt.Errorf("node %s subnodes: %w", nid, err)
	}
	h, err := NewHeap(db.Format(), dt.Blocks, sub, db)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", nid, err)
	}
	h.src = nid
	return h, nil
}

// Format returns the container variant the heap was read from.
func (h *Heap) Format() ndb.Format { return h.format }

// ClientSig returns the structure the heap hosts.
func (h *Heap) ClientSig() ClientSig { return h.sig }

// Root returns hidUserRoot.
func (h *Heap) Root() ndb.HID { return h.root }

// NID is the node the heap was read from, zero for a detached heap.
func (h *Heap) NID() ndb.NID { return h.src }

// Subnodes returns the node's subnode tree.
func (h *Heap) Subnodes() *ndb.SubnodeTree { return h.sub }

// Blocks returns the number of heap blocks.
func (h *Heap) Blocks() int { return len(h.blocks) }

func (h *Heap) locate(hid ndb.HID) (heapBlock, int, error) {
	if hid.Type() != ndb.NIDTypeHID {
		return heapBlock{}, 0, structuralf("%s is not a heap id", hid)
	}
	bi := int(hid.BlockIndex())
	if bi >= len(h.blocks) {
		return heapBlock{}, 0, structuralf("%s: heap has %d blocks", hid, len(h.blocks))
	}
	b := h.blocks[bi]
	i := int(hid.Index())
	if i >= len(b.alloc) {
		return heapBlock{}, 0, structuralf("%s: block has %d items", hid, len(b.alloc)-1)
	}
	return b, i, nil
}

// GetSize returns the length of item hid. Index 0 names no item and has
// size 0.
func (h *Heap) GetSize(hid ndb.HID) (int, error) {
	if hid.Index() == 0 {
		return 0, nil
	}
	b, i, err := h.locate(hid)
	if err != nil {
		return 0, err
	}
	return int(b.alloc[i] - b.alloc[i-1]), nil
}

// GetBytes returns the bytes of item hid. The slice aliases the heap.
func (h *Heap) GetBytes(hid ndb.HID) ([]byte, error) {
	if hid.Index() == 0 {
		return nil, nil
	}
	b, i, err := h.locate(hid)
	if err != nil {
		return nil, err
	}
	return b.data[b.alloc[i-1]:b.alloc[i]], nil
}

// BytesForHNID returns the bytes an HNID points at: a heap item, or the
// concatenated data of a subnode. A zero HNID yields no bytes.
func (h *Heap) BytesForHNID(hnid ndb.HNID) ([]byte, error) {
	if hnid == 0 {
		return nil, nil
	}
	if hnid.IsHID() {
		return h.GetBytes(hnid.HID())
	}
	if !hnid.NID().Type().Known() {
		return nil, structuralf("hnid 0x%x has unknown type", uint32(hnid))
	}
	if h.snr == nil {
		return nil, fmt.Errorf("subnode %s: %w", hnid.NID(), ndb.ErrNotFound)
	}
	return h.snr.ReadSubnodeBlock(h.sub, hnid.NID())
}

// blocksForNID returns the data blocks of a subnode without concatenating
// them.
func (h *Heap) blocksForNID(nid ndb.NID) ([][]byte, error) {
	if h.snr == nil {
		return nil, fmt.Errorf("subnode %s: %w", nid, ndb.ErrNotFound)
	}
	dt, err := h.snr.ReadSubnodeBlocks(h.sub, nid)
	if err != nil {
		return nil, err
	}
	return dt.Blocks, nil
}
