// Package ndbtest builds small, byte exact containers in memory for tests.
package ndbtest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

type block struct {
	bid  ndb.BID
	data []byte
	leaf bool
}

// Builder accumulates blocks and nodes and lays them out on Build.
type Builder struct {
	format      ndb.Format
	crypt       ndb.CryptMethod
	compress    bool
	leafFanout  int
	indexFanout int
	entryPad    int
	nextIndex   uint64

	blocks []block
	nodes  []ndb.NodeEntry

	refs      map[ndb.BID]ndb.BREF
	nodeRoot  ndb.BREF
	blockRoot ndb.BREF
}

// New starts an empty container of format f.
func New(f ndb.Format) *Builder {
	return &Builder{format: f, nextIndex: 1, refs: make(map[ndb.BID]ndb.BREF)}
}

// Format returns the container variant being built.
func (b *Builder) Format() ndb.Format { return b.format }

// Crypt sets the header crypt method; leaf blocks are encrypted on Build.
func (b *Builder) Crypt(m ndb.CryptMethod) *Builder {
	b.crypt = m
	return b
}

// Compress zlib-compresses leaf blocks of a Unicode4K container.
func (b *Builder) Compress() *Builder {
	b.compress = true
	return b
}

// Fanout caps the entries per leaf and per intermediate page so that small
// trees still get several levels.
func (b *Builder) Fanout(leaf, index int) *Builder {
	b.leafFanout, b.indexFanout = leaf, index
	return b
}

// EntryPadding widens cbEnt beyond the natural record size.
func (b *Builder) EntryPadding(n int) *Builder {
	b.entryPad = n
	return b
}

// NewBID allocates the next block id.
func (b *Builder) NewBID(internal bool) ndb.BID {
	bid := ndb.MakeBID(b.nextIndex, internal)
	b.nextIndex++
	return bid
}

// AddBlock stores a leaf data block and returns its BID.
func (b *Builder) AddBlock(data []byte) ndb.BID {
	bid := b.NewBID(false)
	b.blocks = append(b.blocks, block{bid: bid, data: data, leaf: true})
	return bid
}

// AddBlockAt stores a block under a caller chosen BID. Blocks with the
// internal bit are stored as is, others are encrypted like AddBlock.
func (b *Builder) AddBlockAt(bid ndb.BID, data []byte) {
	b.blocks = append(b.blocks, block{bid: bid, data: data, leaf: !bid.Internal()})
}

// AddInternalBlock stores raw NDB metadata under a fresh internal BID.
func (b *Builder) AddInternalBlock(data []byte) ndb.BID {
	bid := b.NewBID(true)
	b.blocks = append(b.blocks, block{bid: bid, data: data})
	return bid
}

// AddDataTree stores each leaf as its own block and, for more than one leaf,
// an XBLOCK over them.
func (b *Builder) AddDataTree(leaves ...[]byte) ndb.BID {
	if len(leaves) == 1 {
		return b.AddBlock(leaves[0])
	}
	var (
		bids  []ndb.BID
		total int
	)
	for _, l := range leaves {
		bids = append(bids, b.AddBlock(l))
		total += len(l)
	}
	return b.AddXBlock(1, uint32(total), bids)
}

// AddXBlock stores an XBLOCK (level 1) or XXBLOCK (level 2) over bids.
func (b *Builder) AddXBlock(level uint8, total uint32, bids []ndb.BID) ndb.BID {
	w := b.format.IDSize()
	buf := make([]byte, 8+len(bids)*w)
	buf[0] = 0x01
	buf[1] = level
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(bids)))
	binary.LittleEndian.PutUint32(buf[4:], total)
	for i, bid := range bids {
		b.putID(buf, 8+i*w, uint64(bid))
	}
	return b.AddInternalBlock(buf)
}

// AddSubnodes stores an SLBLOCK.
func (b *Builder) AddSubnodes(entries ...ndb.SubnodeEntry) ndb.BID {
	sort.Slice(entries, func(i, j int) bool { return entries[i].NID < entries[j].NID })
	w := b.format.IDSize()
	hdr := b.format.Layout().SubnodeHdr
	buf := make([]byte, hdr+len(entries)*3*w)
	buf[0] = 0x02
	buf[1] = 0
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(entries)))
	for i, e := range entries {
		off := hdr + i*3*w
		b.putID(buf, off, uint64(e.NID))
		b.putID(buf, off+w, uint64(e.DataBID))
		b.putID(buf, off+2*w, uint64(e.SubnodeBID))
	}
	return b.AddInternalBlock(buf)
}

// AddSubnodeIndex stores an SIBLOCK whose entries point at child subnode
// blocks.
func (b *Builder) AddSubnodeIndex(keys []ndb.NID, children []ndb.BID) ndb.BID {
	w := b.format.IDSize()
	hdr := b.format.Layout().SubnodeHdr
	buf := make([]byte, hdr+len(keys)*2*w)
	buf[0] = 0x02
	buf[1] = 1
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(keys)))
	for i := range keys {
		off := hdr + i*2*w
		b.putID(buf, off, uint64(keys[i]))
		b.putID(buf, off+w, uint64(children[i]))
	}
	return b.AddInternalBlock(buf)
}

// AddNode registers a node B-tree leaf.
func (b *Builder) AddNode(e ndb.NodeEntry) {
	b.nodes = append(b.nodes, e)
}

// BlockRef returns where Build placed bid.
func (b *Builder) BlockRef(bid ndb.BID) ndb.BREF {
	return b.refs[bid.Masked()]
}

// NodeRoot returns the node B-tree root written by Build.
func (b *Builder) NodeRoot() ndb.BREF { return b.nodeRoot }

// BlockRoot returns the block B-tree root written by Build.
func (b *Builder) BlockRoot() ndb.BREF { return b.blockRoot }

// Open builds the container and opens it.
func (b *Builder) Open(t testing.TB) *ndb.DB {
	t.Helper()
	db, err := ndb.New(bytes.NewReader(b.Build()), zaptest.NewLogger(t))
	require.NoError(t, err)
	return db
}

func (b *Builder) putID(buf []byte, off int, v uint64) {
	if b.format == ndb.FormatANSI {
		binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(buf[off:], v)
}

type leafKV struct {
	key uint64
	raw []byte
}

// Build lays out header, blocks and both B-trees and returns the file bytes.
func (b *Builder) Build() []byte {
	f := b.format
	ps := f.PageSize()
	out := make([]byte, 2*ps)
	if len(out) < 1024 {
		out = make([]byte, 1024)
	}

	var bbt []leafKV
	for _, blk := range b.blocks {
		stored := append([]byte(nil), blk.data...)
		inflated := len(stored)
		if blk.leaf {
			if b.compress && f == ndb.FormatUnicode4K {
				var z bytes.Buffer
				zw := zlib.NewWriter(&z)
				_, _ = zw.Write(stored)
				_ = zw.Close()
				if z.Len() != len(stored) {
					stored = z.Bytes()
				}
			}
			ndb.Encrypt(b.crypt, uint32(blk.bid), stored)
		}

		ib := ndb.IB(len(out))
		alloc := f.BlockAllocSize(len(stored))
		buf := make([]byte, alloc)
		copy(buf, stored)
		t := buf[alloc-f.BlockTrailerSize():]
		binary.LittleEndian.PutUint16(t[0:], uint16(len(stored)))
		binary.LittleEndian.PutUint16(t[2:], ndb.ComputeSig(ib, blk.bid))
		if f == ndb.FormatANSI {
			b.putID(t, 4, uint64(blk.bid))
		} else {
			b.putID(t, 8, uint64(blk.bid))
		}
		out = append(out, buf...)
		b.refs[blk.bid.Masked()] = ndb.BREF{BID: blk.bid, IB: ib}

		e := make([]byte, f.Layout().BlockEntry)
		b.putID(e, 0, uint64(blk.bid))
		b.putID(e, f.IDSize(), uint64(ib))
		off := f.BREFSize()
		binary.LittleEndian.PutUint16(e[off:], uint16(len(stored)))
		if f == ndb.FormatUnicode4K {
			binary.LittleEndian.PutUint16(e[off+2:], uint16(inflated))
			binary.LittleEndian.PutUint32(e[off+4:], 1)
		} else {
			binary.LittleEndian.PutUint16(e[off+2:], 1)
		}
		bbt = append(bbt, leafKV{key: uint64(blk.bid.Masked()), raw: e})
	}

	var nbt []leafKV
	for _, n := range b.nodes {
		e := make([]byte, f.Layout().NodeEntry)
		w := f.IDSize()
		b.putID(e, 0, uint64(n.NID))
		b.putID(e, w, uint64(n.DataBID))
		b.putID(e, 2*w, uint64(n.SubnodeBID))
		binary.LittleEndian.PutUint32(e[3*w:], uint32(n.ParentNID))
		nbt = append(nbt, leafKV{key: uint64(n.NID), raw: e})
	}

	pad := (ps - len(out)%ps) % ps
	out = append(out, make([]byte, pad)...)
	out, b.blockRoot = b.writeTree(out, ndb.PageBBT, bbt)
	out, b.nodeRoot = b.writeTree(out, ndb.PageNBT, nbt)

	b.writeHeader(out, ndb.IB(len(out)))
	return out
}

func (b *Builder) writeTree(out []byte, kind ndb.PageType, leaves []leafKV) ([]byte, ndb.BREF) {
	f := b.format
	l := f.Layout()
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].key < leaves[j].key })

	level := uint8(0)
	natural := l.NodeEntry
	if kind == ndb.PageBBT {
		natural = l.BlockEntry
	}
	fanout := b.leafFanout
	for {
		cbEnt := natural + b.entryPad
		max := l.EntriesSize / cbEnt
		if fanout <= 0 || fanout > max {
			fanout = max
		}

		var parents []leafKV
		for start := 0; start < len(leaves) || start == 0; start += fanout {
			end := start + fanout
			if end > len(leaves) {
				end = len(leaves)
			}
			chunk := leaves[start:end]

			ib := ndb.IB(len(out))
			bid := b.NewBID(false)
			page := make([]byte, f.PageSize())
			for i, kv := range chunk {
				copy(page[i*cbEnt:], kv.raw)
			}
			if l.CountWidth == 2 {
				binary.LittleEndian.PutUint16(page[l.CEntOff:], uint16(len(chunk)))
				binary.LittleEndian.PutUint16(page[l.CEntMaxOff:], uint16(max))
			} else {
				page[l.CEntOff] = byte(len(chunk))
				page[l.CEntMaxOff] = byte(max)
			}
			page[l.CbEntOff] = byte(cbEnt)
			page[l.CLevelOff] = level

			t := page[l.TrailerOff:]
			t[0], t[1] = byte(kind), byte(kind)
			binary.LittleEndian.PutUint16(t[2:], ndb.ComputeSig(ib, bid))
			if f == ndb.FormatANSI {
				b.putID(t, 4, uint64(bid))
			} else {
				b.putID(t, 8, uint64(bid))
			}
			out = append(out, page...)

			var key uint64
			if len(chunk) > 0 {
				key = chunk[0].key
			}
			e := make([]byte, l.IndexEntry)
			b.putID(e, 0, key)
			b.putID(e, f.IDSize(), uint64(bid))
			b.putID(e, 2*f.IDSize(), uint64(ib))
			parents = append(parents, leafKV{key: key, raw: e})
			if end == len(leaves) {
				break
			}
		}

		if len(parents) == 1 {
			bid, _ := ndb.ReadBID(f, parents[0].raw, f.IDSize())
			ib, _ := ndb.ReadIB(f, parents[0].raw, 2*f.IDSize())
			return out, ndb.BREF{BID: bid, IB: ib}
		}
		leaves = parents
		level++
		natural = l.IndexEntry
		fanout = b.indexFanout
	}
}

func (b *Builder) writeHeader(out []byte, eof ndb.IB) {
	f := b.format
	binary.LittleEndian.PutUint32(out[0:], 0x4E444221)
	binary.LittleEndian.PutUint16(out[8:], 0x4D53)
	switch f {
	case ndb.FormatANSI:
		binary.LittleEndian.PutUint16(out[10:], 14)
	case ndb.FormatUnicode:
		binary.LittleEndian.PutUint16(out[10:], 23)
	case ndb.FormatUnicode4K:
		binary.LittleEndian.PutUint16(out[10:], 36)
	}
	binary.LittleEndian.PutUint16(out[12:], 19)
	out[14], out[15] = 1, 1

	next := uint64(ndb.MakeBID(b.nextIndex, false))
	if f == ndb.FormatANSI {
		b.putID(out, 24, next)
		b.putID(out, 28, next)
		b.putID(out, 168, uint64(eof))
		b.putID(out, 184, uint64(b.nodeRoot.BID))
		b.putID(out, 188, uint64(b.nodeRoot.IB))
		b.putID(out, 192, uint64(b.blockRoot.BID))
		b.putID(out, 196, uint64(b.blockRoot.IB))
		out[200] = 2
		out[460] = 0x80
		out[461] = byte(b.crypt)
		return
	}
	b.putID(out, 32, next)
	b.putID(out, 184, uint64(eof))
	b.putID(out, 216, uint64(b.nodeRoot.BID))
	b.putID(out, 224, uint64(b.nodeRoot.IB))
	b.putID(out, 232, uint64(b.blockRoot.BID))
	b.putID(out, 240, uint64(b.blockRoot.IB))
	out[248] = 2
	out[512] = 0x80
	out[513] = byte(b.crypt)
	b.putID(out, 516, next)
}
