package ndb

import (
	"encoding/binary"
	"fmt"
)

// SubnodeEntry is a leaf of a subnode tree. Subnodes are not globally
// addressable, so there is no parent.
type SubnodeEntry struct {
	NID        NID
	DataBID    BID
	SubnodeBID BID
}

// SubnodeTree is a node's private NID to block mapping: a leaf (SLBLOCK) or
// an intermediate level (SIBLOCK) with child trees.
type SubnodeTree struct {
	entries  []SubnodeEntry
	keys     []NID
	children []*SubnodeTree
}

// Lookup finds the subnode nid.
func (t *SubnodeTree) Lookup(nid NID) (SubnodeEntry, bool) {
	if t == nil {
		return SubnodeEntry{}, false
	}
	if t.children == nil {
		for _, e := range t.entries {
			if e.NID == nid {
				return e, true
			}
		}
		return SubnodeEntry{}, false
	}
	next := -1
	for i, k := range t.keys {
		if k > nid {
			break
		}
		next = i
	}
	if next < 0 {
		return SubnodeEntry{}, false
	}
	return t.children[next].Lookup(nid)
}

// Entries lists every subnode in key order.
func (t *SubnodeTree) Entries() []SubnodeEntry {
	if t == nil {
		return nil
	}
	if t.children == nil {
		return t.entries
	}
	var out []SubnodeEntry
	for _, c := range t.children {
		out = append(out, c.Entries()...)
	}
	return out
}

// ReadSubnodeTree parses the subnode tree rooted at bid. A zero bid means the
// node has no subnodes and yields a nil tree.
func (db *DB) ReadSubnodeTree(bid BID) (*SubnodeTree, error) {
	if bid == 0 {
		return nil, nil
	}
	return db.readSubnodeTree(bid, 0)
}

func (db *DB) readSubnodeTree(bid BID, depth int) (*SubnodeTree, error) {
	const msg = "readSubnodeTree:"
	if depth > maxBTreeLevel {
		return nil, structuralf("%s subnode tree deeper than %d levels", msg, maxBTreeLevel+1)
	}
	_, b, err := db.readRawBlock(bid)
	if err != nil {
		return nil, err
	}

	f := db.header.Format
	hdr := f.Layout().SubnodeHdr
	if len(b) < hdr {
		return nil, structuralf("%s block %s of %d bytes", msg, bid, len(b))
	}
	if b[0] != btypeSubnode {
		return nil, structuralf("%s block %s type 0x%02x", msg, bid, b[0])
	}
	level := b[1]
	cEnt := int(binary.LittleEndian.Uint16(b[2:]))
	w := f.IDSize()

	switch level {
	case 0:
		size := 3 * w
		if hdr+cEnt*size > len(b) {
			return nil, structuralf("%s block %s has %d entries in %d bytes", msg, bid, cEnt, len(b))
		}
		t := &SubnodeTree{entries: make([]SubnodeEntry, cEnt)}
		for i := range t.entries {
			off := hdr + i*size
			var e SubnodeEntry
			if e.NID, err = ReadNID(b, off); err != nil {
				return nil, err
			}
			if e.DataBID, err = ReadBID(f, b, off+w); err != nil {
				return nil, err
			}
			if e.SubnodeBID, err = ReadBID(f, b, off+2*w); err != nil {
				return nil, err
			}
			t.entries[i] = e
		}
		return t, nil
	case 1:
		size := 2 * w
		if hdr+cEnt*size > len(b) {
			return nil, structuralf("%s block %s has %d entries in %d bytes", msg, bid, cEnt, len(b))
		}
		t := &SubnodeTree{
			keys:     make([]NID, cEnt),
			children: make([]*SubnodeTree, cEnt),
		}
		for i := range t.keys {
			off := hdr + i*size
			if t.keys[i], err = ReadNID(b, off); err != nil {
				return nil, err
			}
			child, err := ReadBID(f, b, off+w)
			if err != nil {
				return nil, err
			}
			if t.children[i], err = db.readSubnodeTree(child, depth+1); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	return nil, structuralf("%s block %s has level %d", msg, bid, level)
}

func (db *DB) subnodeEntry(tree *SubnodeTree, nid NID) (SubnodeEntry, error) {
	e, ok := tree.Lookup(nid)
	if !ok {
		return e, fmt.Errorf("subnode %s: %w", nid, ErrNotFound)
	}
	if e.SubnodeBID != 0 {
		return e, fmt.Errorf("subnode %s has its own subnode tree: %w", nid, ErrUnsupported)
	}
	return e, nil
}

// ReadSubnodeBlock resolves a subnode through tree and returns its data
// concatenated. A subnode with a nested subnode tree is ErrUnsupported.
func (db *DB) ReadSubnodeBlock(tree *SubnodeTree, nid NID) ([]byte, error) {
	e, err := db.subnodeEntry(tree, nid)
	if err != nil {
		return nil, err
	}
	return db.ReadBlock(e.DataBID)
}

// ReadSubnodeBlocks is ReadSubnodeBlock without concatenation, for callers
// that address data by block.
func (db *DB) ReadSubnodeBlocks(tree *SubnodeTree, nid NID) (*DataTree, error) {
	e, err := db.subnodeEntry(tree, nid)
	if err != nil {
		return nil, err
	}
	return db.ReadBlocks(e.DataBID)
}
