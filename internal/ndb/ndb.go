package ndb

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Options control how a container file is opened.
type Options struct {
	// MMap maps the file into memory instead of issuing positional reads.
	MMap bool
}

// DB is an open container. The header and both B-tree roots are fixed at
// open; tree pages are read on demand and memoized.
type DB struct {
	header  *Header
	src     io.ReaderAt
	closer  io.Closer
	nodes   *Tree[NodeEntry]
	blocks  *Tree[BlockEntry]
	filters *FilterChain

	sugar *zap.SugaredLogger
}

// Open opens the container at path.
func Open(path string, opts Options, logger *zap.Logger) (*DB, error) {
	var (
		src Source
		err error
	)
	if opts.MMap {
		src, err = OpenMMap(path)
	} else {
		src, err = OpenFile(path)
	}
	if err != nil {
		return nil, err
	}
	db, err := New(src, logger)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	db.closer = src
	return db, nil
}

// New builds a DB over an already open source. Closing the DB does not close
// src.
func New(src io.ReaderAt, logger *zap.Logger) (*DB, error) {
	h, err := ReadHeader(src)
	if err != nil {
		return nil, err
	}
	db := &DB{
		header:  h,
		src:     src,
		nodes:   newTree(h.Format, src, nodeCodec, h.NodeRoot),
		blocks:  newTree(h.Format, src, blockCodec, h.BlockRoot),
		filters: NewFilterChain(h),
		sugar:   logger.Sugar(),
	}
	if h.CryptMethod == CryptEDP {
		db.sugar.Warnw("blocks are protected with an external key and are returned as stored", "crypt", h.CryptMethod)
	}
	db.sugar.Debugw("container opened",
		"format", h.Format,
		"version", h.Version,
		"crypt", h.CryptMethod,
		"nbt", h.NodeRoot,
		"bbt", h.BlockRoot,
	)
	return db, nil
}

// Close releases the source when the DB owns it.
func (db *DB) Close() error {
	if db.closer == nil {
		return nil
	}
	err := db.closer.Close()
	db.closer = nil
	return err
}

// Header returns the parsed header.
func (db *DB) Header() *Header { return db.header }

// Format returns the container variant.
func (db *DB) Format() Format { return db.header.Format }

// Filters exposes the leaf block filter chain so callers can attach their own.
func (db *DB) Filters() *FilterChain { return db.filters }

// LookupNode finds a node in the node B-tree.
func (db *DB) LookupNode(nid NID) (NodeEntry, bool, error) {
	e, ok, err := db.nodes.Lookup(uint64(nid))
	if err != nil {
		return e, false, fmt.Errorf("lookup node %s: %w", nid, err)
	}
	return e, ok, nil
}

// LookupBlock finds a block in the block B-tree, ignoring the reserved bit.
func (db *DB) LookupBlock(bid BID) (BlockEntry, bool, error) {
	e, ok, err := db.blocks.Lookup(uint64(bid.Masked()))
	if err != nil {
		return e, false, fmt.Errorf("lookup block %s: %w", bid, err)
	}
	return e, ok, nil
}

// Node is LookupNode with a miss reported as ErrNotFound.
func (db *DB) Node(nid NID) (NodeEntry, error) {
	e, ok, err := db.LookupNode(nid)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, fmt.Errorf("node %s: %w", nid, ErrNotFound)
	}
	return e, nil
}

// WalkNodes visits every node B-tree leaf in NID order.
func (db *DB) WalkNodes(fn func(NodeEntry) error) error {
	return db.nodes.Walk(fn)
}

// WalkBlocks visits every block B-tree leaf in BID order.
func (db *DB) WalkBlocks(fn func(BlockEntry) error) error {
	return db.blocks.Walk(fn)
}
