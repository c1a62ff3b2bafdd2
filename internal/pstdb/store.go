// Package pstdb is the read side of a mail-store container: node and block
// access, property contexts and tables, cached per node.
package pstdb

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/encoding"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

var (
	ErrClosed = errors.New("store closed")
)

// Options configure a Store.
type Options struct {
	// Lenient skips properties and cells that fail to decode; the failures
	// are logged instead of returned.
	Lenient bool
	// MMap maps the container file into memory.
	MMap bool
	// String8 decodes 8-bit strings; Windows-1252 when nil.
	String8 encoding.Encoding
}

// LTP returns the value decoding options.
func (o Options) LTP() ltp.Options {
	return ltp.Options{Lenient: o.Lenient, String8: o.String8}
}

// Store wraps an open container. Decoded contexts are cached per node and
// shared; a Store is safe for concurrent use.
type Store struct {
	db   *ndb.DB
	opts Options

	pcs   sync.Map // ndb.NID -> *ltp.PropertyContext
	pcSFG singleflight.Group
	tcs   sync.Map // ndb.NID -> *ltp.TableContext
	tcSFG singleflight.Group

	mu     sync.RWMutex
	closed bool

	sugar *zap.SugaredLogger
}

// Open opens the container at path.
func Open(path string, opts Options, logger *zap.Logger) (*Store, error) {
	const msg = "Open:"
	db, err := ndb.Open(path, ndb.Options{MMap: opts.MMap}, logger)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", msg, path, err)
	}
	return New(db, opts, logger), nil
}

// New wraps an open DB. Close closes db.
func New(db *ndb.DB, opts Options, logger *zap.Logger) *Store {
	return &Store{
		db:    db,
		opts:  opts,
		sugar: logger.Sugar(),
	}
}

// Close closes the underlying container. Cached contexts stay readable only
// for values already decoded.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// DB returns the node database.
func (s *Store) DB() *ndb.DB { return s.db }

// Options returns the options the store was opened with.
func (s *Store) Options() Options { return s.opts }

// LookupNode returns the node-tree entry of nid; a miss is ndb.ErrNotFound.
func (s *Store) LookupNode(nid ndb.NID) (ndb.NodeEntry, error) {
	if err := s.check(); err != nil {
		return ndb.NodeEntry{}, err
	}
	return s.db.Node(nid)
}

// ReadBlocks reads the data tree rooted at bid.
func (s *Store) ReadBlocks(bid ndb.BID) (*ndb.DataTree, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.db.ReadBlocks(bid)
}

// ReadSubnodeTree reads the subnode tree rooted at bid; nil for bid 0.
func (s *Store) ReadSubnodeTree(bid ndb.BID) (*ndb.SubnodeTree, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.db.ReadSubnodeTree(bid)
}

// PropertyContext opens, or returns the cached, property context of nid.
func (s *Store) PropertyContext(nid ndb.NID) (*ltp.PropertyContext, error) {
	if v, ok := s.pcs.Load(nid); ok {
		return v.(*ltp.PropertyContext), nil
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	v, err, _ := s.pcSFG.Do(strconv.FormatUint(uint64(nid), 16), func() (any, error) {
		if v, ok := s.pcs.Load(nid); ok {
			return v, nil
		}
		pc, err := ltp.ReadPropertyContext(s.db, nid, s.opts.LTP())
		if err != nil {
			return nil, err
		}
		s.pcs.Store(nid, pc)
		s.sugar.Debugw("property context opened", "nid", nid, "properties", pc.Len())
		return pc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ltp.PropertyContext), nil
}

// TableContext opens, or returns the cached, table context of nid.
func (s *Store) TableContext(nid ndb.NID) (*ltp.TableContext, error) {
	if v, ok := s.tcs.Load(nid); ok {
		return v.(*ltp.TableContext), nil
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	v, err, _ := s.tcSFG.Do(strconv.FormatUint(uint64(nid), 16), func() (any, error) {
		if v, ok := s.tcs.Load(nid); ok {
			return v, nil
		}
		tc, err := ltp.ReadTableContext(s.db, nid, s.opts.LTP())
		if err != nil {
			return nil, err
		}
		s.tcs.Store(nid, tc)
		s.sugar.Debugw("table context opened", "nid", nid, "rows", tc.Len(), "columns", len(tc.Columns()))
		return tc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ltp.TableContext), nil
}

// ReadPropertyContext decodes every property of node nid.
func (s *Store) ReadPropertyContext(nid ndb.NID) (map[ltp.PropID]ltp.Value, error) {
	const msg = "ReadPropertyContext:"
	pc, err := s.PropertyContext(nid)
	if err != nil {
		return nil, fmt.Errorf("%s node %s: %w", msg, nid, err)
	}
	props, err := pc.All()
	if err != nil {
		if !s.opts.Lenient {
			return nil, fmt.Errorf("%s node %s: %w", msg, nid, err)
		}
		s.sugar.Warnw("properties skipped", "nid", nid, "decoded", len(props), "error", err)
	}
	return props, nil
}

// ReadTable decodes every row of table node nid.
func (s *Store) ReadTable(nid ndb.NID) ([]*ltp.Row, error) {
	const msg = "ReadTable:"
	tc, err := s.TableContext(nid)
	if err != nil {
		return nil, fmt.Errorf("%s node %s: %w", msg, nid, err)
	}
	rows, err := tc.Rows()
	if err != nil {
		if !s.opts.Lenient {
			return nil, fmt.Errorf("%s node %s: %w", msg, nid, err)
		}
		s.sugar.Warnw("table cells skipped", "nid", nid, "rows", len(rows), "error", err)
	}
	return rows, nil
}

// ReadTableRowIDs lists the row ids of table node nid in row order without
// decoding any row.
func (s *Store) ReadTableRowIDs(nid ndb.NID) ([]uint32, error) {
	const msg = "ReadTableRowIDs:"
	tc, err := s.TableContext(nid)
	if err != nil {
		return nil, fmt.Errorf("%s node %s: %w", msg, nid, err)
	}
	return tc.RowIDs(), nil
}

// MessageStore decodes the message store properties.
func (s *Store) MessageStore() (map[ltp.PropID]ltp.Value, error) {
	return s.ReadPropertyContext(ndb.NIDMessageStore)
}

// NameToIDMap decodes the properties of the named-property map node.
func (s *Store) NameToIDMap() (map[ltp.PropID]ltp.Value, error) {
	return s.ReadPropertyContext(ndb.NIDNameToIDMap)
}

// Subfolders lists the folder NIDs under folder, read from its hierarchy
// table row ids.
func (s *Store) Subfolders(folder ndb.NID) ([]ndb.NID, error) {
	ids, err := s.ReadTableRowIDs(folder.WithType(ndb.NIDTypeHierarchyTable))
	if err != nil {
		return nil, err
	}
	out := make([]ndb.NID, len(ids))
	for i, id := range ids {
		out[i] = ndb.NID(id)
	}
	return out, nil
}
