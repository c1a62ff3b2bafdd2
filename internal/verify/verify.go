// Package verify scans a whole container and reports the nodes whose heap,
// property context or table context does not decode.
package verify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
)

var ErrNotInitialized = errors.New("not initialized")

type Kind uint8

const (
	KindStructural Kind = iota + 1
	KindUnsupported
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindUnsupported:
		return "unsupported"
	}
	return "other"
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ndb.ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ndb.ErrStructural):
		return KindStructural
	}
	return KindOther
}

type Issue struct {
	NID  ndb.NID
	Kind Kind
	Err  error
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %v", i.NID, i.Kind, i.Err)
}

// Report is the outcome of one scan. Issues are in NID order.
type Report struct {
	Nodes  int
	PCs    int
	TCs    int
	Heaps  int
	Raw    int
	Issues []Issue
}

func (r *Report) OK() bool { return len(r.Issues) == 0 }

// Count returns the number of issues of kind k.
func (r *Report) Count(k Kind) int {
	n := 0
	for _, i := range r.Issues {
		if i.Kind == k {
			n++
		}
	}
	return n
}

type Checker struct {
	store   *pstdb.Store
	workers int

	mu     sync.Mutex
	report Report

	sugar *zap.SugaredLogger
}

func NewChecker(store *pstdb.Store, workers int, logger *zap.Logger) *Checker {
	if workers < 1 {
		workers = 1
	}
	return &Checker{
		store:   store,
		workers: workers,
		sugar:   logger.Sugar(),
	}
}

// heapTypes are the node types whose data is always a heap.
var heapTypes = map[ndb.NIDType]bool{
	ndb.NIDTypeNormalFolder:        true,
	ndb.NIDTypeSearchFolder:        true,
	ndb.NIDTypeNormalMessage:       true,
	ndb.NIDTypeAttachment:          true,
	ndb.NIDTypeAssocMessage:        true,
	ndb.NIDTypeHierarchyTable:      true,
	ndb.NIDTypeContentsTable:       true,
	ndb.NIDTypeAssocContentsTable:  true,
	ndb.NIDTypeSearchContentsTable: true,
	ndb.NIDTypeAttachmentTable:     true,
	ndb.NIDTypeRecipientTable:      true,
}

func isHeapNode(nid ndb.NID) bool {
	switch nid {
	case ndb.NIDMessageStore, ndb.NIDNameToIDMap:
		return true
	}
	return heapTypes[nid.Type()]
}

// Run walks the node B-tree and checks every heap-bearing node on the
// checker's workers. Node-level failures land in the report; the returned
// error is a node B-tree failure or ctx's.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	const msg = "Run:"
	if c.store == nil {
		return nil, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.report = Report{}

	g, ctx := errgroup.WithContext(ctx)
	nodes := make(chan ndb.NodeEntry)

	g.Go(func() error {
		defer close(nodes)
		err := c.store.DB().WalkNodes(func(e ndb.NodeEntry) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case nodes <- e:
				return nil
			}
		})
		if err != nil {
			return fmt.Errorf("%s %w", msg, err)
		}
		return nil
	})
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			return c.job(ctx, nodes)
		})
	}

	err := g.Wait()
	sort.Slice(c.report.Issues, func(i, j int) bool {
		return c.report.Issues[i].NID < c.report.Issues[j].NID
	})
	c.sugar.Infow("scan finished",
		"nodes", c.report.Nodes,
		"pcs", c.report.PCs,
		"tcs", c.report.TCs,
		"raw", c.report.Raw,
		"issues", len(c.report.Issues))
	rep := c.report
	return &rep, err
}

func (c *Checker) job(ctx context.Context, nodes <-chan ndb.NodeEntry) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-nodes:
			if !ok {
				return nil
			}
			c.check(e)
		}
	}
}

func (c *Checker) check(e ndb.NodeEntry) {
	c.add(func(r *Report) { r.Nodes++ })
	if !isHeapNode(e.NID) {
		c.add(func(r *Report) { r.Raw++ })
		return
	}

	h, err := ltp.OpenHeap(c.store.DB(), e.NID)
	if err != nil {
		c.issue(e.NID, err)
		return
	}
	opts := c.store.Options().LTP()
	opts.Lenient = true

	switch h.ClientSig() {
	case ltp.SigPC:
		c.add(func(r *Report) { r.PCs++ })
		pc, err := ltp.OpenPropertyContext(h, opts)
		if err != nil {
			c.issue(e.NID, err)
			return
		}
		_, err = pc.Properties()
		c.issues(e.NID, err)
	case ltp.SigTC:
		c.add(func(r *Report) { r.TCs++ })
		tc, err := ltp.OpenTableContext(h, opts)
		if err != nil {
			c.issue(e.NID, err)
			return
		}
		_, err = tc.Rows()
		c.issues(e.NID, err)
	default:
		c.add(func(r *Report) { r.Heaps++ })
	}
}

func (c *Checker) add(f func(*Report)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.report)
}

func (c *Checker) issue(nid ndb.NID, err error) {
	c.sugar.Debugw("issue", "nid", nid, "error", err)
	c.add(func(r *Report) {
		r.Issues = append(r.Issues, Issue{NID: nid, Kind: kindOf(err), Err: err})
	})
}

// issues splits a joined error into one issue per failure.
func (c *Checker) issues(nid ndb.NID, err error) {
	if err == nil {
		return
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			c.issue(nid, e)
		}
		return
	}
	c.issue(nid, err)
}
