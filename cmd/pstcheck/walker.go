package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/S0me0neR0man/ourpst/internal/client"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

const pidDisplayName = "0x3001"

type summary struct {
	StoreName string
	Folders   int
	Messages  int
	Failures  []string
}

// walker visits every folder reachable from the root folder of a remote
// store and reads each folder's properties, subfolders and contents.
type walker struct {
	client  *client.GRPCClient
	workers int

	mu  sync.Mutex
	sum summary

	sugar *zap.SugaredLogger
}

func newWalker(c *client.GRPCClient, workers int, logger *zap.Logger) *walker {
	if workers < 1 {
		workers = 1
	}
	return &walker{
		client:  c,
		workers: workers,
		sugar:   logger.Sugar(),
	}
}

func (w *walker) Close() error {
	return w.client.Close()
}

func (w *walker) Walk(ctx context.Context) (summary, error) {
	props, err := w.client.GetProperties(ctx, ndb.NIDMessageStore)
	if err != nil {
		return summary{}, err
	}
	w.sum = summary{}
	w.sum.StoreName, _ = props[pidDisplayName].(string)

	level := []ndb.NID{ndb.NIDRootFolder}
	for len(level) > 0 {
		if level, err = w.walkLevel(ctx, level); err != nil {
			return w.sum, err
		}
	}
	return w.sum, nil
}

// walkLevel reads one depth of the folder tree and returns the next.
func (w *walker) walkLevel(ctx context.Context, folders []ndb.NID) ([]ndb.NID, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)

	var mu sync.Mutex
	var next []ndb.NID
	for _, f := range folders {
		f := f
		g.Go(func() error {
			subs, err := w.folder(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.fail(f, err)
				return nil
			}
			mu.Lock()
			next = append(next, subs...)
			mu.Unlock()
			return nil
		})
	}
	return next, g.Wait()
}

func (w *walker) folder(ctx context.Context, nid ndb.NID) ([]ndb.NID, error) {
	props, err := w.client.GetProperties(ctx, nid)
	if err != nil {
		return nil, err
	}
	subs, err := w.rowIDs(ctx, nid.WithType(ndb.NIDTypeHierarchyTable))
	if err != nil {
		return nil, err
	}
	msgs, err := w.rowIDs(ctx, nid.WithType(ndb.NIDTypeContentsTable))
	if err != nil {
		return nil, err
	}
	w.sugar.Debugw("folder", "nid", nid, "name", props[pidDisplayName], "subfolders", len(subs), "messages", len(msgs))

	for _, id := range msgs {
		if _, err := w.client.GetProperties(ctx, ndb.NID(id)); err != nil {
			w.fail(ndb.NID(id), err)
		}
	}

	w.mu.Lock()
	w.sum.Folders++
	w.sum.Messages += len(msgs)
	w.mu.Unlock()

	out := make([]ndb.NID, len(subs))
	for i, id := range subs {
		out[i] = ndb.NID(id)
	}
	return out, nil
}

// rowIDs reads a folder table; a folder without one is empty.
func (w *walker) rowIDs(ctx context.Context, nid ndb.NID) ([]uint32, error) {
	ids, err := w.client.GetRowIDs(ctx, nid)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	return ids, err
}

func (w *walker) fail(nid ndb.NID, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sum.Failures = append(w.sum.Failures, fmt.Sprintf("%s: %v", nid, err))
}
