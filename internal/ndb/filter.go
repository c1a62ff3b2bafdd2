package ndb

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// LeafBlock is a leaf data block on its way from the file to the caller.
type LeafBlock struct {
	Entry BlockEntry
	Data  []byte
}

// BlockHandler handles a leaf block.
type BlockHandler interface {
	Handle(*LeafBlock) error
}

// The BlockHandlerFunc type is an adapter to allow the use of
// ordinary functions as handlers.
type BlockHandlerFunc func(*LeafBlock) error

// Handle calls f(b).
func (f BlockHandlerFunc) Handle(b *LeafBlock) error {
	return f(b)
}

// MiddlewareBlockFunc is a function which receives a BlockHandler and returns another BlockHandler
type MiddlewareBlockFunc func(BlockHandler) BlockHandler

// blockMiddlewarer interface is anything which implements a MiddlewareBlockFunc named BlockMiddleware
type blockMiddlewarer interface {
	BlockMiddleware(BlockHandler) BlockHandler
}

// BlockMiddleware allows MiddlewareBlockFunc to implement the blockMiddlewarer interface
func (mw MiddlewareBlockFunc) BlockMiddleware(h BlockHandler) BlockHandler {
	return mw(h)
}

// FilterChain runs every leaf block through its filters in attach order.
type FilterChain struct {
	filters []blockMiddlewarer
}

// NewFilterChain builds the chain a container needs: decryption first, then
// inflation of compressed Unicode4K blocks.
func NewFilterChain(h *Header) *FilterChain {
	c := &FilterChain{}
	if h.CryptMethod != CryptNone && h.CryptMethod != CryptEDP {
		c.Attach(DecryptFilter(h.CryptMethod))
	}
	if h.Format == FormatUnicode4K {
		c.Attach(InflateFilter)
	}
	return c
}

// Attach appends a MiddlewareBlockFunc to the chain
func (c *FilterChain) Attach(mwf ...MiddlewareBlockFunc) *FilterChain {
	for _, fn := range mwf {
		c.filters = append(c.filters, fn)
	}
	return c
}

// Len returns the number of attached filters.
func (c *FilterChain) Len() int {
	return len(c.filters)
}

func (c *FilterChain) apply(b *LeafBlock) error {
	if len(c.filters) == 0 {
		return nil
	}

	var h BlockHandler = BlockHandlerFunc(func(*LeafBlock) error { return nil })
	for i := len(c.filters) - 1; i >= 0; i-- {
		h = c.filters[i].BlockMiddleware(h)
	}
	return h.Handle(b)
}

// DecryptFilter decrypts a block in place keyed by the low 32 bits of its BID.
func DecryptFilter(m CryptMethod) MiddlewareBlockFunc {
	return func(next BlockHandler) BlockHandler {
		return BlockHandlerFunc(func(b *LeafBlock) error {
			Decrypt(m, uint32(b.Entry.BREF.BID), b.Data)
			return next.Handle(b)
		})
	}
}

// InflateFilter replaces a compressed payload with its zlib-inflated form.
func InflateFilter(next BlockHandler) BlockHandler {
	return BlockHandlerFunc(func(b *LeafBlock) error {
		const msg = "inflate:"
		if !b.Entry.Compressed() {
			return next.Handle(b)
		}
		zr, err := zlib.NewReader(bytes.NewReader(b.Data))
		if err != nil {
			return structuralf("%s block %s: %v", msg, b.Entry.BREF.BID, err)
		}
		defer zr.Close()

		out := make([]byte, b.Entry.Inflated)
		if _, err := io.ReadFull(zr, out); err != nil {
			return fmt.Errorf("%w: %s block %s: %v", ErrStructural, msg, b.Entry.BREF.BID, err)
		}
		b.Data = out
		return next.Handle(b)
	})
}
