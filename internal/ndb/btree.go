package ndb

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// leafCodec tells a Tree how to read the leaves of one kind of page.
type leafCodec[E any] struct {
	kind   PageType
	decode func(Format, []byte) (E, uint64, error)
	key    func(uint64) uint64
}

var (
	nodeCodec = leafCodec[NodeEntry]{
		kind:   PageNBT,
		decode: decodeNodeEntry,
		key:    func(k uint64) uint64 { return uint64(uint32(k)) },
	}
	blockCodec = leafCodec[BlockEntry]{
		kind:   PageBBT,
		decode: decodeBlockEntry,
		key:    func(k uint64) uint64 { return k &^ bidReservedBit },
	}
)

type childRef struct {
	key  uint64
	slot int
}

type leafRef[E any] struct {
	key   uint64
	entry E
}

// pageSlot is one arena cell. Until loaded it only knows where its page lives;
// after loading, children or leaves never change again.
type pageSlot[E any] struct {
	ref       BREF
	wantLevel int // -1 for the root
	loaded    bool
	level     uint8
	children  []childRef
	leaves    []leafRef[E]
}

// Tree is a read-only B-tree over pages. Pages are read lazily: a slot is
// materialized the first time a lookup or walk visits it, at most once.
type Tree[E any] struct {
	format Format
	src    io.ReaderAt
	codec  leafCodec[E]

	mu    sync.RWMutex
	arena []*pageSlot[E]
	sfg   singleflight.Group
}

func newTree[E any](f Format, src io.ReaderAt, codec leafCodec[E], root BREF) *Tree[E] {
	return &Tree[E]{
		format: f,
		src:    src,
		codec:  codec,
		arena:  []*pageSlot[E]{{ref: root, wantLevel: -1}},
	}
}

// Lookup descends from the root. At every intermediate page it follows the
// child with the greatest key not above key; at the leaf page it requires an
// exact match. A miss is reported with ok == false and a nil error.
func (t *Tree[E]) Lookup(key uint64) (E, bool, error) {
	var zero E
	key = t.codec.key(key)
	slot := 0
	for depth := 0; depth <= maxBTreeLevel; depth++ {
		p, err := t.page(slot)
		if err != nil {
			return zero, false, err
		}
		if p.level == 0 {
			for _, l := range p.leaves {
				if l.key == key {
					return l.entry, true, nil
				}
				if l.key > key {
					break
				}
			}
			return zero, false, nil
		}
		next := -1
		for _, c := range p.children {
			if c.key > key {
				break
			}
			next = c.slot
		}
		if next < 0 {
			return zero, false, nil
		}
		slot = next
	}
	return zero, false, structuralf("%s tree deeper than %d levels", t.codec.kind, maxBTreeLevel+1)
}

// Walk visits every leaf entry in key order. Returning ErrStopWalk from fn
// ends the walk without error.
func (t *Tree[E]) Walk(fn func(E) error) error {
	err := t.walk(0, 0, fn)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

// ErrStopWalk stops a walk early.
var ErrStopWalk = errors.New("stop walk")

func (t *Tree[E]) walk(slot, depth int, fn func(E) error) error {
	if depth > maxBTreeLevel {
		return structuralf("%s tree deeper than %d levels", t.codec.kind, maxBTreeLevel+1)
	}
	p, err := t.page(slot)
	if err != nil {
		return err
	}
	if p.level == 0 {
		for _, l := range p.leaves {
			if err := fn(l.entry); err != nil {
				return err
			}
		}
		return nil
	}
	for _, c := range p.children {
		if err := t.walk(c.slot, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// page returns a materialized slot, reading its page on first use.
func (t *Tree[E]) page(slot int) (*pageSlot[E], error) {
	t.mu.RLock()
	p := t.arena[slot]
	loaded := p.loaded
	t.mu.RUnlock()
	if loaded {
		return p, nil
	}

	_, err, _ := t.sfg.Do(strconv.Itoa(slot), func() (interface{}, error) {
		t.mu.RLock()
		done := p.loaded
		t.mu.RUnlock()
		if done {
			return nil, nil
		}
		return nil, t.materialize(p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Tree[E]) materialize(p *pageSlot[E]) error {
	const msg = "materialize:"
	buf := make([]byte, t.format.PageSize())
	if _, err := t.src.ReadAt(buf, int64(p.ref.IB)); err != nil {
		return fmt.Errorf("%s read %s page %s: %w", msg, t.codec.kind, p.ref, err)
	}
	bp, err := parseBTPage(t.format, buf, p.ref, t.codec.kind)
	if err != nil {
		return err
	}
	if p.wantLevel >= 0 && int(bp.level) != p.wantLevel {
		return structuralf("%s page %s has level %d under a level %d parent", msg, p.ref, bp.level, p.wantLevel+1)
	}

	var (
		children []childRef
		leaves   []leafRef[E]
		pending  []*pageSlot[E]
	)
	if bp.level == 0 {
		leaves = make([]leafRef[E], 0, len(bp.entries))
		for i, raw := range bp.entries {
			e, key, err := t.codec.decode(t.format, raw)
			if err != nil {
				return fmt.Errorf("%s page %s entry %d: %w", msg, p.ref, i, err)
			}
			leaves = append(leaves, leafRef[E]{key: t.codec.key(key), entry: e})
		}
	} else {
		pending = make([]*pageSlot[E], 0, len(bp.entries))
		children = make([]childRef, 0, len(bp.entries))
		for i, raw := range bp.entries {
			key, ref, err := decodeIndexEntry(t.format, raw)
			if err != nil {
				return fmt.Errorf("%s page %s entry %d: %w", msg, p.ref, i, err)
			}
			children = append(children, childRef{key: t.codec.key(key)})
			pending = append(pending, &pageSlot[E]{ref: ref, wantLevel: int(bp.level) - 1})
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, child := range pending {
		children[i].slot = len(t.arena)
		t.arena = append(t.arena, child)
	}
	p.level = bp.level
	p.children = children
	p.leaves = leaves
	p.loaded = true
	return nil
}

// Pages reports how many pages are known to the arena, loaded or not.
func (t *Tree[E]) Pages() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.arena)
}
