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
	pcKeySize   = 2
	pcEntrySize = 6
)

// Property is one decoded property.
type Property struct {
	ID    PropID
	Type  PropType
	Value Value
}

type lazyProp struct {
	typ  PropType
	slot [4]byte

	once sync.Once
	val  Value
	err  error
}

// PropertyContext is a property id to value dictionary. Values are decoded on
// first access and cached; a PropertyContext is safe for concurrent use.
type PropertyContext struct {
	heap  *Heap
	opts  Options
	ids   []PropID
	props map[PropID]*lazyProp
}

// OpenPropertyContext reads the property BTH of a heap with the PC
// signature.
func OpenPropertyContext(h *Heap, opts Options) (*PropertyContext, error) {
	const msg = "OpenPropertyContext:"
	if h.ClientSig() != SigPC {
		return nil, fmt.Errorf("%s heap hosts %s: %w", msg, h.ClientSig(), ErrWrongContext)
	}
	bth, err := OpenBTH(h, h.Root())
	if err != nil {
		return nil, fmt.Errorf("%s %w", msg, err)
	}
	if hdr := bth.Header(); hdr.KeySize != pcKeySize || hdr.EntrySize != pcEntrySize {
		return nil, structuralf("%s records of %d+%d bytes", msg, hdr.KeySize, hdr.EntrySize)
	}

	pc := &PropertyContext{heap: h, opts: opts, props: make(map[PropID]*lazyProp)}
	err = bth.Walk(func(r Record) error {
		id := PropID(binary.LittleEndian.Uint16(r.Key))
		p := &lazyProp{typ: PropType(binary.LittleEndian.Uint16(r.Data))}
		copy(p.slot[:], r.Data[2:6])
		if _, dup := pc.props[id]; !dup {
			pc.ids = append(pc.ids, id)
		}
		pc.props[id] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %w", msg, err)
	}
	sort.Slice(pc.ids, func(i, j int) bool { return pc.ids[i] < pc.ids[j] })
	return pc, nil
}

// ReadPropertyContext opens the property context of node nid.
func ReadPropertyContext(db *ndb.DB, nid ndb.NID, opts Options) (*PropertyContext, error) {
	h, err := OpenHeap(db, nid)
	if err != nil {
		return nil, err
	}
	return OpenPropertyContext(h, opts)
}

// Heap returns the underlying heap.
func (pc *PropertyContext) Heap() *Heap { return pc.heap }

// IDs lists the property ids in ascending order.
func (pc *PropertyContext) IDs() []PropID { return pc.ids }

// Len returns the number of properties.
func (pc *PropertyContext) Len() int { return len(pc.ids) }

// Type returns the declared type of property id.
func (pc *PropertyContext) Type(id PropID) (PropType, bool) {
	p, ok := pc.props[id]
	if !ok {
		return 0, false
	}
	return p.typ, true
}

// Get decodes property id. A missing property is reported with ok == false
// and a nil error.
func (pc *PropertyContext) Get(id PropID) (Value, bool, error) {
	p, ok := pc.props[id]
	if !ok {
		return nil, false, nil
	}
	p.once.Do(func() {
		p.val, p.err = pc.decode(p.typ, p.slot[:])
		if p.err != nil {
			p.err = &PropertyError{ID: id, Err: p.err}
		}
	})
	return p.val, true, p.err
}

// Require is Get with a missing property reported as
// ErrMissingRequiredProperty.
func (pc *PropertyContext) Require(id PropID) (Value, error) {
	v, ok, err := pc.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("property %s: %w", id, ErrMissingRequiredProperty)
	}
	return v, nil
}

// All decodes every property. Without Options.Lenient the first failure is
// returned. In lenient mode the map holds every property that decoded and
// the error joins the failures of the others.
func (pc *PropertyContext) All() (map[PropID]Value, error) {
	out := make(map[PropID]Value, len(pc.ids))
	var errs []error
	for _, id := range pc.ids {
		v, _, err := pc.Get(id)
		if err != nil {
			if !pc.opts.Lenient {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		out[id] = v
	}
	return out, errors.Join(errs...)
}

// Properties returns every property that decodes, in id order, and the
// joined errors of those that do not.
func (pc *PropertyContext) Properties() ([]Property, error) {
	out := make([]Property, 0, len(pc.ids))
	var errs []error
	for _, id := range pc.ids {
		v, _, err := pc.Get(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, Property{ID: id, Type: pc.props[id].typ, Value: v})
	}
	return out, errors.Join(errs...)
}

func (pc *PropertyContext) decode(t PropType, slot []byte) (Value, error) {
	if !t.Supported() {
		return nil, &UnsupportedTypeError{Type: t}
	}
	if t.inline() {
		return decodeFixed(t, slot[:t.FixedSize()])
	}
	hnid := ndb.HNID(binary.LittleEndian.Uint32(slot))
	b, err := pc.heap.BytesForHNID(hnid)
	if err != nil {
		return nil, err
	}
	switch {
	case t == PtypObject:
		if len(b) != 8 {
			return nil, &InvalidPropertySizeError{Type: t, Expected: 8, Actual: len(b)}
		}
		return ObjectRef{
			NID:  ndb.NID(binary.LittleEndian.Uint32(b)),
			Size: binary.LittleEndian.Uint32(b[4:]),
		}, nil
	case t.FixedSize() > 0:
		return decodeFixed(t, b)
	}
	return pc.opts.decodeVariable(t, b)
}
