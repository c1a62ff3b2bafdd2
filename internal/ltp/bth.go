package ltp

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

const (
	bthHeaderSize = 8
	maxBTHLevels  = 8
)

// BTHHeader is the BTHHEADER heap item.
type BTHHeader struct {
	KeySize   uint8
	EntrySize uint8
	Levels    uint8
	Root      ndb.HID
}

// Record is one leaf of a BTH. Both slices alias the heap.
type Record struct {
	Key  []byte
	Data []byte
}

// BTH is a B-tree stored in heap items.
type BTH struct {
	heap *Heap
	hdr  BTHHeader
}

// OpenBTH reads the BTH whose header is item hid.
func OpenBTH(h *Heap, hid ndb.HID) (*BTH, error) {
	const msg = "OpenBTH:"
	b, err := h.GetBytes(hid)
	if err != nil {
		return nil, err
	}
	if len(b) != bthHeaderSize {
		return nil, structuralf("%s header %s of %d bytes", msg, hid, len(b))
	}
	if ClientSig(b[0]) != SigBTH {
		return nil, structuralf("%s header %s type 0x%02x", msg, hid, b[0])
	}
	hdr := BTHHeader{
		KeySize:   b[1],
		EntrySize: b[2],
		Levels:    b[3],
		Root:      ndb.HID(binary.LittleEndian.Uint32(b[4:])),
	}
	switch hdr.KeySize {
	case 2, 4, 8, 16:
	default:
		return nil, structuralf("%s key size %d", msg, hdr.KeySize)
	}
	if hdr.EntrySize == 0 || hdr.EntrySize > 32 {
		return nil, structuralf("%s entry size %d", msg, hdr.EntrySize)
	}
	if hdr.Levels >= maxBTHLevels {
		return nil, structuralf("%s %d index levels", msg, hdr.Levels)
	}
	return &BTH{heap: h, hdr: hdr}, nil
}

// Header returns the parsed BTHHEADER.
func (t *BTH) Header() BTHHeader { return t.hdr }

// Walk visits every record in stored order. Intermediate levels are not
// pruned by key: every child is visited.
func (t *BTH) Walk(fn func(Record) error) error {
	if t.hdr.Root == 0 {
		return nil
	}
	return t.walk(t.hdr.Root, int(t.hdr.Levels), fn)
}

func (t *BTH) walk(hid ndb.HID, level int, fn func(Record) error) error {
	b, err := t.heap.GetBytes(hid)
	if err != nil {
		return err
	}
	k := int(t.hdr.KeySize)
	if level == 0 {
		size := k + int(t.hdr.EntrySize)
		if len(b)%size != 0 {
			return structuralf("bth leaf %s of %d bytes, records are %d", hid, len(b), size)
		}
		for off := 0; off < len(b); off += size {
			if err := fn(Record{Key: b[off : off+k], Data: b[off+k : off+size]}); err != nil {
				return err
			}
		}
		return nil
	}

	size := k + 4
	if len(b)%size != 0 {
		return structuralf("bth index %s of %d bytes, entries are %d", hid, len(b), size)
	}
	for off := 0; off < len(b); off += size {
		child, err := ndb.ReadHID(b, off+k)
		if err != nil {
			return err
		}
		if err := t.walk(child, level-1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the record with key. It filters a full walk.
func (t *BTH) Find(key []byte) (Record, bool, error) {
	var (
		found Record
		ok    bool
	)
	err := t.Walk(func(r Record) error {
		if bytes.Equal(r.Key, key) {
			found, ok = r, true
			return ndb.ErrStopWalk
		}
		return nil
	})
	if errors.Is(err, ndb.ErrStopWalk) {
		err = nil
	}
	return found, ok, err
}

// Collect decodes every record of t with decode.
func Collect[T any](t *BTH, decode func(Record) (T, error)) ([]T, error) {
	var out []T
	err := t.Walk(func(r Record) error {
		v, err := decode(r)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
