package ndb

import (
	"encoding/binary"
	"fmt"
)

// PageType is the ptype byte of a page trailer.
type PageType uint8

const (
	PageBBT   PageType = 0x80
	PageNBT   PageType = 0x81
	PageFMap  PageType = 0x82
	PagePMap  PageType = 0x83
	PageAMap  PageType = 0x84
	PageFPMap PageType = 0x85
	PageDList PageType = 0x86
)

func (t PageType) String() string {
	switch t {
	case PageBBT:
		return "bbt"
	case PageNBT:
		return "nbt"
	case PageFMap:
		return "fmap"
	case PagePMap:
		return "pmap"
	case PageAMap:
		return "amap"
	case PageFPMap:
		return "fpmap"
	case PageDList:
		return "dlist"
	}
	return fmt.Sprintf("ptype(0x%02x)", uint8(t))
}

// maxBTreeLevel bounds cLevel; trees have at most eight levels.
const maxBTreeLevel = 7

// PageTrailer closes every page.
type PageTrailer struct {
	Type       PageType
	TypeRepeat PageType
	Sig        uint16
	CRC        uint32
	BID        BID
}

// ComputeSig derives the signature stored in page and block trailers.
func ComputeSig(ib IB, bid BID) uint16 {
	v := uint64(ib) ^ uint64(bid)
	return uint16(v>>16) ^ uint16(v)
}

// ParsePageTrailer decodes the trailer at the end of page.
func ParsePageTrailer(f Format, page []byte) (PageTrailer, error) {
	if len(page) != f.PageSize() {
		return PageTrailer{}, structuralf("page of %d bytes, want %d", len(page), f.PageSize())
	}
	off := f.Layout().TrailerOff
	t := PageTrailer{
		Type:       PageType(page[off]),
		TypeRepeat: PageType(page[off+1]),
		Sig:        binary.LittleEndian.Uint16(page[off+2:]),
	}
	var err error
	if f == FormatANSI {
		t.BID, err = ReadBID(f, page, off+4)
		t.CRC = binary.LittleEndian.Uint32(page[off+8:])
	} else {
		t.CRC = binary.LittleEndian.Uint32(page[off+4:])
		t.BID, err = ReadBID(f, page, off+8)
	}
	return t, err
}

// btPage is a parsed BTPAGE: entries are cut at cbEnt, never at the natural
// record size.
type btPage struct {
	trailer PageTrailer
	level   uint8
	cbEnt   int
	entries [][]byte
}

func parseBTPage(f Format, page []byte, ref BREF, want PageType) (*btPage, error) {
	const msg = "parseBTPage:"
	t, err := ParsePageTrailer(f, page)
	if err != nil {
		return nil, err
	}
	if t.Type != t.TypeRepeat {
		return nil, structuralf("%s page %s ptype 0x%02x != repeat 0x%02x", msg, ref, uint8(t.Type), uint8(t.TypeRepeat))
	}
	if t.Type != want {
		return nil, structuralf("%s page %s is %s, want %s", msg, ref, t.Type, want)
	}
	if t.BID.Masked() != ref.BID.Masked() {
		return nil, structuralf("%s page %s trailer names bid %s", msg, ref, t.BID)
	}
	if sig := ComputeSig(ref.IB, t.BID); t.Sig != sig {
		return nil, structuralf("%s page %s signature 0x%04x, want 0x%04x", msg, ref, t.Sig, sig)
	}

	l := f.Layout()
	var cEnt int
	if l.CountWidth == 2 {
		cEnt = int(binary.LittleEndian.Uint16(page[l.CEntOff:]))
	} else {
		cEnt = int(page[l.CEntOff])
	}
	p := &btPage{
		trailer: t,
		cbEnt:   int(page[l.CbEntOff]),
		level:   page[l.CLevelOff],
	}
	if p.level > maxBTreeLevel {
		return nil, structuralf("%s page %s has level %d", msg, ref, p.level)
	}

	natural := l.IndexEntry
	if p.level == 0 {
		natural = l.NodeEntry
		if want == PageBBT {
			natural = l.BlockEntry
		}
	}
	if cEnt > 0 && p.cbEnt < natural {
		return nil, structuralf("%s page %s cbEnt %d smaller than %d", msg, ref, p.cbEnt, natural)
	}
	if cEnt*p.cbEnt > l.EntriesSize {
		return nil, structuralf("%s page %s has %d entries of %d bytes", msg, ref, cEnt, p.cbEnt)
	}

	p.entries = make([][]byte, cEnt)
	for i := range p.entries {
		p.entries[i] = page[i*p.cbEnt : (i+1)*p.cbEnt]
	}
	return p, nil
}
