package ndb

import (
	"encoding/binary"
	"fmt"
)

// IB is an absolute byte offset into the container.
type IB uint64

// BID identifies a block or a page.
//
// bit 0 is reserved, bit 1 marks an internal block (data tree or subnode
// tree), the remaining bits are a monotonically increasing index. All bits
// are kept as stored.
type BID uint64

const (
	bidReservedBit = 0x1
	bidInternalBit = 0x2
	bidIndexShift  = 2
)

// Reserved reports the reserved low bit.
func (b BID) Reserved() bool { return b&bidReservedBit != 0 }

// Internal reports whether the block holds NDB metadata instead of node data.
func (b BID) Internal() bool { return b&bidInternalBit != 0 }

// Index is the monotonic part of the id.
func (b BID) Index() uint64 { return uint64(b) >> bidIndexShift }

// Masked returns b with the reserved bit cleared; block lookups use it.
func (b BID) Masked() BID { return b &^ bidReservedBit }

func (b BID) String() string { return fmt.Sprintf("0x%x", uint64(b)) }

// MakeBID assembles a BID from its parts.
func MakeBID(index uint64, internal bool) BID {
	b := BID(index << bidIndexShift)
	if internal {
		b |= bidInternalBit
	}
	return b
}

// BREF binds a BID to the location of its page or block.
type BREF struct {
	BID BID
	IB  IB
}

func (r BREF) String() string { return fmt.Sprintf("{bid=%s ib=0x%x}", r.BID, uint64(r.IB)) }

// NIDType is the 5-bit kind tag stored in the low bits of every NID.
type NIDType uint8

const (
	NIDTypeHID                  NIDType = 0x00
	NIDTypeInternal             NIDType = 0x01
	NIDTypeNormalFolder         NIDType = 0x02
	NIDTypeSearchFolder         NIDType = 0x03
	NIDTypeNormalMessage        NIDType = 0x04
	NIDTypeAttachment           NIDType = 0x05
	NIDTypeSearchUpdateQueue    NIDType = 0x06
	NIDTypeSearchCriteriaObject NIDType = 0x07
	NIDTypeAssocMessage         NIDType = 0x08
	NIDTypeContentsTableIndex   NIDType = 0x0A
	NIDTypeReceiveFolderTable   NIDType = 0x0B
	NIDTypeOutgoingQueueTable   NIDType = 0x0C
	NIDTypeHierarchyTable       NIDType = 0x0D
	NIDTypeContentsTable        NIDType = 0x0E
	NIDTypeAssocContentsTable   NIDType = 0x0F
	NIDTypeSearchContentsTable  NIDType = 0x10
	NIDTypeAttachmentTable      NIDType = 0x11
	NIDTypeRecipientTable       NIDType = 0x12
	NIDTypeSearchTableIndex     NIDType = 0x13
	NIDTypeLTP                  NIDType = 0x1F
)

const (
	nidTypeMask   = 0x1F
	nidIndexShift = 5
)

var nidTypeNames = map[NIDType]string{
	NIDTypeHID:                  "hid",
	NIDTypeInternal:             "internal",
	NIDTypeNormalFolder:         "normal_folder",
	NIDTypeSearchFolder:         "search_folder",
	NIDTypeNormalMessage:        "normal_message",
	NIDTypeAttachment:           "attachment",
	NIDTypeSearchUpdateQueue:    "search_update_queue",
	NIDTypeSearchCriteriaObject: "search_criteria_object",
	NIDTypeAssocMessage:         "assoc_message",
	NIDTypeContentsTableIndex:   "contents_table_index",
	NIDTypeReceiveFolderTable:   "receive_folder_table",
	NIDTypeOutgoingQueueTable:   "outgoing_queue_table",
	NIDTypeHierarchyTable:       "hierarchy_table",
	NIDTypeContentsTable:        "contents_table",
	NIDTypeAssocContentsTable:   "assoc_contents_table",
	NIDTypeSearchContentsTable:  "search_contents_table",
	NIDTypeAttachmentTable:      "attachment_table",
	NIDTypeRecipientTable:       "recipient_table",
	NIDTypeSearchTableIndex:     "search_table_index",
	NIDTypeLTP:                  "ltp",
}

// Known reports whether t is one of the 20 defined node kinds.
func (t NIDType) Known() bool {
	_, ok := nidTypeNames[t]
	return ok
}

func (t NIDType) String() string {
	if name, ok := nidTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("nidtype(0x%02x)", uint8(t))
}

// NID is a logical node identifier: a 5-bit type and a 27-bit index.
type NID uint32

// Well-known nodes.
const (
	NIDMessageStore             NID = 0x21
	NIDNameToIDMap              NID = 0x61
	NIDNormalFolderTemplate     NID = 0xA1
	NIDSearchFolderTemplate     NID = 0xC1
	NIDRootFolder               NID = 0x122
	NIDSearchManagementQueue    NID = 0x1E1
	NIDSearchActivityList       NID = 0x201
	NIDSearchDomainObject       NID = 0x261
	NIDSearchGathererQueue      NID = 0x281
	NIDSearchGathererDescriptor NID = 0x2A1
	NIDHierarchyTableTemplate   NID = 0x60D
	NIDContentsTableTemplate    NID = 0x60E
	NIDAssocContentsTableTmpl   NID = 0x60F
	NIDSearchContentsTableTmpl  NID = 0x610
	NIDAttachmentTableTemplate  NID = 0x671
	NIDRecipientTableTemplate   NID = 0x692
)

// Type returns the low five bits.
func (n NID) Type() NIDType { return NIDType(n & nidTypeMask) }

// Index returns the upper 27 bits.
func (n NID) Index() uint32 { return uint32(n) >> nidIndexShift }

// WithType returns the NID with the same index and a different type, as used
// to go from a folder to its hierarchy or contents table.
func (n NID) WithType(t NIDType) NID { return MakeNID(t, n.Index()) }

func (n NID) String() string { return fmt.Sprintf("0x%x", uint32(n)) }

// MakeNID assembles a NID from its parts.
func MakeNID(t NIDType, index uint32) NID {
	return NID(index<<nidIndexShift | uint32(t)&nidTypeMask)
}

// HID addresses an item inside a heap: 5-bit type (always NIDTypeHID),
// 11-bit 1-based item index and 16-bit 0-based block index.
type HID uint32

// Type is the kind tag, zero for a well formed HID.
func (h HID) Type() NIDType { return NIDType(h & nidTypeMask) }

// Index is the 1-based item index inside its block; zero means no item.
func (h HID) Index() uint16 { return uint16(h>>5) & 0x7FF }

// BlockIndex is the 0-based index of the heap block holding the item.
func (h HID) BlockIndex() uint16 { return uint16(h >> 16) }

func (h HID) String() string {
	return fmt.Sprintf("hid(block=%d index=%d)", h.BlockIndex(), h.Index())
}

// MakeHID assembles a HID from its parts.
func MakeHID(block, index uint16) HID {
	return HID(uint32(block)<<16 | uint32(index&0x7FF)<<5)
}

// HNID is either a HID or a subnode NID, told apart by the type tag.
type HNID uint32

// IsHID reports whether the value addresses a heap item.
func (h HNID) IsHID() bool { return NIDType(h&nidTypeMask) == NIDTypeHID }

// HID reinterprets the value as a heap id.
func (h HNID) HID() HID { return HID(h) }

// NID reinterprets the value as a subnode id.
func (h HNID) NID() NID { return NID(h) }

func (h HNID) String() string {
	if h.IsHID() {
		return h.HID().String()
	}
	return "nid(" + h.NID().String() + ")"
}

func short(what string, b []byte, off, n int) error {
	return structuralf("%s at %d needs %d bytes, have %d", what, off, n, len(b)-off)
}

func fits(b []byte, off, n int) bool {
	return off >= 0 && n >= 0 && off+n <= len(b)
}

// ReadIB decodes an IB at off.
func ReadIB(f Format, b []byte, off int) (IB, error) {
	v, err := readID(f, "ib", b, off)
	return IB(v), err
}

// ReadBID decodes a BID at off. Reserved and internal bits are preserved.
func ReadBID(f Format, b []byte, off int) (BID, error) {
	v, err := readID(f, "bid", b, off)
	return BID(v), err
}

func readID(f Format, what string, b []byte, off int) (uint64, error) {
	switch f {
	case FormatANSI:
		if !fits(b, off, 4) {
			return 0, short(what, b, off, 4)
		}
		return uint64(binary.LittleEndian.Uint32(b[off:])), nil
	case FormatUnicode, FormatUnicode4K:
		if !fits(b, off, 8) {
			return 0, short(what, b, off, 8)
		}
		return binary.LittleEndian.Uint64(b[off:]), nil
	}
	return 0, fmt.Errorf("%w: %s for %s", ErrMalformedIdentifier, what, f)
}

// ReadBREF decodes a BREF at off.
func ReadBREF(f Format, b []byte, off int) (BREF, error) {
	bid, err := ReadBID(f, b, off)
	if err != nil {
		return BREF{}, err
	}
	ib, err := ReadIB(f, b, off+f.IDSize())
	if err != nil {
		return BREF{}, err
	}
	return BREF{BID: bid, IB: ib}, nil
}

// ReadNID decodes a 32-bit NID at off. An unknown type tag is an error.
func ReadNID(b []byte, off int) (NID, error) {
	if !fits(b, off, 4) {
		return 0, short("nid", b, off, 4)
	}
	n := NID(binary.LittleEndian.Uint32(b[off:]))
	if !n.Type().Known() {
		return 0, structuralf("nid 0x%x has unknown type 0x%02x", uint32(n), uint8(n.Type()))
	}
	return n, nil
}

// ReadHID decodes a HID at off; its type tag must be NIDTypeHID.
func ReadHID(b []byte, off int) (HID, error) {
	if !fits(b, off, 4) {
		return 0, short("hid", b, off, 4)
	}
	h := HID(binary.LittleEndian.Uint32(b[off:]))
	if h.Type() != NIDTypeHID {
		return 0, structuralf("hid 0x%x has type 0x%02x", uint32(h), uint8(h.Type()))
	}
	return h, nil
}

// ReadHNID decodes an HNID at off. A NID form must carry a known type.
func ReadHNID(b []byte, off int) (HNID, error) {
	if !fits(b, off, 4) {
		return 0, short("hnid", b, off, 4)
	}
	h := HNID(binary.LittleEndian.Uint32(b[off:]))
	if !h.IsHID() && !h.NID().Type().Known() {
		return 0, structuralf("hnid 0x%x has unknown type 0x%02x", uint32(h), uint8(h.NID().Type()))
	}
	return h, nil
}
