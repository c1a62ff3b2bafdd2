// Package ndb reads the node database layer of a personal mail-store container:
// the header, the two page B-trees that map node ids and block ids, data trees
// spanning several blocks, and per-node subnode trees.
//
// Every decoder takes the container Format explicitly. The format is fixed when
// the header is parsed and never re-detected from local data.
package ndb

import "fmt"

// Format is the width variant of a container.
type Format uint8

const (
	FormatANSI Format = iota + 1
	FormatUnicode
	FormatUnicode4K
)

func (f Format) String() string {
	switch f {
	case FormatANSI:
		return "ansi"
	case FormatUnicode:
		return "unicode"
	case FormatUnicode4K:
		return "unicode4k"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Valid reports whether f is one of the three known variants.
func (f Format) Valid() bool {
	return f >= FormatANSI && f <= FormatUnicode4K
}

// IDSize is the on-disk width of an IB or a BID.
func (f Format) IDSize() int {
	if f == FormatANSI {
		return 4
	}
	return 8
}

// BREFSize is the on-disk width of a BREF.
func (f Format) BREFSize() int {
	return 2 * f.IDSize()
}

// PageSize is the size of every B-tree and map page.
func (f Format) PageSize() int {
	if f == FormatUnicode4K {
		return 4096
	}
	return 512
}

// PageTrailerSize is the size of the trailer at the end of every page.
func (f Format) PageTrailerSize() int {
	if f == FormatANSI {
		return 12
	}
	return 16
}

// BlockTrailerSize is the size of the trailer at the end of every block.
func (f Format) BlockTrailerSize() int {
	if f == FormatANSI {
		return 12
	}
	return 16
}

// MaxBlockSize is the largest allocation a single block may occupy,
// trailer included.
func (f Format) MaxBlockSize() int {
	if f == FormatUnicode4K {
		return 65536
	}
	return 8192
}

// MaxBlockData is the largest payload of a single block.
func (f Format) MaxBlockData() int {
	return f.MaxBlockSize() - f.BlockTrailerSize()
}

// BlockAlign is the allocation granularity of blocks.
func (f Format) BlockAlign() int {
	if f == FormatUnicode4K {
		return 512
	}
	return 64
}

// BlockAllocSize returns the number of bytes a block with cb bytes of payload
// occupies in the file.
func (f Format) BlockAllocSize(cb int) int {
	n := cb + f.BlockTrailerSize()
	a := f.BlockAlign()
	return (n + a - 1) / a * a
}

// PageLayout describes where the B-tree page metadata lives inside a page.
type PageLayout struct {
	EntriesSize  int // bytes available for rgentries
	CountWidth   int // width of cEnt and cEntMax
	CEntOff      int
	CEntMaxOff   int
	CbEntOff     int
	CLevelOff    int
	TrailerOff   int
	IndexEntry   int // natural size of an intermediate BTENTRY
	NodeEntry    int // natural size of an NBTENTRY
	BlockEntry   int // natural size of a BBTENTRY
	HeaderSize   int // bytes read to parse the file header
	SubnodeHdr   int // size of the SLBLOCK/SIBLOCK header
	XBlockHeader int // size of the XBLOCK/XXBLOCK header
}

// Layout returns the page and record layout for f.
func (f Format) Layout() PageLayout {
	switch f {
	case FormatANSI:
		return PageLayout{
			EntriesSize: 496, CountWidth: 1,
			CEntOff: 496, CEntMaxOff: 497, CbEntOff: 498, CLevelOff: 499, TrailerOff: 500,
			IndexEntry: 12, NodeEntry: 16, BlockEntry: 12,
			HeaderSize: 512, SubnodeHdr: 4, XBlockHeader: 8,
		}
	case FormatUnicode:
		return PageLayout{
			EntriesSize: 488, CountWidth: 1,
			CEntOff: 488, CEntMaxOff: 489, CbEntOff: 490, CLevelOff: 491, TrailerOff: 496,
			IndexEntry: 24, NodeEntry: 32, BlockEntry: 24,
			HeaderSize: 564, SubnodeHdr: 8, XBlockHeader: 8,
		}
	case FormatUnicode4K:
		return PageLayout{
			EntriesSize: 4056, CountWidth: 2,
			CEntOff: 4056, CEntMaxOff: 4058, CbEntOff: 4060, CLevelOff: 4061, TrailerOff: 4080,
			IndexEntry: 24, NodeEntry: 32, BlockEntry: 24,
			HeaderSize: 564, SubnodeHdr: 8, XBlockHeader: 8,
		}
	}
	return PageLayout{}
}
