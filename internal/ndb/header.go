package ndb

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	headerMagic       = 0x4E444221 // "!BDN"
	headerMagicClient = 0x4D53     // "SM"
	headerVerClient   = 19
	headerSentinel    = 0x80

	versionANSIMin   = 14
	versionANSIMax   = 15
	versionUnicode   = 23
	versionUnicode4K = 36
)

// Header is the parsed file header.
type Header struct {
	Format        Format
	Version       uint16
	ClientVersion uint16
	CryptMethod   CryptMethod
	CRCPartial    uint32
	CRCFull       uint32
	Unique        uint32
	NextBID       BID
	NextPageBID   BID
	FileEOF       IB
	AMapLast      IB
	AMapValid     uint8
	NodeRoot      BREF
	BlockRoot     BREF
}

type headerOffsets struct {
	root, nodeRoot, blockRoot, sentinel, crypt, nextB, nextP, unique, crcFull int
}

var (
	ansiOffsets    = headerOffsets{root: 164, nodeRoot: 184, blockRoot: 192, sentinel: 460, crypt: 461, nextB: 24, nextP: 28, unique: 32}
	unicodeOffsets = headerOffsets{root: 180, nodeRoot: 216, blockRoot: 232, sentinel: 512, crypt: 513, nextB: 516, nextP: 32, unique: 40, crcFull: 524}
)

// ReadHeader reads and parses the header at the start of src.
func ReadHeader(src io.ReaderAt) (*Header, error) {
	buf := make([]byte, FormatUnicode.Layout().HeaderSize)
	n, err := src.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return ParseHeader(buf[:n])
}

// ParseHeader validates the fixed magic fields, decides the format variant
// from the version and decodes the root B-tree references.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < 24 {
		return nil, headerf("%d bytes is too short", len(b))
	}
	if magic := binary.LittleEndian.Uint32(b[0:]); magic != headerMagic {
		return nil, headerf("bad magic 0x%08x", magic)
	}
	if mc := binary.LittleEndian.Uint16(b[8:]); mc != headerMagicClient {
		return nil, headerf("bad client magic 0x%04x", mc)
	}
	h := &Header{
		CRCPartial:    binary.LittleEndian.Uint32(b[4:]),
		Version:       binary.LittleEndian.Uint16(b[10:]),
		ClientVersion: binary.LittleEndian.Uint16(b[12:]),
	}
	if h.ClientVersion != headerVerClient {
		return nil, headerf("bad client version %d", h.ClientVersion)
	}

	switch {
	case h.Version >= versionANSIMin && h.Version <= versionANSIMax:
		h.Format = FormatANSI
	case h.Version == versionUnicode:
		h.Format = FormatUnicode
	case h.Version == versionUnicode4K:
		h.Format = FormatUnicode4K
	default:
		return nil, headerf("unknown version %d", h.Version)
	}

	f := h.Format
	if len(b) < f.Layout().HeaderSize {
		return nil, headerf("%d bytes is too short for a %s header", len(b), f)
	}
	off := unicodeOffsets
	if f == FormatANSI {
		off = ansiOffsets
	}

	if s := b[off.sentinel]; s != headerSentinel {
		return nil, headerf("bad sentinel 0x%02x", s)
	}
	h.CryptMethod = CryptMethod(b[off.crypt])
	if !h.CryptMethod.Valid() {
		return nil, headerf("unknown crypt method 0x%02x", uint8(h.CryptMethod))
	}
	h.Unique = binary.LittleEndian.Uint32(b[off.unique:])
	if f != FormatANSI {
		h.CRCFull = binary.LittleEndian.Uint32(b[off.crcFull:])
	}

	var err error
	if h.NextBID, err = ReadBID(f, b, off.nextB); err != nil {
		return nil, headerf("next bid: %v", err)
	}
	if h.NextPageBID, err = ReadBID(f, b, off.nextP); err != nil {
		return nil, headerf("next page bid: %v", err)
	}
	// ROOT: dwReserved, ibFileEof, ibAMapLast, cbAMapFree, cbPMapFree,
	// BREFNBT, BREFBBT, fAMapValid.
	if h.FileEOF, err = ReadIB(f, b, off.root+4); err != nil {
		return nil, headerf("file eof: %v", err)
	}
	if h.AMapLast, err = ReadIB(f, b, off.root+4+f.IDSize()); err != nil {
		return nil, headerf("amap last: %v", err)
	}
	if h.NodeRoot, err = ReadBREF(f, b, off.nodeRoot); err != nil {
		return nil, headerf("node root: %v", err)
	}
	if h.BlockRoot, err = ReadBREF(f, b, off.blockRoot); err != nil {
		return nil, headerf("block root: %v", err)
	}
	h.AMapValid = b[off.blockRoot+f.BREFSize()]
	return h, nil
}
