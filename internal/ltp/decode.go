package ltp

import (
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Options tune value decoding.
type Options struct {
	// Lenient makes whole-context reads skip values that fail to decode.
	Lenient bool
	// String8 decodes PtypString8 values; Windows-1252 when nil.
	String8 encoding.Encoding
}

func (o Options) string8() encoding.Encoding {
	if o.String8 == nil {
		return charmap.Windows1252
	}
	return o.String8
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// filetimeEpoch is 1970-01-01 in 100ns ticks since 1601-01-01.
const filetimeEpoch = 116444736000000000

// FileTime converts a FILETIME to UTC time.
func FileTime(ft uint64) time.Time {
	d := int64(ft - filetimeEpoch) // wraps to the negative offset before 1970
	return time.Unix(d/1e7, d%1e7*100).UTC()
}

// GUIDFromBytes converts a stored GUID (first three fields little endian)
// to RFC 4122 byte order.
func GUIDFromBytes(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}

// decodeFixed decodes a fixed-size value from exactly FixedSize bytes.
func decodeFixed(t PropType, b []byte) (Value, error) {
	if n := t.FixedSize(); len(b) != n {
		return nil, &InvalidPropertySizeError{Type: t, Expected: n, Actual: len(b)}
	}
	le := binary.LittleEndian
	switch t {
	case PtypBoolean:
		return Bool(b[0] != 0), nil
	case PtypInteger16:
		return Int16(le.Uint16(b)), nil
	case PtypInteger32:
		return Int32(le.Uint32(b)), nil
	case PtypFloating32:
		return Float32(math.Float32frombits(le.Uint32(b))), nil
	case PtypErrorCode:
		return ErrorCode(le.Uint32(b)), nil
	case PtypFloating64:
		return Float64(math.Float64frombits(le.Uint64(b))), nil
	case PtypCurrency:
		return Currency(le.Uint64(b)), nil
	case PtypFloatingTime:
		return FloatingTime(math.Float64frombits(le.Uint64(b))), nil
	case PtypInteger64:
		return Int64(le.Uint64(b)), nil
	case PtypTime:
		return Time{FileTime(le.Uint64(b))}, nil
	case PtypGuid:
		return GUID(GUIDFromBytes(b)), nil
	}
	return nil, &UnsupportedTypeError{Type: t}
}

// decodeVariable decodes a variable-size or multi-valued value from its
// whole payload. An empty payload is an empty value.
func (o Options) decodeVariable(t PropType, b []byte) (Value, error) {
	if !t.Supported() {
		return nil, &UnsupportedTypeError{Type: t}
	}
	switch t {
	case PtypString:
		s, err := o.utf16(b)
		return String(s), err
	case PtypString8:
		s, err := o.ansi(b)
		return String8(s), err
	case PtypBinary:
		return Binary(clone(b)), nil
	case PtypServerID:
		if len(b) == 0 {
			return ServerID{}, nil
		}
		if len(b) < 2 {
			return nil, &InvalidPropertySizeError{Type: t, Expected: 2, Actual: len(b)}
		}
		n := int(binary.LittleEndian.Uint16(b))
		if n > len(b)-2 {
			return nil, &InvalidPropertySizeError{Type: t, Expected: n + 2, Actual: len(b)}
		}
		return ServerID(clone(b[2 : 2+n])), nil
	}

	if !t.Multiple() {
		return nil, &UnsupportedTypeError{Type: t}
	}
	if size := t.Elem().FixedSize(); size > 0 {
		return decodeMultiFixed(t, size, b)
	}

	parts, err := splitMulti(t, b)
	if err != nil {
		return nil, err
	}
	switch t {
	case PtypMultipleString:
		out := make(MultiString, len(parts))
		for i, p := range parts {
			if out[i], err = o.utf16(p); err != nil {
				return nil, err
			}
		}
		return out, nil
	case PtypMultipleString8:
		out := make(MultiString8, len(parts))
		for i, p := range parts {
			if out[i], err = o.ansi(p); err != nil {
				return nil, err
			}
		}
		return out, nil
	case PtypMultipleBinary:
		out := make(MultiBinary, len(parts))
		for i, p := range parts {
			out[i] = clone(p)
		}
		return out, nil
	}
	return nil, &UnsupportedTypeError{Type: t}
}

func decodeMultiFixed(t PropType, size int, b []byte) (Value, error) {
	if len(b)%size != 0 {
		return nil, &InvalidPropertySizeError{Type: t, Expected: len(b) / size * size, Actual: len(b)}
	}
	n := len(b) / size
	le := binary.LittleEndian
	switch t {
	case PtypMultipleInteger16:
		out := make(MultiInt16, n)
		for i := range out {
			out[i] = int16(le.Uint16(b[i*size:]))
		}
		return out, nil
	case PtypMultipleInteger32:
		out := make(MultiInt32, n)
		for i := range out {
			out[i] = int32(le.Uint32(b[i*size:]))
		}
		return out, nil
	case PtypMultipleFloating32:
		out := make(MultiFloat32, n)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(b[i*size:]))
		}
		return out, nil
	case PtypMultipleFloating64:
		out := make(MultiFloat64, n)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(b[i*size:]))
		}
		return out, nil
	case PtypMultipleCurrency:
		out := make(MultiCurrency, n)
		for i := range out {
			out[i] = int64(le.Uint64(b[i*size:]))
		}
		return out, nil
	case PtypMultipleFloatingTime:
		out := make(MultiFloatingTime, n)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(b[i*size:]))
		}
		return out, nil
	case PtypMultipleInteger64:
		out := make(MultiInt64, n)
		for i := range out {
			out[i] = int64(le.Uint64(b[i*size:]))
		}
		return out, nil
	case PtypMultipleTime:
		out := make(MultiTime, n)
		for i := range out {
			out[i] = FileTime(le.Uint64(b[i*size:]))
		}
		return out, nil
	case PtypMultipleGuid:
		out := make(MultiGUID, n)
		for i := range out {
			out[i] = GUIDFromBytes(b[i*size:])
		}
		return out, nil
	}
	return nil, &UnsupportedTypeError{Type: t}
}

// splitMulti cuts a multi-valued variable-size payload: ulCount, then
// ulCount start offsets from the payload start; each element ends where the
// next starts, the last one at the end of the payload.
func splitMulti(t PropType, b []byte) ([][]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 4 {
		return nil, &InvalidPropertySizeError{Type: t, Expected: 4, Actual: len(b)}
	}
	n := int(binary.LittleEndian.Uint32(b))
	if n > (len(b)-4)/4 {
		return nil, structuralf("%s with %d values in %d bytes", t, n, len(b))
	}
	offs := make([]int, n+1)
	for i := 0; i < n; i++ {
		offs[i] = int(binary.LittleEndian.Uint32(b[4+4*i:]))
	}
	offs[n] = len(b)
	parts := make([][]byte, n)
	for i := 0; i < n; i++ {
		if offs[i] > offs[i+1] || offs[i+1] > len(b) {
			return nil, structuralf("%s value %d spans %d..%d of %d bytes", t, i, offs[i], offs[i+1], len(b))
		}
		parts[i] = b[offs[i]:offs[i+1]]
	}
	return parts, nil
}

func (o Options) utf16(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", &InvalidPropertySizeError{Type: PtypString, Expected: len(b) + 1, Actual: len(b)}
	}
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(s), "\x00"), nil
}

func (o Options) ansi(b []byte) (string, error) {
	s, err := o.string8().NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(s), "\x00"), nil
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte{}, b...)
}
