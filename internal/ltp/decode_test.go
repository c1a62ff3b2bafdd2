package ltp

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

func TestDecode_MultiFixed(t *testing.T) {
	b := make([]byte, 16)
	want := []int32{7, -1, 0x12345678, 42}
	for i, v := range want {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
	}
	v, err := Options{}.decodeVariable(PtypMultipleInteger32, b)
	require.NoError(t, err)
	require.Equal(t, MultiInt32(want), v)

	_, err = Options{}.decodeVariable(PtypMultipleInteger32, b[:15])
	var sizeErr *InvalidPropertySizeError
	require.ErrorAs(t, err, &sizeErr)
	require.Equal(t, 15, sizeErr.Actual)
	require.ErrorIs(t, err, ndb.ErrStructural)

	v, err = Options{}.decodeVariable(PtypMultipleInteger64, nil)
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestDecode_MultiVariable(t *testing.T) {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:], 2)
	binary.LittleEndian.PutUint32(b[4:], 12)
	binary.LittleEndian.PutUint32(b[8:], 17)
	b = append(b, "hello"...)
	b = append(b, "world!"...)

	v, err := Options{}.decodeVariable(PtypMultipleString8, b)
	require.NoError(t, err)
	require.Equal(t, MultiString8{"hello", "world!"}, v)

	v, err = Options{}.decodeVariable(PtypMultipleBinary, b)
	require.NoError(t, err)
	require.Equal(t, MultiBinary{[]byte("hello"), []byte("world!")}, v)

	bad := append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(bad[8:], 99)
	_, err = Options{}.decodeVariable(PtypMultipleString8, bad)
	require.ErrorIs(t, err, ndb.ErrStructural)

	bad = append([]byte(nil), b...)
	binary.LittleEndian.PutUint32(bad[0:], 1000)
	_, err = Options{}.decodeVariable(PtypMultipleString8, bad)
	require.ErrorIs(t, err, ndb.ErrStructural)
}

func TestDecode_Strings(t *testing.T) {
	v, err := Options{}.decodeVariable(PtypString, []byte{'H', 0, 'i', 0, 0xAC, 0x20, 0, 0})
	require.NoError(t, err)
	require.Equal(t, String("Hi€"), v)

	_, err = Options{}.decodeVariable(PtypString, []byte{'H', 0, 'i'})
	require.ErrorIs(t, err, ndb.ErrStructural)

	v, err = Options{}.decodeVariable(PtypString8, []byte{'a', 0x80})
	require.NoError(t, err)
	require.Equal(t, String8("a€"), v)

	v, err = Options{String8: charmap.ISO8859_5}.decodeVariable(PtypString8, []byte{0xB0})
	require.NoError(t, err)
	require.Equal(t, String8("А"), v)

	v, err = Options{}.decodeVariable(PtypString, nil)
	require.NoError(t, err)
	require.Equal(t, String(""), v)
}

func TestDecode_ServerID(t *testing.T) {
	v, err := Options{}.decodeVariable(PtypServerID, []byte{3, 0, 1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, ServerID{1, 2, 3}, v)

	_, err = Options{}.decodeVariable(PtypServerID, []byte{9, 0, 1})
	require.ErrorIs(t, err, ndb.ErrStructural)
}

func TestDecode_Fixed(t *testing.T) {
	ft := uint64(133170048000000000)
	v, err := decodeFixed(PtypTime, binary.LittleEndian.AppendUint64(nil, ft))
	require.NoError(t, err)
	require.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), v.(Time).Time)

	require.Equal(t, time.Unix(0, 0).UTC(), FileTime(filetimeEpoch))
	require.Equal(t, time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC), FileTime(0))

	raw := []byte{0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	v, err = decodeFixed(PtypGuid, raw)
	require.NoError(t, err)
	require.Equal(t, uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"), uuid.UUID(v.(GUID)))

	v, err = decodeFixed(PtypInteger16, []byte{0xFE, 0xFF})
	require.NoError(t, err)
	require.Equal(t, Int16(-2), v)

	v, err = decodeFixed(PtypBoolean, []byte{1})
	require.NoError(t, err)
	require.Equal(t, Bool(true), v)

	_, err = decodeFixed(PtypInteger64, []byte{1, 2, 3, 4})
	var sizeErr *InvalidPropertySizeError
	require.ErrorAs(t, err, &sizeErr)
	require.Equal(t, InvalidPropertySizeError{Type: PtypInteger64, Expected: 8, Actual: 4}, *sizeErr)
}

func TestDecode_Unsupported(t *testing.T) {
	for _, typ := range []PropType{PtypRestriction, PtypRuleAction, PtypNull, PropType(0x1234)} {
		require.False(t, typ.Supported(), typ.String())
		_, err := Options{}.decodeVariable(typ, []byte{1, 2, 3, 4})
		require.ErrorIs(t, err, ndb.ErrUnsupported)
		var ut *UnsupportedTypeError
		require.True(t, errors.As(err, &ut))
		require.Equal(t, typ, ut.Type)
	}
	require.True(t, PtypMultipleGuid.Supported())
	require.False(t, PropType(0x100B).Supported())
}

func TestAccessors(t *testing.T) {
	s, err := AsString(String8("x"))
	require.NoError(t, err)
	require.Equal(t, "x", s)

	_, err = AsString(Int32(1))
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = AsBool(nil)
	require.ErrorIs(t, err, ErrTypeMismatch)

	n, err := AsInt64(Int16(-3))
	require.NoError(t, err)
	require.EqualValues(t, -3, n)

	i, err := AsInt32(Int32(9))
	require.NoError(t, err)
	require.EqualValues(t, 9, i)
	_, err = AsInt32(Int64(9))
	require.ErrorIs(t, err, ErrTypeMismatch)

	f, err := AsFloat64(Float32(1.5))
	require.NoError(t, err)
	require.Equal(t, 1.5, f)

	b, err := AsBinary(ServerID{1})
	require.NoError(t, err)
	require.Equal(t, []byte{1}, b)

	ss, err := AsStrings(MultiString{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ss)

	o, err := AsObject(ObjectRef{NID: 0x8022, Size: 10})
	require.NoError(t, err)
	require.EqualValues(t, 10, o.Size)

	tm, err := AsTime(Time{time.Unix(5, 0)})
	require.NoError(t, err)
	require.Equal(t, int64(5), tm.Unix())

	g, err := AsGUID(GUID(uuid.Nil))
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, g)
}

func TestPropTag(t *testing.T) {
	tag := MakeTag(0x3001, PtypString)
	require.Equal(t, PropTag(0x3001001F), tag)
	require.Equal(t, PropID(0x3001), tag.ID())
	require.Equal(t, PtypString, tag.Type())
	require.True(t, PtypMultipleString.Multiple())
	require.Equal(t, PtypString, PtypMultipleString.Elem())
	require.Equal(t, 4, PtypGuid.cellSize())
	require.Equal(t, 8, PtypTime.cellSize())
	require.Equal(t, 1, PtypBoolean.cellSize())
}
