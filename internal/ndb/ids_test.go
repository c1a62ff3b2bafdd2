package ndb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNID_TypeIndexRoundTrip(t *testing.T) {
	raws := []uint32{0x21, 0x61, 0x122, 0x60D, 0x200003, 0xFFFFFFE4, 0x8022}
	for _, raw := range raws {
		n := NID(raw)
		require.EqualValues(t, raw&0x1F, n.Type())
		require.EqualValues(t, raw>>5, n.Index())
		require.Equal(t, n, MakeNID(n.Type(), n.Index()))
	}

	require.Equal(t, NIDTypeNormalFolder, NIDRootFolder.Type())
	require.Equal(t, NID(0x12E), NIDRootFolder.WithType(NIDTypeContentsTable))
}

func TestBID_BitsPreserved(t *testing.T) {
	for _, raw := range []uint64{0, 1, 2, 3, 4, 0x25, 0x26, 0xFFFFFFFFFFFFFFFF} {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, raw)
		bid, err := ReadBID(FormatUnicode, b, 0)
		require.NoError(t, err)
		require.EqualValues(t, raw, bid)
		require.Equal(t, (raw>>1)&1 == 1, bid.Internal())
		require.Equal(t, raw&1 == 1, bid.Reserved())
		require.Equal(t, raw>>2, bid.Index())
		require.EqualValues(t, raw&^1, bid.Masked())
	}

	b := []byte{0x27, 0, 0, 0}
	bid, err := ReadBID(FormatANSI, b, 0)
	require.NoError(t, err)
	require.True(t, bid.Internal())
	require.True(t, bid.Reserved())
	require.Equal(t, MakeBID(9, true), bid.Masked())
}

func TestReadID_Errors(t *testing.T) {
	_, err := ReadBID(Format(0), make([]byte, 8), 0)
	require.ErrorIs(t, err, ErrMalformedIdentifier)

	_, err = ReadBID(FormatUnicode, make([]byte, 7), 0)
	require.ErrorIs(t, err, ErrStructural)

	_, err = ReadIB(FormatANSI, make([]byte, 8), 6)
	require.ErrorIs(t, err, ErrStructural)
}

func TestReadNID_UnknownType(t *testing.T) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, 0x3F)
	_, err := ReadNID(b, 0)
	require.ErrorIs(t, err, ErrStructural)

	binary.LittleEndian.PutUint32(b, 0x122)
	n, err := ReadNID(b, 0)
	require.NoError(t, err)
	require.Equal(t, NIDRootFolder, n)
}

func TestHID(t *testing.T) {
	h := MakeHID(3, 7)
	require.EqualValues(t, 3, h.BlockIndex())
	require.EqualValues(t, 7, h.Index())
	require.Equal(t, NIDTypeHID, h.Type())
	require.Equal(t, HID(0x300E0), h)

	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(h))
	got, err := ReadHID(b, 0)
	require.NoError(t, err)
	require.Equal(t, h, got)

	binary.LittleEndian.PutUint32(b, 0x20|0x02)
	_, err = ReadHID(b, 0)
	require.ErrorIs(t, err, ErrStructural)
}

func TestHNID(t *testing.T) {
	require.True(t, HNID(0x20).IsHID())
	require.False(t, HNID(0x8022).IsHID())
	require.Equal(t, NIDTypeLTP, HNID(0x8022).NID().Type())

	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, 0x3E)
	_, err := ReadHNID(b, 0)
	require.ErrorIs(t, err, ErrStructural)
}

func TestComputeSig(t *testing.T) {
	require.EqualValues(t, 0, ComputeSig(0, 0))
	v := uint64(0x4600) ^ uint64(0x24)
	require.Equal(t, uint16(v>>16)^uint16(v), ComputeSig(0x4600, 0x24))
	require.Equal(t, uint16(0x0001^0x0002), ComputeSig(0x00010000, 0x2))
}
