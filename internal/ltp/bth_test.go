package ltp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

func bthHeader(keySize, entrySize, levels uint8, root ndb.HID) []byte {
	b := []byte{byte(SigBTH), keySize, entrySize, levels, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(b[4:], uint32(root))
	return b
}

func u16rec(key uint16, data byte) []byte {
	b := make([]byte, 3)
	binary.LittleEndian.PutUint16(b, key)
	b[2] = data
	return b
}

func TestBTH_TwoLevels(t *testing.T) {
	leaf1 := append(u16rec(1, 'a'), u16rec(5, 'b')...)
	leaf2 := append(u16rec(9, 'c'), u16rec(12, 'd')...)
	index := make([]byte, 12)
	binary.LittleEndian.PutUint16(index[0:], 1)
	binary.LittleEndian.PutUint32(index[2:], uint32(ndb.MakeHID(0, 1)))
	binary.LittleEndian.PutUint16(index[6:], 9)
	binary.LittleEndian.PutUint32(index[8:], uint32(ndb.MakeHID(0, 2)))

	h := testHeap(t, SigBTH, ndb.MakeHID(0, 4),
		leaf1, leaf2, index, bthHeader(2, 1, 1, ndb.MakeHID(0, 3)))

	bth, err := OpenBTH(h, h.Root())
	require.NoError(t, err)
	require.Equal(t, BTHHeader{KeySize: 2, EntrySize: 1, Levels: 1, Root: ndb.MakeHID(0, 3)}, bth.Header())

	keys, err := Collect(bth, func(r Record) (uint16, error) {
		return binary.LittleEndian.Uint16(r.Key), nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint16{1, 5, 9, 12}, keys)

	r, ok, err := bth.Find([]byte{12, 0})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("d"), r.Data)

	_, ok, err = bth.Find([]byte{7, 0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBTH_Empty(t *testing.T) {
	h := testHeap(t, SigBTH, ndb.MakeHID(0, 1), bthHeader(4, 4, 0, 0))
	bth, err := OpenBTH(h, h.Root())
	require.NoError(t, err)
	n := 0
	require.NoError(t, bth.Walk(func(Record) error { n++; return nil }))
	require.Zero(t, n)
}

func TestBTH_BadHeader(t *testing.T) {
	cases := map[string][]byte{
		"key size":    bthHeader(3, 4, 0, 0),
		"entry zero":  bthHeader(2, 0, 0, 0),
		"entry large": bthHeader(2, 33, 0, 0),
		"short":       bthHeader(2, 6, 0, 0)[:6],
		"type":        append([]byte{byte(SigPC)}, bthHeader(2, 6, 0, 0)[1:]...),
	}
	for name, hdr := range cases {
		t.Run(name, func(t *testing.T) {
			h := testHeap(t, SigBTH, ndb.MakeHID(0, 1), hdr)
			_, err := OpenBTH(h, h.Root())
			require.ErrorIs(t, err, ndb.ErrStructural)
		})
	}
}

func TestBTH_RaggedLeaf(t *testing.T) {
	h := testHeap(t, SigBTH, ndb.MakeHID(0, 2), []byte{1, 0, 'a', 2}, bthHeader(2, 1, 0, ndb.MakeHID(0, 1)))
	bth, err := OpenBTH(h, h.Root())
	require.NoError(t, err)
	require.ErrorIs(t, bth.Walk(func(Record) error { return nil }), ndb.ErrStructural)
}
