package pstdb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

func TestPlain(t *testing.T) {
	g := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	ts := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		in   ltp.Value
		want any
	}{
		{ltp.Int16(-2), int64(-2)},
		{ltp.Int32(7), int64(7)},
		{ltp.Int64(1 << 40), int64(1 << 40)},
		{ltp.ErrorCode(0x80004005), int64(0x80004005)},
		{ltp.Float32(1.5), float64(1.5)},
		{ltp.Bool(true), true},
		{ltp.String("héllo"), "héllo"},
		{ltp.String8("ansi"), "ansi"},
		{ltp.Time{Time: ts}, "2023-01-01T12:00:00Z"},
		{ltp.GUID(g), "00112233-4455-6677-8899-aabbccddeeff"},
		{ltp.Binary{1, 2, 3}, "AQID"},
		{ltp.ObjectRef{NID: 0x8022, Size: 9}, map[string]any{"nid": int64(0x8022), "size": int64(9)}},
		{ltp.MultiInt32{1, -1}, []any{int64(1), int64(-1)}},
		{ltp.MultiString{"a", "b"}, []any{"a", "b"}},
		{ltp.MultiGUID{g}, []any{"00112233-4455-6677-8899-aabbccddeeff"}},
		{ltp.MultiBinary{{0xFF}}, []any{"/w=="}},
		{ltp.MultiTime{ts}, []any{"2023-01-01T12:00:00Z"}},
		{nil, nil},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Plain(c.in), "%T", c.in)
	}
}

func TestPlainRow(t *testing.T) {
	row := &ltp.Row{ID: uint32(ndb.MakeNID(ndb.NIDTypeNormalMessage, 1)), Values: map[ltp.PropID]ltp.Value{
		0x0037: ltp.String("Hello"),
		0x0E08: ltp.Int32(10),
	}}
	b, err := json.Marshal(PlainRow(row))
	require.NoError(t, err)
	require.JSONEq(t, `{"row_id":36,"values":{"0x0037":"Hello","0x0e08":10}}`, string(b))
}
