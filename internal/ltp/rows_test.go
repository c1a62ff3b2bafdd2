package ltp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

func TestTableContext_RowBytes(t *testing.T) {
	tc := &TableContext{
		rowWidth:     10,
		rowsPerBlock: 2,
		matrix:       [][]byte{make([]byte, 20), make([]byte, 15)},
	}

	b, err := tc.rowBytes(1)
	require.NoError(t, err)
	require.Len(t, b, 10)

	b, err = tc.rowBytes(2)
	require.NoError(t, err)
	require.Len(t, b, 10)

	// Second row of the short second block.
	_, err = tc.rowBytes(3)
	require.ErrorIs(t, err, ndb.ErrStructural)

	_, err = tc.rowBytes(4)
	require.ErrorIs(t, err, ndb.ErrStructural)
}

func TestTableContext_RowBytesInline(t *testing.T) {
	tc := &TableContext{rowWidth: 4, matrix: [][]byte{make([]byte, 12)}}

	_, err := tc.rowBytes(2)
	require.NoError(t, err)
	_, err = tc.rowBytes(3)
	require.ErrorIs(t, err, ndb.ErrStructural)

	tc = &TableContext{matrix: [][]byte{make([]byte, 12)}}
	_, err = tc.rowBytes(0)
	require.ErrorIs(t, err, ndb.ErrStructural)
}
