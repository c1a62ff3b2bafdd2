package verify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb/pstdbtest"
	"github.com/S0me0neR0man/ourpst/internal/verify"
)

func TestChecker_Run(t *testing.T) {
	for _, f := range []ndb.Format{ndb.FormatANSI, ndb.FormatUnicode, ndb.FormatUnicode4K} {
		t.Run(f.String(), func(t *testing.T) {
			store := pstdbtest.Open(t, f, pstdb.Options{})
			c := verify.NewChecker(store, 4, zaptest.NewLogger(t))

			rep, err := c.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 12, rep.Nodes)
			assert.Equal(t, 7, rep.PCs)
			assert.Equal(t, 3, rep.TCs)
			assert.Equal(t, 1, rep.Raw)
			assert.False(t, rep.OK())

			require.Len(t, rep.Issues, 2)
			assert.Equal(t, pstdbtest.BrokenNID, rep.Issues[0].NID)
			assert.Equal(t, verify.KindUnsupported, rep.Issues[0].Kind)
			assert.Equal(t, pstdbtest.CorruptNID, rep.Issues[1].NID)
			assert.Equal(t, verify.KindStructural, rep.Issues[1].Kind)
			assert.ErrorIs(t, rep.Issues[1].Err, ndb.ErrStructural)
			assert.Equal(t, 1, rep.Count(verify.KindUnsupported))
			assert.Equal(t, 1, rep.Count(verify.KindStructural))
			assert.Zero(t, rep.Count(verify.KindOther))
		})
	}
}

func TestChecker_RunTwice(t *testing.T) {
	store := pstdbtest.Open(t, ndb.FormatUnicode, pstdb.Options{})
	c := verify.NewChecker(store, 0, zaptest.NewLogger(t))

	first, err := c.Run(context.Background())
	require.NoError(t, err)
	second, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Nodes, second.Nodes)
	require.Len(t, second.Issues, len(first.Issues))
	for i := range first.Issues {
		assert.Equal(t, first.Issues[i].NID, second.Issues[i].NID)
	}
}

func TestChecker_Canceled(t *testing.T) {
	store := pstdbtest.Open(t, ndb.FormatUnicode, pstdb.Options{})
	c := verify.NewChecker(store, 2, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Run(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestChecker_NotInitialized(t *testing.T) {
	_, err := verify.NewChecker(nil, 1, zaptest.NewLogger(t)).Run(context.Background())
	require.ErrorIs(t, err, verify.ErrNotInitialized)
}
