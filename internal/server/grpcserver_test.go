package server_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/S0me0neR0man/ourpst/internal/client"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb/pstdbtest"
	"github.com/S0me0neR0man/ourpst/internal/server"
)

const testToken = "s3cret"

func startServer(t *testing.T, opts pstdb.Options) *bufconn.Listener {
	t.Helper()
	store := pstdbtest.Open(t, ndb.FormatUnicode, opts)
	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(store, testToken, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	t.Cleanup(func() {
		cancel()
		srv.Wait()
		require.NoError(t, <-done)
	})
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener, tok string) *client.GRPCClient {
	t.Helper()
	c, err := client.NewGRPCClient("passthrough:///bufnet", tok,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPCServer(t *testing.T) {
	lis := startServer(t, pstdb.Options{})
	c := dial(t, lis, testToken)
	ctx := context.Background()

	node, err := c.LookupNode(ctx, pstdbtest.InboxNID)
	require.NoError(t, err)
	require.EqualValues(t, pstdbtest.InboxNID, node["nid"])
	require.NotZero(t, node["data_bid"])

	props, err := c.GetProperties(ctx, ndb.NIDMessageStore)
	require.NoError(t, err)
	require.Equal(t, pstdbtest.StoreDisplayName, props["0x3001"])
	require.Equal(t, "3q2+7w==", props["0x0ff9"])

	rows, err := c.GetTable(ctx, pstdbtest.RootHierarchyNID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	require.EqualValues(t, pstdbtest.InboxNID, first["row_id"])
	require.Equal(t, map[string]any{"0x3001": "Inbox", "0x3602": float64(2), "0x360a": false}, first["values"])

	ids, err := c.GetRowIDs(ctx, pstdbtest.InboxContentsNID)
	require.NoError(t, err)
	require.Equal(t, []uint32{uint32(pstdbtest.MessageNID), uint32(pstdbtest.BrokenNID)}, ids)
}

func TestGRPCServer_Errors(t *testing.T) {
	lis := startServer(t, pstdb.Options{})
	ctx := context.Background()

	_, err := dial(t, lis, "wrong").LookupNode(ctx, pstdbtest.InboxNID)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = dial(t, lis, "").LookupNode(ctx, pstdbtest.InboxNID)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	c := dial(t, lis, testToken)
	_, err = c.LookupNode(ctx, ndb.MakeNID(ndb.NIDTypeNormalFolder, 0x7777))
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.GetTable(ctx, pstdbtest.MessageNID)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.GetProperties(ctx, pstdbtest.BrokenNID)
	require.Equal(t, codes.Unimplemented, status.Code(err))

	_, err = c.GetProperties(ctx, pstdbtest.CorruptNID)
	require.Equal(t, codes.DataLoss, status.Code(err))
}

func TestGRPCServer_Lenient(t *testing.T) {
	lis := startServer(t, pstdb.Options{Lenient: true})
	props, err := dial(t, lis, testToken).GetProperties(context.Background(), pstdbtest.BrokenNID)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"0x0037": "Broken"}, props)
}
