package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/S0me0neR0man/ourpst/internal/grpcproto"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/token"
)

type GRPCClient struct {
	conn   *grpc.ClientConn
	client grpcproto.InspectClient
}

// NewGRPCClient connects to an Inspect server at addr. Extra options are
// appended to the defaults, so tests can swap the dialer.
func NewGRPCClient(addr, tok string, extra ...grpc.DialOption) (*GRPCClient, error) {
	opts := []grpc.DialOption{
		grpc.WithPerRPCCredentials(&token.Tokens{Token: tok}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn, client: grpcproto.NewInspectClient(conn)}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) LookupNode(ctx context.Context, nid ndb.NID) (map[string]any, error) {
	resp, err := c.client.LookupNode(ctx, wrapperspb.UInt32(uint32(nid)))
	if err != nil {
		return nil, fmt.Errorf("lookup node %s: %w", nid, err)
	}
	return resp.AsMap(), nil
}

func (c *GRPCClient) GetProperties(ctx context.Context, nid ndb.NID) (map[string]any, error) {
	resp, err := c.client.GetProperties(ctx, wrapperspb.UInt32(uint32(nid)))
	if err != nil {
		return nil, fmt.Errorf("get properties %s: %w", nid, err)
	}
	return resp.AsMap(), nil
}

func (c *GRPCClient) GetTable(ctx context.Context, nid ndb.NID) ([]any, error) {
	resp, err := c.client.GetTable(ctx, wrapperspb.UInt32(uint32(nid)))
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", nid, err)
	}
	return resp.AsSlice(), nil
}

func (c *GRPCClient) GetRowIDs(ctx context.Context, nid ndb.NID) ([]uint32, error) {
	resp, err := c.client.GetRowIDs(ctx, wrapperspb.UInt32(uint32(nid)))
	if err != nil {
		return nil, fmt.Errorf("get row ids %s: %w", nid, err)
	}
	ids := make([]uint32, len(resp.GetValues()))
	for i, v := range resp.GetValues() {
		ids[i] = uint32(v.GetNumberValue())
	}
	return ids, nil
}
