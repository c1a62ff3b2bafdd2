// Package grpcproto declares the Inspect gRPC service. Requests and responses
// are protobuf well-known types, so no generated messages are needed.
package grpcproto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "ourpst.Inspect"

	LookupNodeMethod    = "/ourpst.Inspect/LookupNode"
	GetPropertiesMethod = "/ourpst.Inspect/GetProperties"
	GetTableMethod      = "/ourpst.Inspect/GetTable"
	GetRowIDsMethod     = "/ourpst.Inspect/GetRowIDs"
)

// InspectServer is the server API. Every method takes a node id.
//
// LookupNode returns {nid, data_bid, subnode_bid, parent_nid}; GetProperties
// the property map keyed by hex id; GetTable a list of {row_id, values};
// GetRowIDs the row ids in row order.
type InspectServer interface {
	LookupNode(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	GetProperties(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error)
	GetTable(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error)
	GetRowIDs(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error)
}

// UnimplementedInspectServer can be embedded for forward compatibility.
type UnimplementedInspectServer struct{}

func (UnimplementedInspectServer) LookupNode(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method LookupNode not implemented")
}

func (UnimplementedInspectServer) GetProperties(context.Context, *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetProperties not implemented")
}

func (UnimplementedInspectServer) GetTable(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetTable not implemented")
}

func (UnimplementedInspectServer) GetRowIDs(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetRowIDs not implemented")
}

func RegisterInspectServer(s grpc.ServiceRegistrar, srv InspectServer) {
	s.RegisterService(&Inspect_ServiceDesc, srv)
}

func handler[Resp any](method string, call func(InspectServer, context.Context, *wrapperspb.UInt32Value) (Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.UInt32Value)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InspectServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InspectServer), ctx, req.(*wrapperspb.UInt32Value))
		}
		return interceptor(ctx, in, info, h)
	}
}

// Inspect_ServiceDesc is the grpc.ServiceDesc for the Inspect service.
var Inspect_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LookupNode", Handler: handler(LookupNodeMethod, InspectServer.LookupNode)},
		{MethodName: "GetProperties", Handler: handler(GetPropertiesMethod, InspectServer.GetProperties)},
		{MethodName: "GetTable", Handler: handler(GetTableMethod, InspectServer.GetTable)},
		{MethodName: "GetRowIDs", Handler: handler(GetRowIDsMethod, InspectServer.GetRowIDs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ourpst/inspect",
}

// InspectClient is the client API of the Inspect service.
type InspectClient interface {
	LookupNode(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetProperties(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetTable(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.ListValue, error)
	GetRowIDs(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type inspectClient struct {
	cc grpc.ClientConnInterface
}

func NewInspectClient(cc grpc.ClientConnInterface) InspectClient {
	return &inspectClient{cc}
}

func (c *inspectClient) LookupNode(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, LookupNodeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inspectClient) GetProperties(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetPropertiesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inspectClient) GetTable(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, GetTableMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inspectClient) GetRowIDs(ctx context.Context, in *wrapperspb.UInt32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, GetRowIDsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
