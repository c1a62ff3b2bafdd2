package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/S0me0neR0man/ourpst/internal/grpcproto"
	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
)

var (
	errMissingMetadata = status.Errorf(codes.InvalidArgument, "missing metadata")
	errInvalidToken    = status.Errorf(codes.Unauthenticated, "invalid token")
)

type GRPCServer struct {
	grpcproto.UnimplementedInspectServer

	store *pstdb.Store
	token string
	sugar *zap.SugaredLogger
	gserv *grpc.Server

	wg sync.WaitGroup
}

// NewGRPCServer serves store. A non-empty token must be presented by every
// call as "authorization: Bearer <token>".
func NewGRPCServer(store *pstdb.Store, token string, logger *zap.Logger) *GRPCServer {
	ss := &GRPCServer{
		store: store,
		token: token,
		sugar: logger.Sugar(),
	}
	ss.gserv = grpc.NewServer(grpc.UnaryInterceptor(ss.ensureValidToken))
	grpcproto.RegisterInspectServer(ss.gserv, ss)
	return ss
}

// Start listens on addr and serves until ctx is done.
func (ss *GRPCServer) Start(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ss.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (ss *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	ss.sugar.Infow("grpcserver start", "addr", lis.Addr().String())
	ss.wg.Add(1)
	go ss.gracefulStop(ctx)

	err := ss.gserv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (ss *GRPCServer) gracefulStop(ctx context.Context) {
	defer ss.wg.Done()

	<-ctx.Done()
	ss.gserv.GracefulStop()
	ss.sugar.Infow("grpcserver stopped")
}

func (ss *GRPCServer) Wait() {
	ss.wg.Wait()
}

func (ss *GRPCServer) ensureValidToken(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if ss.token == "" {
		return handler(ctx, req)
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, errMissingMetadata
	}
	// The keys within metadata.MD are normalized to lowercase.
	if !valid(md["authorization"], ss.token) {
		ss.sugar.Debugw("ensureValidToken: rejected", "method", info.FullMethod)
		return nil, errInvalidToken
	}
	return handler(ctx, req)
}

func valid(authorization []string, token string) bool {
	if len(authorization) < 1 {
		return false
	}
	got := strings.TrimPrefix(authorization[0], "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// statusOf maps decoder errors to gRPC codes.
func statusOf(err error) error {
	switch {
	case errors.Is(err, ndb.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ltp.ErrWrongContext):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ndb.ErrUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, pstdb.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ndb.ErrStructural), errors.Is(err, ltp.ErrTypeMismatch):
		return status.Error(codes.DataLoss, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func (ss *GRPCServer) LookupNode(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	e, err := ss.store.LookupNode(ndb.NID(in.GetValue()))
	if err != nil {
		return nil, statusOf(err)
	}
	return structpb.NewStruct(pstdb.PlainNode(e))
}

func (ss *GRPCServer) GetProperties(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.Struct, error) {
	props, err := ss.store.ReadPropertyContext(ndb.NID(in.GetValue()))
	if err != nil {
		ss.sugar.Debugw("GetProperties", "nid", in.GetValue(), "error", err)
		return nil, statusOf(err)
	}
	resp, err := structpb.NewStruct(pstdb.PlainProperties(props))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (ss *GRPCServer) GetTable(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	rows, err := ss.store.ReadTable(ndb.NID(in.GetValue()))
	if err != nil {
		ss.sugar.Debugw("GetTable", "nid", in.GetValue(), "error", err)
		return nil, statusOf(err)
	}
	list := make([]any, len(rows))
	for i, r := range rows {
		list[i] = pstdb.PlainRow(r)
	}
	resp, err := structpb.NewList(list)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (ss *GRPCServer) GetRowIDs(ctx context.Context, in *wrapperspb.UInt32Value) (*structpb.ListValue, error) {
	ids, err := ss.store.ReadTableRowIDs(ndb.NID(in.GetValue()))
	if err != nil {
		return nil, statusOf(err)
	}
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = int64(id)
	}
	return structpb.NewList(list)
}
