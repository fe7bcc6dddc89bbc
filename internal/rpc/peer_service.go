package rpc

import (
	"context"
	"fmt"

	qerrors "github.com/basecamp/federatedkv/internal/errors"
	"github.com/basecamp/federatedkv/internal/model"
	"google.golang.org/grpc"
)

const (
	serviceName        = "federatedkv.PeerService"
	methodQueryData     = "/federatedkv.PeerService/QueryData"
	methodGatherData    = "/federatedkv.PeerService/GatherData"
)

// PeerServiceServer is implemented by internal/handler.PeerHandler.
type PeerServiceServer interface {
	QueryData(context.Context, *model.QueryRequest) (*model.QueryResponse, error)
	GatherData(context.Context, *model.DataRequest) (*model.DataResponse, error)
}

// PeerServiceClient is the generated-style client stub used by
// internal/client.PeerPool.
type PeerServiceClient interface {
	QueryData(ctx context.Context, in *model.QueryRequest, opts ...grpc.CallOption) (*model.QueryResponse, error)
	GatherData(ctx context.Context, in *model.DataRequest, opts ...grpc.CallOption) (*model.DataResponse, error)
}

type peerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerServiceClient wraps cc with the PeerService client stub.
func NewPeerServiceClient(cc grpc.ClientConnInterface) PeerServiceClient {
	return &peerServiceClient{cc: cc}
}

func (c *peerServiceClient) QueryData(ctx context.Context, in *model.QueryRequest, opts ...grpc.CallOption) (*model.QueryResponse, error) {
	out := new(model.QueryResponse)
	if err := c.cc.Invoke(ctx, methodQueryData, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *peerServiceClient) GatherData(ctx context.Context, in *model.DataRequest, opts ...grpc.CallOption) (*model.DataResponse, error) {
	out := new(model.DataResponse)
	if err := c.cc.Invoke(ctx, methodGatherData, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func queryDataHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.QueryRequest)
	if err := dec(in); err != nil {
		return nil, decodeFailure(methodQueryData, err)
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).QueryData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodQueryData}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServiceServer).QueryData(ctx, req.(*model.QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func gatherDataHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(model.DataRequest)
	if err := dec(in); err != nil {
		return nil, decodeFailure(methodGatherData, err)
	}
	if interceptor == nil {
		return srv.(PeerServiceServer).GatherData(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGatherData}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServiceServer).GatherData(ctx, req.(*model.DataRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// decodeFailure is the one transport-level failure this service
// produces: a request whose bytes can't even be unmarshaled into a
// model type, so application logic never gets a chance to fold it
// into an in-band success=false reply the way every other failure
// this service returns is handled.
func decodeFailure(method string, cause error) error {
	return qerrors.DecodeFailed(fmt.Sprintf("malformed request for %s", method), cause).ToGRPCStatus().Err()
}

// ServiceDesc is the grpc.ServiceDesc a protoc-gen-go-grpc generated
// file would have produced for PeerService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PeerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryData", Handler: queryDataHandler},
		{MethodName: "GatherData", Handler: gatherDataHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "peer_service.go",
}

// RegisterPeerServiceServer registers srv on s using ServiceDesc.
func RegisterPeerServiceServer(s grpc.ServiceRegistrar, srv PeerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
