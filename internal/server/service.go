// gRPC service descriptor and client for bookquery.v1.CatalogService.
// Messages are protobuf well-known types, so no generated code is needed.
package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "bookquery.v1.CatalogService"

// Full method names
const (
	MethodListQueries = "/" + ServiceName + "/ListQueries"
	MethodExecute     = "/" + ServiceName + "/Execute"
	MethodExplain     = "/" + ServiceName + "/Explain"
	MethodHealth      = "/" + ServiceName + "/Health"
	MethodStats       = "/" + ServiceName + "/Stats"
)

// CatalogServiceServer is the server API for CatalogService. Execute and
// Explain take {"name": "<query>"}.
type CatalogServiceServer interface {
	ListQueries(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Explain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterCatalogServiceServer registers srv with s.
func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(CatalogServiceServer, context.Context, *Req) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CatalogServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CatalogServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CatalogServiceDesc describes CatalogService for grpc.Server.
var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListQueries", Handler: unaryHandler(MethodListQueries, CatalogServiceServer.ListQueries)},
		{MethodName: "Execute", Handler: unaryHandler(MethodExecute, CatalogServiceServer.Execute)},
		{MethodName: "Explain", Handler: unaryHandler(MethodExplain, CatalogServiceServer.Explain)},
		{MethodName: "Health", Handler: unaryHandler(MethodHealth, CatalogServiceServer.Health)},
		{MethodName: "Stats", Handler: unaryHandler(MethodStats, CatalogServiceServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookquery/v1/catalog.proto",
}

// CatalogClient calls CatalogService over a client connection.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) ListQueries(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListQueries, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) Execute(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.named(ctx, MethodExecute, name, opts)
}

func (c *CatalogClient) Explain(ctx context.Context, name string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.named(ctx, MethodExplain, name, opts)
}

func (c *CatalogClient) Health(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodHealth, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodStats, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogClient) named(ctx context.Context, method, name string, opts []grpc.CallOption) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{"name": structpb.NewStringValue(name)}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
