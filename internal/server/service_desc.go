package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// FilterServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages.
const FilterServiceName = "filterd.v1.FilterService"

// FilterService is the server API of FilterServiceName.
type FilterService interface {
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateResource(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetResource(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResources(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteResource(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	ListResourceDescriptors(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func fullMethod(method string) string {
	return "/" + FilterServiceName + "/" + method
}

func unaryHandler[Resp proto.Message](method string, call func(FilterService, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FilterService), ctx, req.(*structpb.Struct))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, handler)
	}
}

var FilterServiceDesc = grpc.ServiceDesc{
	ServiceName: FilterServiceName,
	HandlerType: (*FilterService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: unaryHandler("Parse", FilterService.Parse)},
		{MethodName: "CreateResource", Handler: unaryHandler("CreateResource", FilterService.CreateResource)},
		{MethodName: "GetResource", Handler: unaryHandler("GetResource", FilterService.GetResource)},
		{MethodName: "ListResources", Handler: unaryHandler("ListResources", FilterService.ListResources)},
		{MethodName: "DeleteResource", Handler: unaryHandler("DeleteResource", FilterService.DeleteResource)},
		{MethodName: "ListResourceDescriptors", Handler: unaryHandler("ListResourceDescriptors", FilterService.ListResourceDescriptors)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "filterd/v1/filter_service.proto",
}

func RegisterFilterServiceServer(s grpc.ServiceRegistrar, srv FilterService) {
	s.RegisterService(&FilterServiceDesc, srv)
}

// FilterServiceClient calls FilterServiceName over a client connection.
type FilterServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFilterServiceClient(cc grpc.ClientConnInterface) *FilterServiceClient {
	return &FilterServiceClient{cc: cc}
}

func (c *FilterServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FilterServiceClient) Parse(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Parse", in, opts)
}

func (c *FilterServiceClient) CreateResource(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateResource", in, opts)
}

func (c *FilterServiceClient) GetResource(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetResource", in, opts)
}

func (c *FilterServiceClient) ListResources(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListResources", in, opts)
}

func (c *FilterServiceClient) DeleteResource(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, fullMethod("DeleteResource"), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FilterServiceClient) ListResourceDescriptors(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListResourceDescriptors", in, opts)
}
