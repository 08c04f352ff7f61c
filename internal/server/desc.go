package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "healthreport.v1.ReportParser"

const (
	MethodParse      = "/" + ServiceName + "/Parse"
	MethodSubmit     = "/" + ServiceName + "/Submit"
	MethodGetJob     = "/" + ServiceName + "/GetJob"
	MethodListJobs   = "/" + ServiceName + "/ListJobs"
	MethodExportJobs = "/" + ServiceName + "/ExportJobs"
)

// ParserServer is the server API. Every message is a google.protobuf.Struct;
// the keys each method reads and writes are documented on ParserService.
type ParserServer interface {
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(ParserServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, fn call) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(srv.(ParserServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return fn(srv.(ParserServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the ReportParser service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ParserServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Parse", Handler: unary(MethodParse, ParserServer.Parse)},
		{MethodName: "Submit", Handler: unary(MethodSubmit, ParserServer.Submit)},
		{MethodName: "GetJob", Handler: unary(MethodGetJob, ParserServer.GetJob)},
		{MethodName: "ListJobs", Handler: unary(MethodListJobs, ParserServer.ListJobs)},
		{MethodName: "ExportJobs", Handler: unary(MethodExportJobs, ParserServer.ExportJobs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "healthreport/v1/parser.proto",
}

func RegisterParserServer(s grpc.ServiceRegistrar, srv ParserServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ParserClient calls a remote ReportParser.
type ParserClient struct {
	cc grpc.ClientConnInterface
}

func NewParserClient(cc grpc.ClientConnInterface) *ParserClient {
	return &ParserClient{cc: cc}
}

func (c *ParserClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ParserClient) Parse(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodParse, in, opts...)
}

func (c *ParserClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSubmit, in, opts...)
}

func (c *ParserClient) GetJob(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetJob, in, opts...)
}

func (c *ParserClient) ListJobs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListJobs, in, opts...)
}

func (c *ParserClient) ExportJobs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodExportJobs, in, opts...)
}
