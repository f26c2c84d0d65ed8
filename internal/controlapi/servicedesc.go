package controlapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the gRPC service name clients dial, matching the
// naming convention protoc-gen-go-grpc would produce for a package
// named "scalemq.controlapi".
const ServiceName = "scalemq.controlapi.Control"

// Register attaches Server to grpcServer under a manually built
// grpc.ServiceDesc, in the same shape a generated _grpc.pb.go file
// would register — there is just no .proto behind it, since Stats and
// WatchEvents both traffic in structpb.Struct/emptypb.Empty rather
// than purpose-built messages.
func Register(grpcServer *grpc.Server, srv *Server) {
	grpcServer.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Stats",
			Handler:    statsHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "scalemq/controlapi.proto",
}

// controlServer is the interface the manually built ServiceDesc
// dispatches onto — satisfied by *Server.
type controlServer interface {
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchEvents(*emptypb.Empty, eventStream) error
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Stats",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(controlServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(controlServer).WatchEvents(in, &watchEventsServerStream{stream})
}

// watchEventsServerStream adapts a grpc.ServerStream to the narrow
// eventStream interface controlServer.WatchEvents expects.
type watchEventsServerStream struct {
	grpc.ServerStream
}

func (x *watchEventsServerStream) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}
