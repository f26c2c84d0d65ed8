package controlapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client is a thin wrapper over a grpc.ClientConn that calls Stats and
// WatchEvents without a generated stub, mirroring the method shape a
// protoc-gen-go-grpc client would expose.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

// Stats calls the Stats RPC.
func (c *Client) Stats(ctx context.Context) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/Stats", new(emptypb.Empty), out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WatchEventsClient is the stream handle returned by WatchEvents.
type WatchEventsClient interface {
	Recv() (*structpb.Struct, error)
}

type watchEventsClientStream struct {
	grpc.ClientStream
}

func (x *watchEventsClientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WatchEvents opens the WatchEvents server-streaming RPC.
func (c *Client) WatchEvents(ctx context.Context) (WatchEventsClient, error) {
	desc := &grpc.StreamDesc{
		StreamName:    "WatchEvents",
		ServerStreams: true,
	}
	stream, err := c.cc.NewStream(ctx, desc, "/"+ServiceName+"/WatchEvents")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(new(emptypb.Empty)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &watchEventsClientStream{stream}, nil
}
