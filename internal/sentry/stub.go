package sentry

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC service path the sentry daemon exposes, following
// the "package.Service/Method" convention protoc-gen-go-grpc emits.
const serviceName = "sentry.SentryService"

// ServiceClient is the thin stub PeerClient drives; it has the shape a
// generated protobuf client would have had, but is hand-written since the
// sentry daemon's .proto lives outside this module's scope (spec.md §1
// treats the transport as an external collaborator).
type ServiceClient interface {
	SetStatus(ctx context.Context, req *StatusRequest) (*StatusReply, error)
	HandShake(ctx context.Context, req *HandshakeRequest) (*HandshakeReply, error)
	SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageReply, error)
	ReceiveMessages(ctx context.Context, req *ReceiveMessagesRequest) (InboundStream, error)
	Penalize(ctx context.Context, req *PenalizeRequest) (*PenalizeReply, error)
	Stats(ctx context.Context, req *StatsRequest) (StatsStream, error)
}

// InboundStream is the server-streaming reply to ReceiveMessages.
type InboundStream interface {
	Recv() (*InboundEnvelope, error)
	CloseSend() error
}

// StatsStream is the server-streaming reply to Stats.
type StatsStream interface {
	Recv() (*PeerStatsEnvelope, error)
	CloseSend() error
}

type grpcServiceClient struct {
	cc *grpc.ClientConn
}

// NewServiceClient wraps a dialed connection as a ServiceClient, the way
// protoc-gen-go-grpc's NewXClient constructor would.
func NewServiceClient(cc *grpc.ClientConn) ServiceClient {
	return &grpcServiceClient{cc: cc}
}

func (c *grpcServiceClient) SetStatus(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	reply := new(StatusReply)
	if err := c.cc.Invoke(ctx, serviceName+"/SetStatus", req, reply, callOpts()...); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *grpcServiceClient) HandShake(ctx context.Context, req *HandshakeRequest) (*HandshakeReply, error) {
	reply := new(HandshakeReply)
	if err := c.cc.Invoke(ctx, serviceName+"/HandShake", req, reply, callOpts()...); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *grpcServiceClient) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageReply, error) {
	reply := new(SendMessageReply)
	if err := c.cc.Invoke(ctx, serviceName+"/SendMessage", req, reply, callOpts()...); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *grpcServiceClient) Penalize(ctx context.Context, req *PenalizeRequest) (*PenalizeReply, error) {
	reply := new(PenalizeReply)
	if err := c.cc.Invoke(ctx, serviceName+"/Penalize", req, reply, callOpts()...); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *grpcServiceClient) ReceiveMessages(ctx context.Context, req *ReceiveMessagesRequest) (InboundStream, error) {
	desc := &grpc.StreamDesc{StreamName: "ReceiveMessages", ServerStreams: true}
	stream, err := c.cc.NewStream(ctx, desc, serviceName+"/ReceiveMessages", callOpts()...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &inboundStream{stream}, nil
}

func (c *grpcServiceClient) Stats(ctx context.Context, req *StatsRequest) (StatsStream, error) {
	desc := &grpc.StreamDesc{StreamName: "Stats", ServerStreams: true}
	stream, err := c.cc.NewStream(ctx, desc, serviceName+"/Stats", callOpts()...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &statsStream{stream}, nil
}

func callOpts() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(codecName)}
}

type inboundStream struct{ grpc.ClientStream }

func (s *inboundStream) Recv() (*InboundEnvelope, error) {
	m := new(InboundEnvelope)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type statsStream struct{ grpc.ClientStream }

func (s *statsStream) Recv() (*PeerStatsEnvelope, error) {
	m := new(PeerStatsEnvelope)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
