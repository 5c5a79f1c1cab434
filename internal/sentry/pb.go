package sentry

// These envelope types are the wire contract between PeerClient and the
// external sentry peer-transport daemon (spec.md §4.1). They carry our own
// RLP-encoded eth/66 messages as opaque payloads so the sentry boundary
// never needs to understand the chain wire format, only route bytes to and
// from devp2p peers. Each implements the minimal proto.Message contract
// (Reset/String/ProtoMessage), the same shape protoc-gen-gogo would emit
// from a .proto definition; on the grpc.ClientConn they are encoded by the
// gob codec registered in codec.go, not by protobuf.

// StatusRequest advertises our chain view to the transport (PeerClient.set_status).
type StatusRequest struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TotalDifficulty []byte
	HeadHash        []byte
	GenesisHash     []byte
	ForkHash        []byte
	ForkNext        uint64
}

func (*StatusRequest) Reset()         {}
func (m *StatusRequest) String() string { return "StatusRequest" }
func (*StatusRequest) ProtoMessage()  {}

// StatusReply reports whether the transport accepted our status.
type StatusReply struct {
	Ok    bool
	Error string
}

func (*StatusReply) Reset()         {}
func (m *StatusReply) String() string { return "StatusReply" }
func (*StatusReply) ProtoMessage()  {}

// HandshakeRequest has no fields; hand_shake just blocks for a reply.
type HandshakeRequest struct{}

func (*HandshakeRequest) Reset()         {}
func (m *HandshakeRequest) String() string { return "HandshakeRequest" }
func (*HandshakeRequest) ProtoMessage()  {}

// HandshakeReply reports how many peers are now matched on network/fork ID.
type HandshakeReply struct {
	MatchedPeers uint32
}

func (*HandshakeReply) Reset()         {}
func (m *HandshakeReply) String() string { return "HandshakeReply" }
func (*HandshakeReply) ProtoMessage()  {}

// SendMessageRequest dispatches an opaque, already-RLP-encoded eth/66
// message; Kind names which wire type Data decodes to.
type SendMessageRequest struct {
	Kind      string
	Data      []byte
	MinPeers  uint32
	TimeoutMs uint64
}

func (*SendMessageRequest) Reset()         {}
func (m *SendMessageRequest) String() string { return "SendMessageRequest" }
func (*SendMessageRequest) ProtoMessage()  {}

// SendMessageReply names the peers the message actually reached.
type SendMessageReply struct {
	PeerIds []string
}

func (*SendMessageReply) Reset()         {}
func (m *SendMessageReply) String() string { return "SendMessageReply" }
func (*SendMessageReply) ProtoMessage()  {}

// ReceiveMessagesRequest has no fields; it opens the inbound stream.
type ReceiveMessagesRequest struct{}

func (*ReceiveMessagesRequest) Reset()         {}
func (m *ReceiveMessagesRequest) String() string { return "ReceiveMessagesRequest" }
func (*ReceiveMessagesRequest) ProtoMessage()  {}

// InboundEnvelope is one item of the receive() stream (spec.md §4.1).
type InboundEnvelope struct {
	PeerId string
	Kind   string
	Data   []byte
}

func (*InboundEnvelope) Reset()         {}
func (m *InboundEnvelope) String() string { return "InboundEnvelope" }
func (*InboundEnvelope) ProtoMessage()  {}

// PenalizeRequest asks the transport to penalize a peer; it decides whether
// to disconnect (spec.md §4.1).
type PenalizeRequest struct {
	PeerId string
	Reason string
}

func (*PenalizeRequest) Reset()         {}
func (m *PenalizeRequest) String() string { return "PenalizeRequest" }
func (*PenalizeRequest) ProtoMessage()  {}

type PenalizeReply struct{}

func (*PenalizeReply) Reset()         {}
func (m *PenalizeReply) String() string { return "PenalizeReply" }
func (*PenalizeReply) ProtoMessage()  {}

// StatsRequest has no fields; it opens the peer-stats stream.
type StatsRequest struct{}

func (*StatsRequest) Reset()         {}
func (m *StatsRequest) String() string { return "StatsRequest" }
func (*StatsRequest) ProtoMessage()  {}

// PeerStatsEnvelope is one item of the stats() stream (spec.md §4.1).
type PeerStatsEnvelope struct {
	PeerId string
	Height uint64
}

func (*PeerStatsEnvelope) Reset()         {}
func (m *PeerStatsEnvelope) String() string { return "PeerStatsEnvelope" }
func (*PeerStatsEnvelope) ProtoMessage()  {}
