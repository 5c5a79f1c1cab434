package types

// Status is exchanged at handshake (spec.md §6, devp2p eth/66 subset).
type Status struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TD              []byte // big.Int bytes, total difficulty of our head
	HeadHash        Hash
	GenesisHash     Hash
	ForkID          ForkID
}

// GetBlockHeaders66 requests a run of headers, newest-first when Reverse is
// set (spec.md §4.2, §6).
type GetBlockHeaders66 struct {
	RequestID uint64
	Origin    Hash // zero means OriginNum is used instead
	OriginNum BlockNum
	Amount    uint64
	Skip      uint64
	Reverse   bool
}

// BlockHeaders66 is the reply to GetBlockHeaders66.
type BlockHeaders66 struct {
	RequestID uint64
	Headers   []*Header
}

// GetBlockBodies66 requests bodies by header hash (spec.md §4.3, §6).
type GetBlockBodies66 struct {
	RequestID uint64
	Hashes    []Hash
}

// BlockBodies66 is the reply to GetBlockBodies66. Partial replies (a
// subset of the requested hashes) are valid (spec.md §4.3).
type BlockBodies66 struct {
	RequestID uint64
	Bodies    []*Body
}

// Inbound wraps any decoded wire message with its originating peer, the
// unit PeerClient.receive() streams out (spec.md §4.1).
type Inbound struct {
	Peer    PeerID
	Message interface{}
}
