package sentry

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

type fakeServiceClient struct {
	statusReply     *StatusReply
	handshakeReply  *HandshakeReply
	sendReply       *SendMessageReply
	lastSendRequest *SendMessageRequest
	penalized       []*PenalizeRequest
}

func (f *fakeServiceClient) SetStatus(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	return f.statusReply, nil
}
func (f *fakeServiceClient) HandShake(ctx context.Context, req *HandshakeRequest) (*HandshakeReply, error) {
	return f.handshakeReply, nil
}
func (f *fakeServiceClient) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageReply, error) {
	f.lastSendRequest = req
	return f.sendReply, nil
}
func (f *fakeServiceClient) ReceiveMessages(ctx context.Context, req *ReceiveMessagesRequest) (InboundStream, error) {
	return nil, nil
}
func (f *fakeServiceClient) Penalize(ctx context.Context, req *PenalizeRequest) (*PenalizeReply, error) {
	f.penalized = append(f.penalized, req)
	return &PenalizeReply{}, nil
}
func (f *fakeServiceClient) Stats(ctx context.Context, req *StatsRequest) (StatsStream, error) {
	return nil, nil
}

func newTestPeerClient(fake *fakeServiceClient) *PeerClient {
	pc := NewPeerClient(log.NewNopLogger(), Config{Addr: "unused", DialTimeout: time.Second})
	pc.client = fake
	return pc
}

func TestSetStatusRejectsOnTransportError(t *testing.T) {
	fake := &fakeServiceClient{statusReply: &StatusReply{Ok: false, Error: "bad fork id"}}
	pc := newTestPeerClient(fake)

	chain := types.KnownChains["sepolia"]
	err := pc.SetStatus(context.Background(), types.ZeroHash, big.NewInt(1), chain, chain.ForkID(0))
	require.Error(t, err)
	var hsErr *HandshakeError
	require.ErrorAs(t, err, &hsErr)
}

func TestSetStatusAcceptsOk(t *testing.T) {
	fake := &fakeServiceClient{statusReply: &StatusReply{Ok: true}}
	pc := newTestPeerClient(fake)

	chain := types.KnownChains["mainnet"]
	err := pc.SetStatus(context.Background(), types.ZeroHash, big.NewInt(1), chain, chain.ForkID(0))
	require.NoError(t, err)
}

func TestHandShakeFailsWithZeroPeers(t *testing.T) {
	fake := &fakeServiceClient{handshakeReply: &HandshakeReply{MatchedPeers: 0}}
	pc := newTestPeerClient(fake)

	err := pc.HandShake(context.Background())
	require.Error(t, err)
}

func TestSendReturnsDeliveredPeers(t *testing.T) {
	fake := &fakeServiceClient{sendReply: &SendMessageReply{PeerIds: []string{"peerA", "peerB"}}}
	pc := newTestPeerClient(fake)

	peers, err := pc.Send(context.Background(), KindGetBlockHeaders, &types.GetBlockHeaders66{RequestID: 1}, 1, time.Second)
	require.NoError(t, err)
	require.Equal(t, []types.PeerID{"peerA", "peerB"}, peers)
	require.Equal(t, KindGetBlockHeaders, fake.lastSendRequest.Kind)
}

func TestPenalizeDispatchesAsync(t *testing.T) {
	fake := &fakeServiceClient{}
	pc := newTestPeerClient(fake)

	pc.Penalize(context.Background(), "peerA", types.PenaltyBadBlock)
	require.Eventually(t, func() bool { return len(fake.penalized) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "peerA", fake.penalized[0].PeerId)
}
