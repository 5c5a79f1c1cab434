// Package sentry is PeerClient: the thin adapter over the external
// peer-transport daemon (spec.md §4.1). It speaks gRPC to a sentry process
// that owns the actual devp2p connections, and exposes set_status,
// hand_shake, send, receive, and penalize to BlockExchange.
package sentry

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"google.golang.org/grpc"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/libs/service"
	"github.com/gurukamath/silkworm/types"
)

// PeerStat is one item PeerClient's stats loop publishes, reporting a
// peer's advertised height (spec.md §4.1 stats() stream).
type PeerStat struct {
	Peer   types.PeerID
	Height types.BlockNum
}

// Config bundles PeerClient's construction-time parameters.
type Config struct {
	Addr          string
	DialTimeout   time.Duration
	StatsInterval time.Duration
}

// PeerClient is a service.Component: Start dials the sentry and launches
// the message loop and stats loop; Stop tears both down (spec.md §4.1,
// §5).
type PeerClient struct {
	service.BaseService

	cfg    Config
	logger log.Logger

	conn   *grpc.ClientConn
	client ServiceClient

	inbound chan types.Inbound
	stats   chan PeerStat

	cancel context.CancelFunc
}

// NewPeerClient returns a PeerClient that will dial cfg.Addr on Start.
func NewPeerClient(logger log.Logger, cfg Config) *PeerClient {
	pc := &PeerClient{
		cfg:     cfg,
		logger:  logger,
		inbound: make(chan types.Inbound, 256),
		stats:   make(chan PeerStat, 64),
	}
	pc.BaseService = *service.NewBaseService(logger, "PeerClient", pc)
	return pc
}

// Inbound is the lazy, restartable stream of typed inbound messages tagged
// with their originating peer (spec.md §4.1 receive()).
func (pc *PeerClient) Inbound() <-chan types.Inbound { return pc.inbound }

// Stats is the restartable peer-stats stream (spec.md §4.1 stats()).
func (pc *PeerClient) Stats() <-chan PeerStat { return pc.stats }

func (pc *PeerClient) OnStart(ctx context.Context) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, pc.cfg.DialTimeout)
	defer cancelDial()

	conn, err := grpc.DialContext(dialCtx, pc.cfg.Addr,
		grpc.WithInsecure(), //nolint:staticcheck // sentry runs on a trusted loopback/sidecar link
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return fmt.Errorf("sentry: dial %s: %w", pc.cfg.Addr, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	pc.conn = conn
	pc.client = NewServiceClient(conn)
	pc.cancel = cancel

	go pc.messageLoop(runCtx)
	go pc.statsLoop(runCtx)

	return nil
}

func (pc *PeerClient) OnStop() {
	if pc.cancel != nil {
		pc.cancel()
	}
	if pc.conn != nil {
		if err := pc.conn.Close(); err != nil {
			pc.logger.Error("sentry: close connection", "err", err)
		}
	}
}

// messageLoop drains receive() and forwards decoded envelopes to Inbound,
// restarting the stream on transient errors until runCtx is canceled.
func (pc *PeerClient) messageLoop(runCtx context.Context) {
	for {
		if runCtx.Err() != nil {
			return
		}
		stream, err := pc.client.ReceiveMessages(runCtx, &ReceiveMessagesRequest{})
		if err != nil {
			if runCtx.Err() != nil {
				return
			}
			pc.logger.Error("sentry: receive stream failed, retrying", "err", err)
			time.Sleep(time.Second)
			continue
		}
		for {
			env, err := stream.Recv()
			if err != nil {
				if runCtx.Err() != nil {
					return
				}
				pc.logger.Error("sentry: receive stream broken, restarting", "err", err)
				break
			}
			msg, err := decodeEnvelope(env)
			if err != nil {
				pc.logger.Debug("sentry: discarding malformed envelope", "peer", env.PeerId, "err", err)
				pc.Penalize(runCtx, types.PeerID(env.PeerId), types.PenaltyBadProtocol)
				continue
			}
			select {
			case pc.inbound <- types.Inbound{Peer: types.PeerID(env.PeerId), Message: msg}:
			case <-runCtx.Done():
				return
			}
		}
	}
}

// statsLoop drains stats() the same way messageLoop drains receive().
func (pc *PeerClient) statsLoop(runCtx context.Context) {
	for {
		if runCtx.Err() != nil {
			return
		}
		stream, err := pc.client.Stats(runCtx, &StatsRequest{})
		if err != nil {
			if runCtx.Err() != nil {
				return
			}
			pc.logger.Error("sentry: stats stream failed, retrying", "err", err)
			time.Sleep(pc.cfg.StatsInterval)
			continue
		}
		for {
			env, err := stream.Recv()
			if err != nil {
				if runCtx.Err() != nil {
					return
				}
				pc.logger.Error("sentry: stats stream broken, restarting", "err", err)
				break
			}
			select {
			case pc.stats <- PeerStat{Peer: types.PeerID(env.PeerId), Height: types.BlockNum(env.Height)}:
			case <-runCtx.Done():
				return
			}
		}
	}
}

// SetStatus advertises our chain view to the transport (spec.md §4.1).
func (pc *PeerClient) SetStatus(ctx context.Context, head types.Hash, headTD *big.Int, chain types.ChainIdentity, forkID types.ForkID) error {
	reply, err := pc.client.SetStatus(ctx, &StatusRequest{
		ProtocolVersion: 66,
		NetworkID:       chain.ChainID,
		TotalDifficulty: headTD.Bytes(),
		HeadHash:        head[:],
		GenesisHash:     chain.GenesisHash[:],
		ForkHash:        forkID.Hash[:],
		ForkNext:        forkID.Next,
	})
	if err != nil {
		return fmt.Errorf("sentry: set_status: %w", err)
	}
	if !reply.Ok {
		return &HandshakeError{Message: reply.Error}
	}
	return nil
}

// HandshakeError is fatal at startup only (spec.md §7).
type HandshakeError struct{ Message string }

func (e *HandshakeError) Error() string { return "sentry: handshake: " + e.Message }

// HandShake makes a single HandShake call to the transport and returns a
// HandshakeError if the call fails or the reply reports no peer matched on
// network-id and fork-id. It does not retry or wait for a peer to appear.
func (pc *PeerClient) HandShake(ctx context.Context) error {
	reply, err := pc.client.HandShake(ctx, &HandshakeRequest{})
	if err != nil {
		return &HandshakeError{Message: err.Error()}
	}
	if reply.MatchedPeers == 0 {
		return &HandshakeError{Message: "no peers matched on network-id/fork-id"}
	}
	return nil
}

// Send dispatches message; it returns the peers it was actually delivered
// to, which may be empty (spec.md §4.1). kind identifies the eth/66 wire
// type for decodeEnvelope's counterpart on the receive side.
func (pc *PeerClient) Send(ctx context.Context, kind string, message interface{}, minPeers int, timeout time.Duration) ([]types.PeerID, error) {
	data, err := rlp.EncodeToBytes(message)
	if err != nil {
		return nil, fmt.Errorf("sentry: encode %s: %w", kind, err)
	}

	reply, err := pc.client.SendMessage(ctx, &SendMessageRequest{
		Kind:      kind,
		Data:      data,
		MinPeers:  uint32(minPeers),
		TimeoutMs: uint64(timeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("sentry: send %s: %w", kind, err)
	}

	peers := make([]types.PeerID, len(reply.PeerIds))
	for i, p := range reply.PeerIds {
		peers[i] = types.PeerID(p)
	}
	return peers, nil
}

// Penalize asynchronously asks the transport to discipline peer; the
// transport decides whether to disconnect (spec.md §4.1).
func (pc *PeerClient) Penalize(ctx context.Context, peer types.PeerID, reason types.PenaltyReason) {
	go func() {
		if _, err := pc.client.Penalize(ctx, &PenalizeRequest{
			PeerId: string(peer),
			Reason: string(reason),
		}); err != nil {
			pc.logger.Error("sentry: penalize failed", "peer", peer, "reason", reason, "err", err)
		}
	}()
}

// Kind constants identify the eth/66 wire type carried in a
// SendMessageRequest/InboundEnvelope's Data field.
const (
	KindGetBlockHeaders = "GetBlockHeaders66"
	KindBlockHeaders    = "BlockHeaders66"
	KindGetBlockBodies  = "GetBlockBodies66"
	KindBlockBodies     = "BlockBodies66"
)

// decodeEnvelope RLP-decodes env.Data according to env.Kind. Any decode
// failure is a ProtocolError per spec.md §7: the caller discards the
// message and penalizes the peer.
func decodeEnvelope(env *InboundEnvelope) (interface{}, error) {
	switch env.Kind {
	case KindBlockHeaders:
		var m types.BlockHeaders66
		if err := rlp.DecodeBytes(env.Data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case KindBlockBodies:
		var m types.BlockBodies66
		if err := rlp.DecodeBytes(env.Data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case KindGetBlockHeaders:
		var m types.GetBlockHeaders66
		if err := rlp.DecodeBytes(env.Data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case KindGetBlockBodies:
		var m types.GetBlockBodies66
		if err := rlp.DecodeBytes(env.Data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
}
