// Package node wires the store, header chain, body sequence, sentry
// transport, block exchange, and stage loop into the single runnable
// service a silkworm process starts and stops (spec.md §4, §5).
package node

import (
	"context"
	"fmt"
	"math/big"

	dbm "github.com/tendermint/tm-db"

	"github.com/gurukamath/silkworm/config"
	"github.com/gurukamath/silkworm/internal/bodysequence"
	"github.com/gurukamath/silkworm/internal/exchange"
	"github.com/gurukamath/silkworm/internal/headerchain"
	"github.com/gurukamath/silkworm/internal/sentry"
	"github.com/gurukamath/silkworm/internal/stage"
	"github.com/gurukamath/silkworm/internal/store"
	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/libs/service"
	"github.com/gurukamath/silkworm/types"
)

// Node owns every long-running component of a silkworm process and drives
// them through one BaseService lifecycle, mirroring how the teacher's node
// package composes its switch/reactors/rpc servers behind a single Start.
type Node struct {
	service.BaseService

	config *config.Config
	logger log.Logger
	chain  types.ChainIdentity

	db      dbm.DB
	store   *store.Store
	headers *headerchain.HeaderChain
	bodies  *bodysequence.BodySequence
	peers   *sentry.PeerClient
	ex      *exchange.BlockExchange
	loop    *stage.StageLoop

	cancel context.CancelFunc
	done   chan struct{}
}

// DefaultNewNode is a config.ServiceProvider: it opens the configured
// store backend and assembles a Node from it. Pass to commands.NewRunNodeCmd.
func DefaultNewNode(ctx context.Context, conf *config.Config, logger log.Logger) (service.Service, error) {
	db, err := config.DefaultDBProvider(&config.DBContext{ID: "silkworm", Config: conf})
	if err != nil {
		return nil, fmt.Errorf("node: open db: %w", err)
	}
	return NewNode(conf, logger, db)
}

// NewNode assembles a Node over an already-open db. OnStop closes db, so
// callers should not also close it themselves.
func NewNode(conf *config.Config, logger log.Logger, db dbm.DB) (*Node, error) {
	chain, err := types.ResolveChain(conf.Chain)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	st := store.NewStore(db)

	headers := headerchain.New(st, logger.With("module", "headerchain"), headerchain.Config{
		RequestDeadline:     conf.Exchange.RequestDeadline,
		MaxBlocksPerRequest: types.BlockNum(conf.Exchange.MaxBlocksPerRequest),
	}, nil)

	bodies := bodysequence.New(logger.With("module", "bodysequence"), bodysequence.Config{
		RequestDeadline:     conf.Exchange.RequestDeadline,
		MaxBlocksPerRequest: int(conf.Exchange.MaxBlocksPerRequest),
		MaxPeerBudget:       int(conf.Exchange.MaxBlocksPerRequest),
	})

	peers := sentry.NewPeerClient(logger.With("module", "sentry"), sentry.Config{
		Addr:          conf.Sentry.Addr,
		DialTimeout:   conf.Sentry.DialTimeout,
		StatsInterval: conf.Sentry.StatsInterval,
	})

	ex := exchange.New(logger.With("module", "exchange"), exchange.Config{
		MaxBlocksPerRequest: conf.Exchange.MaxBlocksPerRequest,
		MaxRequestsPerPeer:  conf.Exchange.MaxRequestsPerPeer,
		RequestDeadline:     conf.Exchange.RequestDeadline,
		NoPeerDelay:         conf.Exchange.NoPeerDelay,
	}, peers, headers, bodies)

	if conf.Instrumentation.Prometheus {
		ex.SetMetrics(exchange.PrometheusMetrics(conf.Instrumentation.Namespace))
	} else {
		ex.SetMetrics(exchange.NopMetrics())
	}

	headersStage := stage.NewHeadersStage(st, headers, logger.With("module", "stage_headers"),
		int(conf.Exchange.MaxBlocksPerRequest))
	bodiesStage := stage.NewBodiesStage(st, bodies, logger.With("module", "stage_bodies"))
	loop := stage.New(logger.With("module", "stage_loop"), headersStage, bodiesStage)

	n := &Node{
		config:  conf,
		logger:  logger,
		chain:   chain,
		db:      db,
		store:   st,
		headers: headers,
		bodies:  bodies,
		peers:   peers,
		ex:      ex,
		loop:    loop,
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

// OnStart dials the sentry, advertises our chain view, fails unless the
// transport's handshake reply reports at least one matching peer, starts
// BlockExchange, and launches the stage loop
// (spec.md §4.1, §4.4, §4.6).
func (n *Node) OnStart(ctx context.Context) error {
	if err := n.peers.Start(ctx); err != nil {
		return fmt.Errorf("node: start sentry client: %w", err)
	}

	headHash, headHeight, headTD := n.currentHead()
	forkID := n.chain.ForkID(headHeight)

	handshakeCtx, cancelHandshake := context.WithTimeout(ctx, n.config.Sentry.DialTimeout)
	defer cancelHandshake()
	if err := n.peers.SetStatus(handshakeCtx, headHash, headTD, n.chain, forkID); err != nil {
		if stopErr := n.peers.Stop(); stopErr != nil {
			n.logger.Error("node: stop sentry client after failed handshake", "err", stopErr)
		}
		return err
	}
	if err := n.peers.HandShake(handshakeCtx); err != nil {
		if stopErr := n.peers.Stop(); stopErr != nil {
			n.logger.Error("node: stop sentry client after failed handshake", "err", stopErr)
		}
		return err
	}

	if err := n.ex.Start(ctx); err != nil {
		if stopErr := n.peers.Stop(); stopErr != nil {
			n.logger.Error("node: stop sentry client after failed exchange start", "err", stopErr)
		}
		return fmt.Errorf("node: start block exchange: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.runStageLoop(runCtx)

	n.logger.Info("node started", "chain", n.chain.Name, "head_height", headHeight, "head_td", headTD)
	return nil
}

// OnStop tears down the stage loop, block exchange, sentry client, and
// finally the store's database, in the reverse order OnStart built them.
func (n *Node) OnStop() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}
	n.ex.Stop() //nolint:errcheck // best effort on shutdown
	n.peers.Stop() //nolint:errcheck // best effort on shutdown
	if err := n.store.Close(); err != nil {
		n.logger.Error("node: close store", "err", err)
	}
}

func (n *Node) runStageLoop(ctx context.Context) {
	defer close(n.done)
	if err := n.loop.Run(ctx, func() bool { return ctx.Err() != nil }); err != nil {
		n.logger.Error("node: stage loop terminated", "err", err)
		// Stop from another goroutine: OnStop waits on n.done, which closes
		// only once this function returns.
		go n.Stop() //nolint:errcheck // already stopped is fine here
	}
}

// currentHead returns the persisted canonical head's hash, height, and
// cumulative difficulty, or the chain's genesis identity if nothing has
// been persisted yet.
func (n *Node) currentHead() (types.Hash, types.BlockNum, *big.Int) {
	height := n.store.HeadersHeight()
	if height == 0 {
		return n.chain.GenesisHash, 0, new(big.Int)
	}
	h, ok := n.store.GetHeaderByNumber(height)
	if !ok {
		return n.chain.GenesisHash, 0, new(big.Int)
	}
	return h.Hash(), height, n.store.HeadTD()
}

func (n *Node) String() string { return fmt.Sprintf("Node{chain=%s}", n.chain.Name) }
