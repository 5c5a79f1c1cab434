// Package bodysequence fetches bodies for persisted headers lacking them,
// matching replies by transaction/uncle root (spec.md §4.3).
package bodysequence

import (
	"time"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

// maxBodyMismatches is how many full (non-partial) replies may fail to
// contain a body matching an entry's roots before that header is declared
// bad (spec.md §8 S4). A single odd reply is ordinary peer noise; repeated
// full replies that never produce a matching body mean no one can ever
// satisfy this request, which only a wrong persisted header explains.
const maxBodyMismatches = 3

// entry is a header still awaiting its body.
type entry struct {
	height    types.BlockNum
	hash      types.Hash
	txRoot    types.Hash
	uncleRoot types.Hash

	inFlight     bool
	lastIssuedAt time.Time
	peer         types.PeerID
	mismatches   int
}

// Config bundles the construction-time parameters BodySequence needs.
type Config struct {
	RequestDeadline     time.Duration
	MaxBlocksPerRequest int
	// MaxPeerBudget is not read by RequestMore: a generated request batch
	// is bounded only by MaxBlocksPerRequest. BlockExchange enforces the
	// per-peer in-flight cap independently.
	MaxPeerBudget int
}

// BodySequence is the pending-body tracker BlockExchange drives. Like
// HeaderChain, it is owned by a single goroutine (spec.md §5).
type BodySequence struct {
	logger log.Logger
	cfg    Config

	// pending is the ordered set of awaiting entries, keyed by header hash.
	pending map[types.Hash]*entry
	// order preserves height order for request generation and is kept in
	// sync with pending by Add/remove.
	order []types.Hash

	// ready holds bodies matched by OnBodies but not yet withdrawn by
	// BodiesStage.
	ready []Matched
	// bad holds hashes OnBodies gave up matching after maxBodyMismatches,
	// not yet withdrawn by BodiesStage.
	bad []types.Hash
}

// New returns an empty BodySequence.
func New(logger log.Logger, cfg Config) *BodySequence {
	return &BodySequence{
		logger:  logger,
		cfg:     cfg,
		pending: make(map[types.Hash]*entry),
	}
}

// Add registers a persisted header as awaiting a body. Safe to call with a
// hash already tracked; the call is a no-op in that case.
func (bs *BodySequence) Add(h *types.Header) {
	hash := h.Hash()
	if _, exists := bs.pending[hash]; exists {
		return
	}
	bs.pending[hash] = &entry{
		height:    h.Number,
		hash:      hash,
		txRoot:    h.TxRoot,
		uncleRoot: h.UncleHash,
	}
	bs.order = append(bs.order, hash)
}

// Backlog returns the number of headers still awaiting a body.
func (bs *BodySequence) Backlog() int { return len(bs.pending) }

// RequestMore produces up to K GetBlockBodies66 requests such that
// K*max_blocks_per_req >= backlog, skipping hashes currently in flight
// within request_deadline (spec.md §4.3).
func (bs *BodySequence) RequestMore(now time.Time) []*types.GetBlockBodies66 {
	var eligible []types.Hash
	for _, hash := range bs.order {
		e, ok := bs.pending[hash]
		if !ok {
			continue
		}
		if e.inFlight && now.Sub(e.lastIssuedAt) < bs.cfg.RequestDeadline {
			continue
		}
		eligible = append(eligible, hash)
	}
	if len(eligible) == 0 {
		return nil
	}

	perReq := bs.cfg.MaxBlocksPerRequest
	if perReq <= 0 {
		perReq = 1
	}

	var reqs []*types.GetBlockBodies66
	for len(eligible) > 0 {
		n := perReq
		if n > len(eligible) {
			n = len(eligible)
		}
		batch := eligible[:n]
		eligible = eligible[n:]

		for _, hash := range batch {
			e := bs.pending[hash]
			e.inFlight = true
			e.lastIssuedAt = now
		}

		reqs = append(reqs, &types.GetBlockBodies66{
			RequestID: uint64(now.UnixNano()) + uint64(len(reqs)),
			Hashes:    append([]types.Hash(nil), batch...),
		})
	}
	return reqs
}

// MatchResult reports the outcome of feeding a BlockBodies66 reply through
// OnBodies: which hashes were accepted, and which requested hashes have now
// failed root-matching often enough to be declared bad blocks.
type MatchResult struct {
	Accepted []Matched
	Bad      []types.Hash
}

// Matched pairs an accepted body with the header hash it belongs to.
type Matched struct {
	Hash types.Hash
	Body *types.Body
}

// OnBodies matches each delivered body against the pending set by recomputed
// roots. Partial matches are expected and valid: a reply need not cover
// every hash it was asked for (spec.md §4.3). Matched bodies move to the
// ready set for BodiesStage to withdraw.
//
// requested is the full set of hashes the delivering peer was asked for in
// the request this reply answers (empty if the request is no longer known,
// e.g. it already timed out). When a reply is a full answer (as many bodies
// as hashes requested) but still leaves one of those hashes unmatched, that
// is not a partial omission, it is an explicit wrong answer for that hash;
// after maxBodyMismatches such answers from independent attempts, the
// header's own roots are the common factor and it is reported as bad
// (spec.md §8 S4).
func (bs *BodySequence) OnBodies(peer types.PeerID, requested []types.Hash, bodies []*types.Body) MatchResult {
	var result MatchResult
	matched := make(map[types.Hash]bool, len(bodies))
	for _, body := range bodies {
		hash, ok := bs.find(body)
		if !ok {
			continue
		}
		m := Matched{Hash: hash, Body: body}
		result.Accepted = append(result.Accepted, m)
		bs.ready = append(bs.ready, m)
		bs.remove(hash)
		matched[hash] = true
	}

	if len(bodies) != len(requested) {
		return result
	}
	for _, hash := range requested {
		if matched[hash] {
			continue
		}
		e, ok := bs.pending[hash]
		if !ok {
			continue
		}
		e.mismatches++
		if e.mismatches >= maxBodyMismatches {
			result.Bad = append(result.Bad, hash)
			bs.bad = append(bs.bad, hash)
			bs.remove(hash)
		}
	}
	return result
}

// WithdrawReady removes and returns every body matched since the last
// withdrawal, for BodiesStage to persist (spec.md §4.5).
func (bs *BodySequence) WithdrawReady() []Matched {
	if len(bs.ready) == 0 {
		return nil
	}
	out := bs.ready
	bs.ready = nil
	return out
}

// WithdrawBad removes and returns every hash OnBodies gave up matching
// since the last withdrawal, for BodiesStage to turn into UnwindNeeded.
func (bs *BodySequence) WithdrawBad() []types.Hash {
	if len(bs.bad) == 0 {
		return nil
	}
	out := bs.bad
	bs.bad = nil
	return out
}

func (bs *BodySequence) find(body *types.Body) (types.Hash, bool) {
	txRoot, err := body.TxRootHash()
	if err != nil {
		return types.ZeroHash, false
	}
	uncleRoot, err := body.UncleRootHash()
	if err != nil {
		return types.ZeroHash, false
	}
	for hash, e := range bs.pending {
		if e.txRoot == txRoot && e.uncleRoot == uncleRoot {
			return hash, true
		}
	}
	return types.ZeroHash, false
}

func (bs *BodySequence) remove(hash types.Hash) {
	delete(bs.pending, hash)
	for i, h := range bs.order {
		if h == hash {
			bs.order = append(bs.order[:i], bs.order[i+1:]...)
			break
		}
	}
}

// TimedOutPeers returns the peers whose current attempt has exceeded
// request_deadline since it was last (re)issued and should be penalized
// TooSlow; RequestMore picks the same entries back up for reissue once
// their lastIssuedAt falls outside request_deadline (spec.md §4.3, §7).
// Keying off lastIssuedAt rather than a fixed first-attempt timestamp
// matters: otherwise an entry handed to a brand-new peer on reissue would
// still read as timed-out on every tick until the body finally arrives,
// penalizing that peer for a wait it never had a chance to avoid.
func (bs *BodySequence) TimedOutPeers(now time.Time) []types.PeerID {
	seen := make(map[types.PeerID]bool)
	var out []types.PeerID
	for _, e := range bs.pending {
		if !e.inFlight {
			continue
		}
		if now.Sub(e.lastIssuedAt) <= bs.cfg.RequestDeadline {
			continue
		}
		if e.peer != "" && !seen[e.peer] {
			seen[e.peer] = true
			out = append(out, e.peer)
		}
	}
	return out
}

// MarkDispatched records which peer a request was actually sent to, so
// TimedOutPeers can attribute a timeout correctly.
func (bs *BodySequence) MarkDispatched(req *types.GetBlockBodies66, peer types.PeerID) {
	for _, hash := range req.Hashes {
		if e, ok := bs.pending[hash]; ok {
			e.peer = peer
		}
	}
}
