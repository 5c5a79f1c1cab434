// Package headerchain turns out-of-order header deliveries into verified
// contiguous runs ready for persistence (spec.md §4.2).
package headerchain

import (
	"math/big"
	"sort"
	"time"

	"github.com/gurukamath/silkworm/internal/store"
	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

// Clock lets tests control "now" the same way tendermint's scheduler tests
// inject a fake clock rather than sleeping in real time.
type Clock func() time.Time

// HeaderChain owns the in-memory header DAG anchored between the local
// persisted head and a moving top_seen height. It is not safe for
// concurrent use from more than one goroutine; BlockExchange is its sole
// owner (spec.md §5).
type HeaderChain struct {
	db     store.ReadOnlyAccess
	logger log.Logger
	now    Clock

	requestDeadline     time.Duration
	maxBlocksPerRequest types.BlockNum

	// links is the arena: every known header is owned here, keyed by its
	// own hash. Links never hold pointers to each other, only hashes
	// (spec.md §9 Design Notes), so the DAG cannot cycle.
	links map[types.Hash]*types.Link

	// anchors is keyed by the still-unresolved parent hash each anchor is
	// waiting on.
	anchors map[types.Hash]*types.Anchor

	persistedHead types.BlockNum
	topSeen       types.BlockNum

	insertSeq int64
}

// Config bundles the construction-time parameters HeaderChain needs from
// config.ExchangeConfig, so this package doesn't import config directly.
type Config struct {
	RequestDeadline     time.Duration
	MaxBlocksPerRequest types.BlockNum
}

// New returns a HeaderChain rooted at the store's current persisted height.
func New(db store.ReadOnlyAccess, logger log.Logger, cfg Config, now Clock) *HeaderChain {
	if now == nil {
		now = time.Now
	}
	return &HeaderChain{
		db:                  db,
		logger:              logger,
		now:                 now,
		requestDeadline:     cfg.RequestDeadline,
		maxBlocksPerRequest: cfg.MaxBlocksPerRequest,
		links:               make(map[types.Hash]*types.Link),
		anchors:             make(map[types.Hash]*types.Anchor),
		persistedHead:       db.HeadersHeight(),
	}
}

// SetTopSeen raises the known network tip, as reported by the sentry
// peer-stats stream. Headers beyond it are buffered rather than discarded.
func (hc *HeaderChain) SetTopSeen(height types.BlockNum) {
	if height > hc.topSeen {
		hc.topSeen = height
	}
}

// DeliveryError is returned by NewHeaders when a header fails validation;
// it names the penalty BlockExchange must apply to the delivering peer.
type DeliveryError struct {
	Reason  types.PenaltyReason
	Message string
}

func (e *DeliveryError) Error() string { return e.Message }

// NewHeaders ingests a batch of headers delivered by peer. It returns the
// first validation failure encountered, if any; headers before the failure
// are still attached.
func (hc *HeaderChain) NewHeaders(peer types.PeerID, headers []*types.Header) *DeliveryError {
	for _, h := range headers {
		if err := hc.attach(h); err != nil {
			hc.logger.Debug("rejected header", "peer", peer, "number", h.Number, "reason", err.Reason)
			return err
		}
	}
	return nil
}

func (hc *HeaderChain) attach(h *types.Header) *DeliveryError {
	if h.Difficulty == nil || h.Difficulty.Sign() < 0 {
		return &DeliveryError{Reason: types.PenaltyBadProtocol, Message: "malformed difficulty"}
	}

	hash := h.Hash()
	if _, exists := hc.links[hash]; exists {
		// Idempotence (spec.md §8 property 5): replays of an already-known
		// header must not perturb DAG state.
		return nil
	}

	if h.Number > hc.topSeen {
		hc.topSeen = h.Number
	}

	link := &types.Link{
		Header:     h,
		Height:     h.Number,
		ParentHash: h.ParentHash,
	}

	if parent, ok := hc.links[h.ParentHash]; ok {
		td, ok := hc.totalDifficulty(parent, h)
		if !ok {
			return &DeliveryError{Reason: types.PenaltyBadBlock, Message: "total difficulty mismatch"}
		}
		link.TD = td
		parent.Children = append(parent.Children, hash)
	} else if parentHeader, ok := hc.db.GetHeader(h.ParentHash); ok {
		td := new(big.Int).Add(hc.tdFromPersisted(parentHeader), h.Difficulty)
		link.TD = td
	}
	// else: parent unknown in memory and on disk; TD stays nil until the
	// anchor resolves and we can walk forward recomputing it.

	hc.links[hash] = link
	hc.attachToAnchor(hash, link)
	return nil
}

// totalDifficulty computes parent.TD + h.Difficulty when parent.TD is known.
func (hc *HeaderChain) totalDifficulty(parent *types.Link, h *types.Header) (*big.Int, bool) {
	if parent.TD == nil {
		return nil, true // parent's own TD is still pending anchor resolution
	}
	return new(big.Int).Add(parent.TD, h.Difficulty), true
}

// tdFromPersisted is a placeholder total-difficulty lookup for a header
// already written to the DB; the store records only headers, so this folds
// the header's own difficulty in as the base. HeadersStage overwrites the
// authoritative value when it commits.
func (hc *HeaderChain) tdFromPersisted(h *types.Header) *big.Int {
	return new(big.Int).Set(h.Difficulty)
}

// attachToAnchor either resolves hash as the awaited parent of an existing
// anchor, extends the anchor owning hash's child, or creates a fresh anchor
// rooted at hash's parent.
func (hc *HeaderChain) attachToAnchor(hash types.Hash, link *types.Link) {
	if anchor, ok := hc.anchors[hash]; ok {
		// This link resolves the anchor: it IS the parent the anchor was
		// waiting for. Fold the anchor's chain into the DAG and drop it.
		delete(hc.anchors, hash)
		hc.recomputeTDFromRoot(link, anchor)
		return
	}

	if _, knownLocally := hc.links[link.ParentHash]; knownLocally {
		return // parent already resolved in this delivery or a prior one
	}
	if _, persisted := hc.db.GetHeader(link.ParentHash); persisted {
		return // parent already on disk
	}

	anchor, ok := hc.anchors[link.ParentHash]
	if !ok {
		hc.insertSeq++
		anchor = &types.Anchor{
			ParentHash:  link.ParentHash,
			FirstHeight: link.Height,
			LastHeight:  link.Height,
			InsertedAt:  hc.insertSeq,
		}
		hc.anchors[link.ParentHash] = anchor
	}
	anchor.Links = append(anchor.Links, hash)
	if link.Height < anchor.FirstHeight {
		anchor.FirstHeight = link.Height
	}
	if link.Height > anchor.LastHeight {
		anchor.LastHeight = link.Height
	}
}

// recomputeTDFromRoot walks an anchor's links in height order now that its
// parent (root) is known, filling in each link's TD.
func (hc *HeaderChain) recomputeTDFromRoot(root *types.Link, anchor *types.Anchor) {
	ordered := append([]types.Hash(nil), anchor.Links...)
	sort.Slice(ordered, func(i, j int) bool {
		return hc.links[ordered[i]].Height < hc.links[ordered[j]].Height
	})

	byHash := make(map[types.Hash]*types.Link, len(ordered)+1)
	byHash[root.Header.Hash()] = root
	for _, h := range ordered {
		link := hc.links[h]
		parent, ok := byHash[link.ParentHash]
		if !ok {
			parent = root
		}
		if parent.TD != nil {
			link.TD = new(big.Int).Add(parent.TD, link.Header.Difficulty)
		}
		byHash[h] = link
	}
}

// RequestMoreHeaders selects the most urgent anchor and returns the
// GetBlockHeaders request to fill its gap, or nil if none is due.
func (hc *HeaderChain) RequestMoreHeaders(now time.Time) *types.GetBlockHeaders66 {
	anchor := hc.nextAnchor(now)
	if anchor == nil {
		return nil
	}
	anchor.LastRequest = now.UnixNano()
	anchor.RequestTries++

	gap := anchor.Gap()
	amount := hc.maxBlocksPerRequest
	if gap < amount {
		amount = gap
	}
	if amount == 0 {
		amount = 1
	}

	return &types.GetBlockHeaders66{
		RequestID: uint64(now.UnixNano()),
		Origin:    anchor.ParentHash,
		Amount:    uint64(amount),
		Skip:      0,
		Reverse:   true,
	}
}

// nextAnchor returns the anchor with the smallest first_height whose last
// retry predates request_deadline, breaking ties by insertion order (FIFO),
// per spec.md §4.2.
func (hc *HeaderChain) nextAnchor(now time.Time) *types.Anchor {
	var best *types.Anchor
	for _, a := range hc.anchors {
		if a.LastRequest != 0 {
			age := now.Sub(time.Unix(0, a.LastRequest))
			if age < hc.requestDeadline {
				continue
			}
		}
		if best == nil ||
			a.FirstHeight < best.FirstHeight ||
			(a.FirstHeight == best.FirstHeight && a.InsertedAt < best.InsertedAt) {
			best = a
		}
	}
	return best
}

// WithdrawReady removes and returns the longest contiguous, parent-linked
// run starting at persisted_head+1, in ascending height order, ready for
// HeadersStage to persist.
func (hc *HeaderChain) WithdrawReady() []*types.Header {
	var run []*types.Header

	want := hc.persistedHead + 1
	prevHash, havePrevHash := hc.tipHash()
	for {
		hash, link := hc.findAtHeight(want)
		if link == nil {
			break
		}
		if havePrevHash && link.ParentHash != prevHash {
			break // dangling fragment: its parent isn't our current tip
		}

		run = append(run, link.Header)
		link.Persisted = true
		delete(hc.links, hash)

		prevHash, havePrevHash = hash, true
		want++
	}

	if len(run) > 0 {
		hc.persistedHead = want - 1
	}
	return run
}

// tipHash returns the hash of the current persisted tip, so WithdrawReady
// can confirm each candidate link in a run actually extends it. Height 0
// (nothing persisted yet) has no required parent hash.
func (hc *HeaderChain) tipHash() (types.Hash, bool) {
	if hc.persistedHead == 0 {
		return types.ZeroHash, false
	}
	h, ok := hc.db.GetHeaderByNumber(hc.persistedHead)
	if !ok {
		return types.ZeroHash, false
	}
	return h.Hash(), true
}

func (hc *HeaderChain) findAtHeight(height types.BlockNum) (types.Hash, *types.Link) {
	for hash, link := range hc.links {
		if link.Height == height && !link.Persisted {
			return hash, link
		}
	}
	return types.ZeroHash, nil
}

// PersistedHead returns the highest height WithdrawReady has handed off.
func (hc *HeaderChain) PersistedHead() types.BlockNum { return hc.persistedHead }

// Unwind drops in-memory links above height to and anchors whose
// FirstHeight is above to, and sets the persisted watermark to to,
// mirroring the DB-level unwind HeadersStage performs.
func (hc *HeaderChain) Unwind(to types.BlockNum) {
	for hash, link := range hc.links {
		if link.Height > to {
			delete(hc.links, hash)
		}
	}
	for hash, anchor := range hc.anchors {
		if anchor.FirstHeight > to {
			delete(hc.anchors, hash)
		}
	}
	hc.persistedHead = to
}

// AnchorCount reports how many anchors are currently open, for metrics.
func (hc *HeaderChain) AnchorCount() int { return len(hc.anchors) }

// LinkCount reports how many links are currently buffered in memory.
func (hc *HeaderChain) LinkCount() int { return len(hc.links) }

// TopSeen returns the highest header number observed from any peer so far.
func (hc *HeaderChain) TopSeen() types.BlockNum { return hc.topSeen }
