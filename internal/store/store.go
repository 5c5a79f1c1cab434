package store

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/gurukamath/silkworm/types"
)

// ReadOnlyAccess is the read surface every stage and the BlockExchange
// coordinator use to inspect what has already been persisted. It never
// blocks on the single writer lock that ReadWriteAccess takes.
type ReadOnlyAccess interface {
	// GetHeader returns the header stored under hash, if any.
	GetHeader(hash types.Hash) (*types.Header, bool)

	// GetCanonicalHash returns the hash canonical at num, if any.
	GetCanonicalHash(num types.BlockNum) (types.Hash, bool)

	// GetHeaderByNumber is a convenience composition of
	// GetCanonicalHash + GetHeader.
	GetHeaderByNumber(num types.BlockNum) (*types.Header, bool)

	// GetBody returns the body stored under the owning header's hash, if any.
	GetBody(hash types.Hash) (*types.Body, bool)

	// HeadersHeight returns the highest canonical header number persisted by
	// HeadersStage, or 0 if none has been persisted yet.
	HeadersHeight() types.BlockNum

	// BodiesHeight returns the highest canonical body number persisted by
	// BodiesStage, or 0 if none has been persisted yet.
	BodiesHeight() types.BlockNum

	// HeadTD returns the cumulative difficulty of the canonical chain up to
	// HeadersHeight, or zero if nothing has been persisted yet (spec.md
	// §4.5 "head_hash/head_td/head_height update atomically").
	HeadTD() *big.Int
}

// ReadWriteAccess is the mutating surface. Store serializes all writers
// behind a single mutex; there is exactly one writer at a time by design,
// matching the single-writer discipline spec.md §5 assumes of its stages.
type ReadWriteAccess interface {
	ReadOnlyAccess

	// PutHeader persists a header and indexes it by hash. It does not by
	// itself make the header canonical; call PutCanonical for that.
	PutHeader(h *types.Header) error

	// PutCanonical records hash as canonical at num.
	PutCanonical(num types.BlockNum, hash types.Hash) error

	// PutBody persists a body under the hash of the header it belongs to.
	PutBody(hash types.Hash, body *types.Body) error

	// SetHeadersHeight advances the persisted header-sync watermark.
	SetHeadersHeight(num types.BlockNum) error

	// SetBodiesHeight advances the persisted body-sync watermark.
	SetBodiesHeight(num types.BlockNum) error

	// CommitHeaders atomically writes a contiguous run of headers, their
	// canonical mappings, and the advanced headers watermark in a single
	// batch, so a crash mid-write leaves the prior watermark intact
	// (spec.md §4.5 "commit in batches bounded by a transaction budget").
	// headers must be in ascending, parent-linked order.
	CommitHeaders(headers []*types.Header) error

	// CommitBodies atomically writes a set of bodies keyed by their owning
	// header hash and advances the bodies watermark to newHeight.
	CommitBodies(bodies map[types.Hash]*types.Body, newHeight types.BlockNum) error

	// UnwindHeaders removes canonical entries above (and including) num and
	// resets the headers watermark to num-1. It does not delete the header
	// records themselves, since a re-org may later re-canonicalize them.
	UnwindHeaders(num types.BlockNum) error

	// UnwindBodies resets the bodies watermark to num-1.
	UnwindBodies(num types.BlockNum) error
}

// Store is a tm-db backed implementation of ReadWriteAccess. The key layout
// follows the same orderedcode-prefix scheme tendermint's block store uses:
// a small integer prefix distinguishes tables, keeping related keys
// contiguous for range scans.
type Store struct {
	mu sync.Mutex
	db dbm.DB
}

// NewStore wraps db as a Store. The caller owns db's lifecycle.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

const (
	prefixHeader       = int64(0)
	prefixCanonical    = int64(1)
	prefixBody         = int64(2)
	prefixHeadersHight = int64(3)
	prefixBodiesHeight = int64(4)
	prefixHeadTD       = int64(5)
)

func headerKey(hash types.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixHeader, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func canonicalKey(num types.BlockNum) []byte {
	key, err := orderedcode.Append(nil, prefixCanonical, int64(num))
	if err != nil {
		panic(err)
	}
	return key
}

func bodyKey(hash types.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixBody, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func watermarkKey(prefix int64) []byte {
	key, err := orderedcode.Append(nil, prefix)
	if err != nil {
		panic(err)
	}
	return key
}

func (s *Store) GetHeader(hash types.Hash) (*types.Header, bool) {
	bz, err := s.db.Get(headerKey(hash))
	if err != nil {
		panic(fmt.Errorf("store: get header %s: %w", hash, err))
	}
	if len(bz) == 0 {
		return nil, false
	}
	h, err := types.DecodeHeaderRLP(bz)
	if err != nil {
		panic(fmt.Errorf("store: decode header %s: %w", hash, err))
	}
	return h, true
}

func (s *Store) GetCanonicalHash(num types.BlockNum) (types.Hash, bool) {
	bz, err := s.db.Get(canonicalKey(num))
	if err != nil {
		panic(fmt.Errorf("store: get canonical %d: %w", num, err))
	}
	if len(bz) != 32 {
		return types.ZeroHash, false
	}
	return types.BytesToHash(bz), true
}

func (s *Store) GetHeaderByNumber(num types.BlockNum) (*types.Header, bool) {
	hash, ok := s.GetCanonicalHash(num)
	if !ok {
		return nil, false
	}
	return s.GetHeader(hash)
}

func (s *Store) GetBody(hash types.Hash) (*types.Body, bool) {
	bz, err := s.db.Get(bodyKey(hash))
	if err != nil {
		panic(fmt.Errorf("store: get body %s: %w", hash, err))
	}
	if len(bz) == 0 {
		return nil, false
	}
	b, err := types.DecodeBodyRLP(bz)
	if err != nil {
		panic(fmt.Errorf("store: decode body %s: %w", hash, err))
	}
	return b, true
}

func (s *Store) heightOf(prefix int64) types.BlockNum {
	bz, err := s.db.Get(watermarkKey(prefix))
	if err != nil {
		panic(err)
	}
	if len(bz) == 0 {
		return 0
	}
	var n int64
	if _, err := orderedcode.Parse(string(bz), &n); err != nil {
		panic(fmt.Errorf("store: decode watermark: %w", err))
	}
	return types.BlockNum(n)
}

func (s *Store) HeadersHeight() types.BlockNum { return s.heightOf(prefixHeadersHight) }
func (s *Store) BodiesHeight() types.BlockNum  { return s.heightOf(prefixBodiesHeight) }

func (s *Store) HeadTD() *big.Int {
	bz, err := s.db.Get(watermarkKey(prefixHeadTD))
	if err != nil {
		panic(fmt.Errorf("store: get head td: %w", err))
	}
	if len(bz) == 0 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(bz)
}

func (s *Store) PutHeader(h *types.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bz, err := h.EncodeRLP()
	if err != nil {
		return fmt.Errorf("store: encode header: %w", err)
	}
	return s.db.Set(headerKey(h.Hash()), bz)
}

func (s *Store) PutCanonical(num types.BlockNum, hash types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Set(canonicalKey(num), hash[:])
}

func (s *Store) PutBody(hash types.Hash, body *types.Body) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bz, err := body.EncodeRLP()
	if err != nil {
		return fmt.Errorf("store: encode body: %w", err)
	}
	return s.db.Set(bodyKey(hash), bz)
}

func (s *Store) setHeight(prefix int64, num types.BlockNum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := orderedcode.Append(nil, int64(num))
	if err != nil {
		return err
	}
	return s.db.Set(watermarkKey(prefix), key)
}

func (s *Store) SetHeadersHeight(num types.BlockNum) error {
	return s.setHeight(prefixHeadersHight, num)
}

func (s *Store) SetBodiesHeight(num types.BlockNum) error {
	return s.setHeight(prefixBodiesHeight, num)
}

// CommitHeaders writes every header and its canonical mapping, then bumps
// the headers watermark to the last header's number, all in one batch.
func (s *Store) CommitHeaders(headers []*types.Header) error {
	if len(headers) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, h := range headers {
		bz, err := h.EncodeRLP()
		if err != nil {
			return fmt.Errorf("store: encode header %d: %w", h.Number, err)
		}
		if err := batch.Set(headerKey(h.Hash()), bz); err != nil {
			return err
		}
		hash := h.Hash()
		if err := batch.Set(canonicalKey(h.Number), hash[:]); err != nil {
			return err
		}
	}

	last := headers[len(headers)-1].Number
	wk, err := orderedcode.Append(nil, int64(last))
	if err != nil {
		return err
	}
	if err := batch.Set(watermarkKey(prefixHeadersHight), wk); err != nil {
		return err
	}

	td := s.HeadTD()
	for _, h := range headers {
		td.Add(td, h.Difficulty)
	}
	if err := batch.Set(watermarkKey(prefixHeadTD), td.Bytes()); err != nil {
		return err
	}

	return batch.WriteSync()
}

// CommitBodies writes every body keyed by its owning header hash and bumps
// the bodies watermark to newHeight in one batch.
func (s *Store) CommitBodies(bodies map[types.Hash]*types.Body, newHeight types.BlockNum) error {
	if len(bodies) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for hash, body := range bodies {
		bz, err := body.EncodeRLP()
		if err != nil {
			return fmt.Errorf("store: encode body %s: %w", hash, err)
		}
		if err := batch.Set(bodyKey(hash), bz); err != nil {
			return err
		}
	}

	wk, err := orderedcode.Append(nil, int64(newHeight))
	if err != nil {
		return err
	}
	if err := batch.Set(watermarkKey(prefixBodiesHeight), wk); err != nil {
		return err
	}

	return batch.WriteSync()
}

// UnwindHeaders drops canonical mappings at and above num. Header and body
// records are left in place: StageLoop's unwind contract (spec.md §5) only
// requires the canonical chain and watermark to retreat, not that the data
// be deleted, since a competing fork may reuse the same header bytes.
func (s *Store) UnwindHeaders(num types.BlockNum) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	iter, err := s.db.Iterator(canonicalKey(num), canonicalKey(1<<62))
	if err != nil {
		return err
	}
	defer iter.Close()
	for ; iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key()); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}

	newHeight := types.BlockNum(0)
	if num > 0 {
		newHeight = num - 1
	}
	wk, err := orderedcode.Append(nil, int64(newHeight))
	if err != nil {
		return err
	}
	if err := batch.Set(watermarkKey(prefixHeadersHight), wk); err != nil {
		return err
	}

	// head_td has no per-height ledger, only the running total, so a
	// rollback recomputes it by re-summing every canonical header still
	// below newHeight rather than trying to subtract the unwound tail.
	td := new(big.Int)
	for n := types.BlockNum(1); n <= newHeight; n++ {
		h, ok := s.GetHeaderByNumber(n)
		if !ok {
			return fmt.Errorf("store: unwind headers: missing canonical header %d while recomputing head td", n)
		}
		td.Add(td, h.Difficulty)
	}
	if err := batch.Set(watermarkKey(prefixHeadTD), td.Bytes()); err != nil {
		return err
	}

	return batch.WriteSync()
}

// UnwindBodies resets the bodies watermark to num-1 without touching any
// persisted body records, for the same reason UnwindHeaders keeps headers.
func (s *Store) UnwindBodies(num types.BlockNum) error {
	newHeight := types.BlockNum(0)
	if num > 0 {
		newHeight = num - 1
	}
	return s.SetBodiesHeight(newHeight)
}
