package types

import (
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// Header carries the consensus-relevant fields of a block header. Its
// identity is Keccak256(RLP(header)); see spec.md §3.
type Header struct {
	ParentHash Hash     `json:"parentHash"`
	UncleHash  Hash     `json:"sha3Uncles"`
	StateRoot  Hash     `json:"stateRoot"`
	TxRoot     Hash     `json:"transactionsRoot"`
	Number     BlockNum `json:"number"`
	Difficulty *big.Int `json:"difficulty"`
	Timestamp  uint64   `json:"timestamp"`
	Extra      []byte   `json:"extraData"`

	hash atomic.Value
}

// Body is the set of transactions and uncle headers belonging to a block.
// A body is only valid for a given header once its roots match (spec.md §3).
type Body struct {
	Transactions [][]byte `json:"transactions"`
	Uncles       []Header `json:"uncles"`
}

// headerRLP is the wire/hash shape of Header: the memoised hash cache must
// never be part of the encoding.
type headerRLP struct {
	ParentHash Hash
	UncleHash  Hash
	StateRoot  Hash
	TxRoot     Hash
	Number     BlockNum
	Difficulty *big.Int
	Timestamp  uint64
	Extra      []byte
}

func (h *Header) toRLP() headerRLP {
	return headerRLP{
		ParentHash: h.ParentHash,
		UncleHash:  h.UncleHash,
		StateRoot:  h.StateRoot,
		TxRoot:     h.TxRoot,
		Number:     h.Number,
		Difficulty: h.Difficulty,
		Timestamp:  h.Timestamp,
		Extra:      h.Extra,
	}
}

// EncodeRLP returns the canonical RLP encoding of the header.
func (h *Header) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(h.toRLP())
}

// DecodeHeaderRLP decodes the canonical RLP form of a header.
func DecodeHeaderRLP(b []byte) (*Header, error) {
	var r headerRLP
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return nil, err
	}
	return &Header{
		ParentHash: r.ParentHash,
		UncleHash:  r.UncleHash,
		StateRoot:  r.StateRoot,
		TxRoot:     r.TxRoot,
		Number:     r.Number,
		Difficulty: r.Difficulty,
		Timestamp:  r.Timestamp,
		Extra:      r.Extra,
	}, nil
}

// Hash returns Keccak256(RLP(header)), memoised on first computation. Not
// safe to call concurrently with mutation of the header's fields.
func (h *Header) Hash() Hash {
	if v := h.hash.Load(); v != nil {
		return v.(Hash)
	}
	enc, err := h.EncodeRLP()
	if err != nil {
		panic("header: rlp encode failed: " + err.Error())
	}
	out := Keccak256(enc)
	h.hash.Store(out)
	return out
}

// Keccak256 hashes data with the devp2p Keccak-256 variant (distinct from
// standard SHA3-256).
func Keccak256(data ...[]byte) Hash {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return BytesToHash(d.Sum(nil))
}

// EncodeRLP returns the canonical RLP encoding of the body.
func (b *Body) EncodeRLP() ([]byte, error) {
	return rlp.EncodeToBytes(b)
}

func DecodeBodyRLP(data []byte) (*Body, error) {
	var b Body
	if err := rlp.DecodeBytes(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// TxRootHash computes the root hash the body's transaction list must match.
func (b *Body) TxRootHash() (Hash, error) {
	enc, err := rlp.EncodeToBytes(b.Transactions)
	if err != nil {
		return Hash{}, err
	}
	return Keccak256(enc), nil
}

// UncleRootHash computes the root hash the body's uncle list must match.
func (b *Body) UncleRootHash() (Hash, error) {
	enc, err := rlp.EncodeToBytes(b.Uncles)
	if err != nil {
		return Hash{}, err
	}
	return Keccak256(enc), nil
}

// MatchesHeader reports whether the body's roots satisfy spec.md §3's body
// validity invariant for the given header.
func (b *Body) MatchesHeader(h *Header) (bool, error) {
	txRoot, err := b.TxRootHash()
	if err != nil {
		return false, err
	}
	uncleRoot, err := b.UncleRootHash()
	if err != nil {
		return false, err
	}
	return txRoot == h.TxRoot && uncleRoot == h.UncleHash, nil
}
