package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHeader(num BlockNum) *Header {
	return &Header{
		ParentHash: Keccak256([]byte("parent")),
		UncleHash:  Keccak256([]byte("uncles")),
		StateRoot:  Keccak256([]byte("state")),
		TxRoot:     Keccak256([]byte("txs")),
		Number:     num,
		Difficulty: big.NewInt(17),
		Timestamp:  1700000000,
		Extra:      []byte("silkworm"),
	}
}

func TestHeaderRLPRoundTrip(t *testing.T) {
	h := sampleHeader(42)
	enc, err := h.EncodeRLP()
	require.NoError(t, err)

	got, err := DecodeHeaderRLP(enc)
	require.NoError(t, err)

	reenc, err := got.EncodeRLP()
	require.NoError(t, err)
	require.Equal(t, enc, reenc)
	require.Equal(t, h.Hash(), got.Hash())
}

func TestBodyMatchesHeader(t *testing.T) {
	body := &Body{
		Transactions: [][]byte{[]byte("tx1"), []byte("tx2")},
		Uncles:       nil,
	}
	txRoot, err := body.TxRootHash()
	require.NoError(t, err)
	uncleRoot, err := body.UncleRootHash()
	require.NoError(t, err)

	h := &Header{TxRoot: txRoot, UncleHash: uncleRoot}
	ok, err := body.MatchesHeader(h)
	require.NoError(t, err)
	require.True(t, ok)

	h.TxRoot = Keccak256([]byte("wrong"))
	ok, err = body.MatchesHeader(h)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBodyRLPRoundTrip(t *testing.T) {
	body := &Body{Transactions: [][]byte{[]byte("a")}}
	enc, err := body.EncodeRLP()
	require.NoError(t, err)

	got, err := DecodeBodyRLP(enc)
	require.NoError(t, err)
	reenc, err := got.EncodeRLP()
	require.NoError(t, err)
	require.Equal(t, enc, reenc)
}

func TestHeaderHashIsMemoised(t *testing.T) {
	h := sampleHeader(1)
	first := h.Hash()
	second := h.Hash()
	require.Equal(t, first, second)
}
