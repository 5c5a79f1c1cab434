package store

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/gurukamath/silkworm/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbm.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestPutGetHeader(t *testing.T) {
	s := newTestStore(t)
	h := &types.Header{Number: 7, Difficulty: big.NewInt(100), Timestamp: 42}

	require.NoError(t, s.PutHeader(h))
	require.NoError(t, s.PutCanonical(7, h.Hash()))

	got, ok := s.GetHeaderByNumber(7)
	require.True(t, ok)
	require.Equal(t, h.Hash(), got.Hash())
}

func TestPutGetBody(t *testing.T) {
	s := newTestStore(t)
	h := &types.Header{Number: 1, Difficulty: big.NewInt(1)}
	body := &types.Body{Transactions: [][]byte{{0x01}}}

	require.NoError(t, s.PutBody(h.Hash(), body))
	got, ok := s.GetBody(h.Hash())
	require.True(t, ok)
	require.Equal(t, body.Transactions, got.Transactions)
}

func TestHeadersHeightWatermark(t *testing.T) {
	s := newTestStore(t)
	require.Equal(t, types.BlockNum(0), s.HeadersHeight())

	require.NoError(t, s.SetHeadersHeight(100))
	require.Equal(t, types.BlockNum(100), s.HeadersHeight())
}

func TestUnwindHeadersResetsCanonicalAndWatermark(t *testing.T) {
	s := newTestStore(t)
	for i := types.BlockNum(1); i <= 10; i++ {
		h := &types.Header{Number: i, Difficulty: big.NewInt(1)}
		require.NoError(t, s.PutHeader(h))
		require.NoError(t, s.PutCanonical(i, h.Hash()))
	}
	require.NoError(t, s.SetHeadersHeight(10))

	require.NoError(t, s.UnwindHeaders(6))
	require.Equal(t, types.BlockNum(5), s.HeadersHeight())

	_, ok := s.GetCanonicalHash(6)
	require.False(t, ok)
	_, ok = s.GetCanonicalHash(5)
	require.True(t, ok)
}

func TestCommitHeadersWritesCanonicalAndWatermarkAtomically(t *testing.T) {
	s := newTestStore(t)
	var headers []*types.Header
	parent := types.ZeroHash
	for i := types.BlockNum(1); i <= 3; i++ {
		h := &types.Header{Number: i, ParentHash: parent, Difficulty: big.NewInt(1)}
		headers = append(headers, h)
		parent = h.Hash()
	}

	require.NoError(t, s.CommitHeaders(headers))
	require.Equal(t, types.BlockNum(3), s.HeadersHeight())
	require.Equal(t, big.NewInt(3), s.HeadTD())

	for _, h := range headers {
		got, ok := s.GetHeaderByNumber(h.Number)
		require.True(t, ok)
		require.Equal(t, h.Hash(), got.Hash())
	}
}

func TestCommitHeadersEmptyIsNoOp(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CommitHeaders(nil))
	require.Equal(t, types.BlockNum(0), s.HeadersHeight())
}

func TestCommitBodiesWritesBodiesAndWatermark(t *testing.T) {
	s := newTestStore(t)
	h := &types.Header{Number: 1, Difficulty: big.NewInt(1)}
	body := &types.Body{Transactions: [][]byte{{0x01}}}

	require.NoError(t, s.CommitBodies(map[types.Hash]*types.Body{h.Hash(): body}, 1))
	require.Equal(t, types.BlockNum(1), s.BodiesHeight())

	got, ok := s.GetBody(h.Hash())
	require.True(t, ok)
	require.Equal(t, body.Transactions, got.Transactions)
}

func TestUnwindHeadersToZero(t *testing.T) {
	s := newTestStore(t)
	h := &types.Header{Number: 1, Difficulty: big.NewInt(1)}
	require.NoError(t, s.PutHeader(h))
	require.NoError(t, s.PutCanonical(1, h.Hash()))
	require.NoError(t, s.SetHeadersHeight(1))

	require.NoError(t, s.UnwindHeaders(1))
	require.Equal(t, types.BlockNum(0), s.HeadersHeight())
}

func TestUnwindHeadersRecomputesHeadTD(t *testing.T) {
	s := newTestStore(t)
	var headers []*types.Header
	parent := types.ZeroHash
	for i := types.BlockNum(1); i <= 4; i++ {
		h := &types.Header{Number: i, ParentHash: parent, Difficulty: big.NewInt(2)}
		headers = append(headers, h)
		parent = h.Hash()
	}
	require.NoError(t, s.CommitHeaders(headers))
	require.Equal(t, big.NewInt(8), s.HeadTD())

	require.NoError(t, s.UnwindHeaders(3))
	require.Equal(t, types.BlockNum(2), s.HeadersHeight())
	require.Equal(t, big.NewInt(4), s.HeadTD())
}
