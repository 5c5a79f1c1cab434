package headerchain

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/gurukamath/silkworm/internal/store"
	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

func testConfig() Config {
	return Config{RequestDeadline: 30 * time.Second, MaxBlocksPerRequest: 128}
}

func header(num types.BlockNum, parent types.Hash, diff int64) *types.Header {
	return &types.Header{
		Number:     num,
		ParentHash: parent,
		Difficulty: big.NewInt(diff),
	}
}

func TestWithdrawReadyContiguousRun(t *testing.T) {
	db := store.NewStore(dbm.NewMemDB())
	hc := New(db, log.NewNopLogger(), testConfig(), nil)

	h1 := header(1, types.ZeroHash, 1)
	h2 := header(2, h1.Hash(), 1)
	h3 := header(3, h2.Hash(), 1)

	require.Nil(t, hc.NewHeaders("peerA", []*types.Header{h1, h2, h3}))

	ready := hc.WithdrawReady()
	require.Len(t, ready, 3)
	require.Equal(t, types.BlockNum(1), ready[0].Number)
	require.Equal(t, types.BlockNum(3), ready[2].Number)
	require.Equal(t, types.BlockNum(3), hc.PersistedHead())
}

func TestOutOfOrderArrivalStillWithdrawsContiguousRun(t *testing.T) {
	db := store.NewStore(dbm.NewMemDB())
	hc := New(db, log.NewNopLogger(), testConfig(), nil)

	headers := make([]*types.Header, 0, 5)
	parent := types.ZeroHash
	for i := types.BlockNum(1); i <= 5; i++ {
		h := header(i, parent, 1)
		headers = append(headers, h)
		parent = h.Hash()
	}

	// peer B delivers the tail first, peer A the head later.
	require.Nil(t, hc.NewHeaders("peerB", headers[2:]))
	require.Equal(t, 0, len(hc.WithdrawReady())) // nothing contiguous from genesis yet
	require.Nil(t, hc.NewHeaders("peerA", headers[:2]))

	ready := hc.WithdrawReady()
	require.Len(t, ready, 5)
}

func TestReplayIsIdempotent(t *testing.T) {
	db := store.NewStore(dbm.NewMemDB())
	hc := New(db, log.NewNopLogger(), testConfig(), nil)

	h1 := header(1, types.ZeroHash, 1)
	require.Nil(t, hc.NewHeaders("peerA", []*types.Header{h1}))
	linksBefore := hc.LinkCount()

	require.Nil(t, hc.NewHeaders("peerA", []*types.Header{h1}))
	require.Equal(t, linksBefore, hc.LinkCount())
}

func TestRequestMoreHeadersRespectsDeadline(t *testing.T) {
	db := store.NewStore(dbm.NewMemDB())
	now := time.Now()
	hc := New(db, log.NewNopLogger(), testConfig(), func() time.Time { return now })

	// A header whose parent is unknown creates an anchor.
	orphan := header(100, types.BytesToHash([]byte("missing-parent")), 1)
	require.Nil(t, hc.NewHeaders("peerA", []*types.Header{orphan}))
	require.Equal(t, 1, hc.AnchorCount())

	req := hc.RequestMoreHeaders(now)
	require.NotNil(t, req)
	require.True(t, req.Reverse)

	// immediately retrying is a no-op: still within request_deadline
	req2 := hc.RequestMoreHeaders(now)
	require.Nil(t, req2)

	req3 := hc.RequestMoreHeaders(now.Add(time.Minute))
	require.NotNil(t, req3)
}

func TestUnwindDropsLinksAboveTarget(t *testing.T) {
	db := store.NewStore(dbm.NewMemDB())
	hc := New(db, log.NewNopLogger(), testConfig(), nil)

	h1 := header(1, types.ZeroHash, 1)
	h2 := header(2, h1.Hash(), 1)
	require.Nil(t, hc.NewHeaders("peerA", []*types.Header{h1, h2}))

	hc.Unwind(1)
	require.Equal(t, types.BlockNum(1), hc.PersistedHead())
	require.Equal(t, 1, hc.LinkCount())
}
