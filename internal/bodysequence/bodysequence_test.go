package bodysequence

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

func testConfig() Config {
	return Config{RequestDeadline: 30 * time.Second, MaxBlocksPerRequest: 2, MaxPeerBudget: 4}
}

func headerWithBody(num types.BlockNum, body *types.Body) *types.Header {
	h := &types.Header{Number: num, Difficulty: big.NewInt(1)}
	txRoot, _ := body.TxRootHash()
	uncleRoot, _ := body.UncleRootHash()
	h.TxRoot = txRoot
	h.UncleHash = uncleRoot
	return h
}

func TestRequestMoreBatchesByMaxBlocksPerRequest(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	for i := types.BlockNum(1); i <= 5; i++ {
		bs.Add(headerWithBody(i, &types.Body{}))
	}

	now := time.Now()
	reqs := bs.RequestMore(now)
	require.Len(t, reqs, 3) // ceil(5/2)

	total := 0
	for _, r := range reqs {
		total += len(r.Hashes)
	}
	require.Equal(t, 5, total)
}

func TestOnBodiesMatchesByRoot(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body := &types.Body{Transactions: [][]byte{{0xAB}}}
	h := headerWithBody(1, body)
	bs.Add(h)

	bs.RequestMore(time.Now())
	result := bs.OnBodies("peerA", []types.Hash{h.Hash()}, []*types.Body{body})
	require.Len(t, result.Accepted, 1)
	require.Equal(t, h.Hash(), result.Accepted[0].Hash)
	require.Equal(t, 0, bs.Backlog())
}

func TestOnBodiesPartialMatchLeavesRestPending(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body1 := &types.Body{Transactions: [][]byte{{0x01}}}
	body2 := &types.Body{Transactions: [][]byte{{0x02}}}
	h1 := headerWithBody(1, body1)
	h2 := headerWithBody(2, body2)
	bs.Add(h1)
	bs.Add(h2)

	// Requested both hashes but only body1 was delivered: a valid partial
	// reply, not a mismatch, so h2's entry must not accrue any mismatches.
	result := bs.OnBodies("peerA", []types.Hash{h1.Hash(), h2.Hash()}, []*types.Body{body1})
	require.Len(t, result.Accepted, 1)
	require.Empty(t, result.Bad)
	require.Equal(t, 1, bs.Backlog())
}

func TestWithdrawReadyDrainsMatchedBodiesOnce(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body := &types.Body{Transactions: [][]byte{{0x01}}}
	h := headerWithBody(1, body)
	bs.Add(h)

	bs.OnBodies("peerA", []types.Hash{h.Hash()}, []*types.Body{body})

	withdrawn := bs.WithdrawReady()
	require.Len(t, withdrawn, 1)
	require.Equal(t, h.Hash(), withdrawn[0].Hash)
	require.Empty(t, bs.WithdrawReady())
}

func TestTimedOutPeersReportsAfterDeadline(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body := &types.Body{}
	h := headerWithBody(1, body)
	bs.Add(h)

	now := time.Now()
	reqs := bs.RequestMore(now)
	require.Len(t, reqs, 1)
	bs.MarkDispatched(reqs[0], "peerSlow")

	require.Empty(t, bs.TimedOutPeers(now))
	late := now.Add(time.Minute)
	require.Equal(t, []types.PeerID{"peerSlow"}, bs.TimedOutPeers(late))

	reissued := bs.RequestMore(late)
	require.Len(t, reissued, 1)
}

func TestTimedOutPeersDoesNotRefireImmediatelyAfterReissue(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body := &types.Body{}
	h := headerWithBody(1, body)
	bs.Add(h)

	now := time.Now()
	reqs := bs.RequestMore(now)
	bs.MarkDispatched(reqs[0], "peerSlow")

	late := now.Add(time.Minute)
	require.Equal(t, []types.PeerID{"peerSlow"}, bs.TimedOutPeers(late))

	reissued := bs.RequestMore(late)
	require.Len(t, reissued, 1)
	bs.MarkDispatched(reissued[0], "peerFresh")

	// peerFresh just took the request at `late`; it hasn't had a full
	// request_deadline window yet and must not be reported as timed out.
	require.Empty(t, bs.TimedOutPeers(late))

	muchLater := late.Add(time.Minute)
	require.Equal(t, []types.PeerID{"peerFresh"}, bs.TimedOutPeers(muchLater))
}

func TestOnBodiesDeclaresBadBlockAfterMaxMismatches(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body := &types.Body{Transactions: [][]byte{{0xAB}}}
	h := headerWithBody(1, body)
	bs.Add(h)

	wrongBody := &types.Body{Transactions: [][]byte{{0xFF}}}
	requested := []types.Hash{h.Hash()}

	// A full reply (one body for one requested hash) that never matches the
	// header's roots is a wrong answer, not an omission; repeating it
	// maxBodyMismatches times points at a bad header, not unlucky peers.
	for i := 0; i < maxBodyMismatches-1; i++ {
		result := bs.OnBodies("peer", requested, []*types.Body{wrongBody})
		require.Empty(t, result.Accepted)
		require.Empty(t, result.Bad)
		require.Equal(t, 1, bs.Backlog())
	}

	result := bs.OnBodies("peerFinal", requested, []*types.Body{wrongBody})
	require.Empty(t, result.Accepted)
	require.Equal(t, []types.Hash{h.Hash()}, result.Bad)
	require.Equal(t, 0, bs.Backlog())

	withdrawn := bs.WithdrawBad()
	require.Equal(t, []types.Hash{h.Hash()}, withdrawn)
	require.Empty(t, bs.WithdrawBad())
}

func TestOnBodiesPartialReplyNeverCountsAsMismatch(t *testing.T) {
	bs := New(log.NewNopLogger(), testConfig())
	body1 := &types.Body{Transactions: [][]byte{{0x01}}}
	body2 := &types.Body{Transactions: [][]byte{{0x02}}}
	h1 := headerWithBody(1, body1)
	h2 := headerWithBody(2, body2)
	bs.Add(h1)
	bs.Add(h2)

	requested := []types.Hash{h1.Hash(), h2.Hash()}
	// Peer only ever sends one of the two requested bodies, every time: a
	// partial reply, however many times repeated, never implicates h2.
	for i := 0; i < maxBodyMismatches+2; i++ {
		result := bs.OnBodies("peerA", requested, []*types.Body{body1})
		require.Empty(t, result.Bad)
	}
	require.Equal(t, 1, bs.Backlog())
}
