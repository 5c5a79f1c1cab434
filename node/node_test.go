package node

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/gurukamath/silkworm/config"
	"github.com/gurukamath/silkworm/libs/log"
	"github.com/gurukamath/silkworm/types"
)

func testConfig() *config.Config {
	cfg := config.TestConfig()
	cfg.Chain = "sepolia"
	return cfg
}

func TestNewNodeResolvesUnsupportedChain(t *testing.T) {
	cfg := testConfig()
	cfg.Chain = "rinkeby"

	_, err := NewNode(cfg, log.NewNopLogger(), dbm.NewMemDB())
	require.Error(t, err)

	var unsupported *types.ErrUnsupportedChain
	require.ErrorAs(t, err, &unsupported)
}

func TestNewNodeBuildsComponentsForKnownChain(t *testing.T) {
	n, err := NewNode(testConfig(), log.NewNopLogger(), dbm.NewMemDB())
	require.NoError(t, err)
	require.NotNil(t, n.headers)
	require.NotNil(t, n.bodies)
	require.NotNil(t, n.peers)
	require.NotNil(t, n.ex)
	require.NotNil(t, n.loop)
	require.Equal(t, "sepolia", n.chain.Name)
}

func TestCurrentHeadIsGenesisWhenStoreEmpty(t *testing.T) {
	n, err := NewNode(testConfig(), log.NewNopLogger(), dbm.NewMemDB())
	require.NoError(t, err)

	hash, height, td := n.currentHead()
	require.Equal(t, n.chain.GenesisHash, hash)
	require.Equal(t, types.BlockNum(0), height)
	require.Equal(t, big.NewInt(0), td)
}

func TestCurrentHeadReflectsPersistedHeaders(t *testing.T) {
	n, err := NewNode(testConfig(), log.NewNopLogger(), dbm.NewMemDB())
	require.NoError(t, err)

	h := &types.Header{Number: 1, Difficulty: big.NewInt(5)}
	st := n.store
	require.NoError(t, st.CommitHeaders([]*types.Header{h}))

	hash, height, td := n.currentHead()
	require.Equal(t, h.Hash(), hash)
	require.Equal(t, types.BlockNum(1), height)
	require.Equal(t, big.NewInt(5), td)
}

func TestNodeStringIncludesChainName(t *testing.T) {
	n, err := NewNode(testConfig(), log.NewNopLogger(), dbm.NewMemDB())
	require.NoError(t, err)
	require.Contains(t, n.String(), "sepolia")
}
