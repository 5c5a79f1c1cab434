package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForkIDAdvancesPastForkBlocks(t *testing.T) {
	chain := ChainIdentity{
		GenesisHash: Keccak256([]byte("genesis")),
		ForkBlocks:  []BlockNum{10, 20, 30},
	}

	before := chain.ForkID(5)
	require.Equal(t, uint64(10), before.Next)

	atFork := chain.ForkID(10)
	require.Equal(t, uint64(20), atFork.Next)
	require.NotEqual(t, before.Hash, atFork.Hash)

	past := chain.ForkID(31)
	require.Equal(t, uint64(0), past.Next)
}

func TestResolveChainRejectsUnknown(t *testing.T) {
	_, err := ResolveChain("mainnet")
	require.NoError(t, err)

	for _, name := range []string{"rinkeby", "goerli", "bogus"} {
		_, err := ResolveChain(name)
		require.Error(t, err)
		var unsupported *ErrUnsupportedChain
		require.ErrorAs(t, err, &unsupported)
	}
}
