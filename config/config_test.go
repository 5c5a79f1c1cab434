package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())
}

func TestTestConfigValidates(t *testing.T) {
	cfg := TestConfig()
	require.NoError(t, cfg.ValidateBasic())
}

func TestValidateBasicRejectsBadLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	require.Error(t, cfg.ValidateBasic())
}

func TestValidateBasicRejectsZeroExchangeLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.MaxBlocksPerRequest = 0
	require.Error(t, cfg.ValidateBasic())
}

func TestSetRootPropagatesToStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetRoot("/tmp/silkworm-home")
	require.Equal(t, "/tmp/silkworm-home", cfg.RootDir)
	require.Equal(t, "/tmp/silkworm-home", cfg.Store.RootDir)
}
