package sentry

import (
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/gurukamath/silkworm/types"
)

func TestDecodeEnvelopeRoundTripsBlockHeaders(t *testing.T) {
	msg := &types.BlockHeaders66{RequestID: 7}
	data, err := rlp.EncodeToBytes(msg)
	require.NoError(t, err)

	decoded, err := decodeEnvelope(&InboundEnvelope{Kind: KindBlockHeaders, Data: data})
	require.NoError(t, err)
	got, ok := decoded.(*types.BlockHeaders66)
	require.True(t, ok)
	require.Equal(t, uint64(7), got.RequestID)
}

func TestDecodeEnvelopeRejectsUnknownKind(t *testing.T) {
	_, err := decodeEnvelope(&InboundEnvelope{Kind: "bogus"})
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsMalformedData(t *testing.T) {
	_, err := decodeEnvelope(&InboundEnvelope{Kind: KindGetBlockBodies, Data: []byte{0xFF, 0xFF}})
	require.Error(t, err)
}
