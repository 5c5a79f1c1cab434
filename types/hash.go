package types

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte content identifier: a header hash, a tx-root, an
// uncle-root, or a genesis hash.
type Hash [32]byte

// ZeroHash is the well-known empty hash, used as a sentinel parent for
// genesis and as the zero value for unset roots.
var ZeroHash = Hash{}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// BytesToHash truncates or zero-pads b on the left to fit a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

func HashFromHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return BytesToHash(b), nil
}

// BlockNum is a monotonically increasing chain height.
type BlockNum uint64

func (n BlockNum) String() string {
	return fmt.Sprintf("%d", uint64(n))
}
