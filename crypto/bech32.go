package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// EncodeBech32 encodes payload under the human-readable prefix hrp.
func EncodeBech32(hrp string, payload []byte) (string, error) {
	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("bech32 encode: %w", err)
	}
	return encoded, nil
}

// DecodeBech32 decodes s and checks that it carries the expected prefix.
func DecodeBech32(expectedHRP, s string) ([]byte, error) {
	hrp, decoded, err := bech32.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if hrp != expectedHRP {
		return nil, fmt.Errorf("unexpected bech32 prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("error converting bits: %w", err)
	}
	return conv, nil
}
