package node

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// NodeID is a compressed secp256k1 public key identifying a node.
type NodeID [33]byte

// ParseNodeID decodes a hex encoded compressed public key.
func ParseNodeID(raw string) (NodeID, error) {
	var id NodeID
	if err := decodeFixedHex(raw, id[:]); err != nil {
		return id, fmt.Errorf("node id: %w", err)
	}
	if id[0] != 0x02 && id[0] != 0x03 {
		return id, fmt.Errorf("node id: invalid compressed key prefix %#x", id[0])
	}
	return id, nil
}

func (id NodeID) String() string { return hex.EncodeToString(id[:]) }

func (id NodeID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ChannelID identifies a channel.
type ChannelID [32]byte

// ParseChannelID decodes a hex encoded channel id.
func ParseChannelID(raw string) (ChannelID, error) {
	var id ChannelID
	if err := decodeFixedHex(raw, id[:]); err != nil {
		return id, fmt.Errorf("channel id: %w", err)
	}
	return id, nil
}

func (id ChannelID) String() string { return hex.EncodeToString(id[:]) }

func (id ChannelID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ChannelID) UnmarshalText(text []byte) error {
	parsed, err := ParseChannelID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PaymentID identifies a payment.
type PaymentID [32]byte

func (id PaymentID) String() string { return hex.EncodeToString(id[:]) }

func (id PaymentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *PaymentID) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), id[:])
}

// PaymentHash is the sha256 hash of a payment preimage.
type PaymentHash [32]byte

func (h PaymentHash) String() string { return hex.EncodeToString(h[:]) }

func (h PaymentHash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *PaymentHash) UnmarshalText(text []byte) error {
	return decodeFixedHex(string(text), h[:])
}

// UserChannelID is the 128-bit identifier a node assigns to a channel for
// its own bookkeeping. It prints in decimal.
type UserChannelID struct {
	v uint256.Int
}

// UserChannelIDFromBytes interprets b as a big-endian 128-bit value.
func UserChannelIDFromBytes(b [16]byte) UserChannelID {
	var id UserChannelID
	id.v.SetBytes16(b[:])
	return id
}

// UserChannelIDFromUint64 wraps a small value, mostly useful in tests.
func UserChannelIDFromUint64(v uint64) UserChannelID {
	var id UserChannelID
	id.v.SetUint64(v)
	return id
}

// ParseUserChannelID parses a decimal 128-bit value.
func ParseUserChannelID(raw string) (UserChannelID, error) {
	var id UserChannelID
	if err := id.v.SetFromDecimal(raw); err != nil {
		return id, fmt.Errorf("user channel id: %w", err)
	}
	if id.v.BitLen() > 128 {
		return UserChannelID{}, fmt.Errorf("user channel id: %s exceeds 128 bits", raw)
	}
	return id, nil
}

func (id UserChannelID) String() string { return id.v.Dec() }

func (id UserChannelID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserChannelID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserChannelID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Offer is an encoded payment offer.
type Offer string

func (o Offer) String() string { return string(o) }

func decodeFixedHex(raw string, dst []byte) error {
	if len(raw) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("expected %d hex characters, got %d", hex.EncodedLen(len(dst)), len(raw))
	}
	if _, err := hex.Decode(dst, []byte(raw)); err != nil {
		return err
	}
	return nil
}
