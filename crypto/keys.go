package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// CompressedPubKeyLen is the length of a SEC1 compressed secp256k1 key.
const CompressedPubKeyLen = 33

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey returns a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Compressed returns the 33-byte compressed encoding used as a node id.
func (k *PublicKey) Compressed() [CompressedPubKeyLen]byte {
	var out [CompressedPubKeyLen]byte
	copy(out[:], crypto.CompressPubkey(k.PublicKey))
	return out
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// DecompressPubKey parses a compressed public key.
func DecompressPubKey(b []byte) (*PublicKey, error) {
	if len(b) != CompressedPubKeyLen {
		return nil, errors.New("crypto: compressed public key must be 33 bytes")
	}
	key, err := crypto.DecompressPubkey(b)
	if err != nil {
		return nil, err
	}
	return &PublicKey{key}, nil
}
