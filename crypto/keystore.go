package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
)

// LoadOrCreateKeyFile returns the key stored at path, generating and
// persisting a new one when the file does not exist. The second return value
// reports whether a key was created.
func LoadOrCreateKeyFile(path string) (*PrivateKey, bool, error) {
	key, err := LoadKeyFile(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	key, err = GeneratePrivateKey()
	if err != nil {
		return nil, false, fmt.Errorf("crypto: generate key: %w", err)
	}
	if err := SaveKeyFile(path, key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// SaveKeyFile writes the provided private key hex encoded to path with 0600
// permissions. If the parent directory does not exist it will be created with
// 0700 permissions.
func SaveKeyFile(path string, key *PrivateKey) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty key path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return crypto.SaveECDSA(path, key.PrivateKey)
}

// LoadKeyFile reads a key written by SaveKeyFile.
func LoadKeyFile(path string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty key path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: load key %s: %w", path, err)
	}
	return &PrivateKey{key}, nil
}
