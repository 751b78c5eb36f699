package devnode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const manifestFile = "node.toml"

// manifest records what a storage directory was created for.
type manifest struct {
	Network       string    `toml:"network"`
	NodeID        string    `toml:"node_id"`
	ListenAddress string    `toml:"listen_address"`
	EsploraURL    string    `toml:"esplora_url"`
	CreatedAt     time.Time `toml:"created_at"`
}

// reconcileManifest loads the manifest under dir, writing a fresh one when it
// is missing. The listen address and esplora endpoint follow the latest run;
// the network and node id never change.
func reconcileManifest(dir string, want manifest) (manifest, error) {
	path := filepath.Join(dir, manifestFile)
	var have manifest
	_, err := toml.DecodeFile(path, &have)
	switch {
	case errors.Is(err, os.ErrNotExist):
		want.CreatedAt = time.Now().UTC().Truncate(time.Second)
		return want, writeManifest(path, want)
	case err != nil:
		return manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	if have.Network != want.Network {
		return manifest{}, fmt.Errorf("%w: %s holds %q, requested %q", ErrNetworkMismatch, dir, have.Network, want.Network)
	}
	if have.NodeID != want.NodeID {
		return manifest{}, fmt.Errorf("manifest node id %s does not match key file (%s)", have.NodeID, want.NodeID)
	}
	if have.ListenAddress == want.ListenAddress && have.EsploraURL == want.EsploraURL {
		return have, nil
	}
	have.ListenAddress = want.ListenAddress
	have.EsploraURL = want.EsploraURL
	return have, writeManifest(path, have)
}

func writeManifest(path string, m manifest) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
