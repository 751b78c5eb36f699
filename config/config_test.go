package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAssembleFixedAmount(t *testing.T) {
	argv := []string{"prog", "/tmp/data", "127.0.0.1:9000", "regtest", "https://esplora.example", "50000"}
	cfg, err := Assemble(argv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Network != NetworkRegtest {
		t.Fatalf("unexpected network: %s", cfg.Network)
	}
	if cfg.StoragePath != "/tmp/data" {
		t.Fatalf("unexpected storage path: %q", cfg.StoragePath)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.EsploraURL != "https://esplora.example" {
		t.Fatalf("unexpected endpoint: %q", cfg.EsploraURL)
	}
	if cfg.LogLevel != LogLevelTrace {
		t.Fatalf("expected trace log level, got %s", cfg.LogLevel)
	}
	if cfg.OfferAmountMsat == nil || *cfg.OfferAmountMsat != 50000 {
		t.Fatalf("unexpected offer amount: %v", cfg.OfferAmountMsat)
	}
}

func TestAssembleVariableAmount(t *testing.T) {
	cfg, err := Assemble([]string{"prog", "/tmp/data", "127.0.0.1:9000", "regtest", "https://esplora.example"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HasFixedOfferAmount() {
		t.Fatalf("expected variable amount, got %d", *cfg.OfferAmountMsat)
	}
}

func TestAssembleAcceptsAllNetworks(t *testing.T) {
	for _, network := range []string{"bitcoin", "testnet", "regtest", "signet"} {
		cfg, err := Assemble([]string{"prog", "/data", "[::1]:9735", network, "http://localhost:3002"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", network, err)
		}
		if cfg.Network.String() != network {
			t.Fatalf("expected %s, got %s", network, cfg.Network)
		}
	}
}

func TestAssembleUsage(t *testing.T) {
	_, err := Assemble([]string{"prog", "/data", "127.0.0.1:9000", "regtest"})
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	want := "Usage: prog storage_path listening_addr network esplora_server_url [offer_amount_msat]"
	if got := err.Error(); got != want {
		t.Fatalf("unexpected message: got %q, want %q", got, want)
	}
	if _, err := Assemble(nil); !errors.As(err, &usage) {
		t.Fatalf("expected usage error for empty argv, got %v", err)
	}
}

func TestAssembleRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		argv  []string
		check func(error) bool
	}{
		{
			name: "blank storage",
			argv: []string{"prog", "  ", "127.0.0.1:9000", "regtest", "http://e"},
			check: func(err error) bool {
				return errors.Is(err, ErrStoragePathRequired)
			},
		},
		{
			name: "missing port",
			argv: []string{"prog", "/data", "127.0.0.1", "regtest", "http://e"},
			check: func(err error) bool {
				var target *AddressParseError
				return errors.As(err, &target)
			},
		},
		{
			name: "port out of range",
			argv: []string{"prog", "/data", "127.0.0.1:70000", "regtest", "http://e"},
			check: func(err error) bool {
				var target *AddressParseError
				return errors.As(err, &target)
			},
		},
		{
			name: "empty host",
			argv: []string{"prog", "/data", ":9000", "regtest", "http://e"},
			check: func(err error) bool {
				var target *AddressParseError
				return errors.As(err, &target)
			},
		},
		{
			name: "unknown network",
			argv: []string{"prog", "/data", "127.0.0.1:9000", "mainnet", "http://e"},
			check: func(err error) bool {
				var target *NetworkParseError
				return errors.As(err, &target) && target.Input == "mainnet"
			},
		},
		{
			name: "network is case sensitive",
			argv: []string{"prog", "/data", "127.0.0.1:9000", "Regtest", "http://e"},
			check: func(err error) bool {
				var target *NetworkParseError
				return errors.As(err, &target)
			},
		},
		{
			name: "negative amount",
			argv: []string{"prog", "/data", "127.0.0.1:9000", "regtest", "http://e", "-5"},
			check: func(err error) bool {
				var target *AmountParseError
				return errors.As(err, &target) && target.Input == "-5"
			},
		},
		{
			name: "amount overflow",
			argv: []string{"prog", "/data", "127.0.0.1:9000", "regtest", "http://e", "18446744073709551616"},
			check: func(err error) bool {
				var target *AmountParseError
				return errors.As(err, &target)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Assemble(tc.argv)
			if err == nil {
				t.Fatalf("expected error, got config %+v", cfg)
			}
			if !tc.check(err) {
				t.Fatalf("unexpected error kind: %T %v", err, err)
			}
			if cfg != (Config{}) {
				t.Fatalf("expected zero config on failure, got %+v", cfg)
			}
		})
	}
}

func TestParseListenAddressHostname(t *testing.T) {
	if _, err := ParseListenAddress("node.example.com:9735"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseListenAddress("bad_host:9735"); err == nil {
		t.Fatalf("expected underscore host to be rejected")
	}
}

func TestNetworkParseErrorMessage(t *testing.T) {
	err := &NetworkParseError{Input: "foo"}
	want := "Unsupported network: foo. Use 'bitcoin', 'testnet', 'regtest', 'signet'."
	if got := err.Error(); got != want {
		t.Fatalf("unexpected message: got %q, want %q", got, want)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.Strategy != StrategyCooperative {
		t.Fatalf("unexpected strategy: %s", s.Strategy)
	}
	if s.Offers.FixedDescription != "TEST OFFER" || s.Offers.VariableDescription != "VAR-AMT TEST OFFER" {
		t.Fatalf("unexpected offer descriptions: %+v", s.Offers)
	}
	if s.Channel.MaxDustExposureMsat != DefaultMaxDustExposureMsat {
		t.Fatalf("unexpected dust ceiling: %d", s.Channel.MaxDustExposureMsat)
	}
	if s.Devnode.SyncInterval.Duration != 10*time.Second {
		t.Fatalf("unexpected sync interval: %s", s.Devnode.SyncInterval)
	}
	if !s.Reconfigure() {
		t.Fatalf("expected cooperative default to reconfigure")
	}
	s.Strategy = StrategyBlocking
	if s.Reconfigure() {
		t.Fatalf("expected blocking default to skip reconfiguration")
	}
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	contents := `strategy: Blocking
admin:
  listen: ":9100"
journal:
  dsn: "journal.sqlite"
offers:
  fixed_description: "FIXED"
channel:
  reconfigure_on_ready: true
  max_dust_exposure_msat: 5000
devnode:
  sync_interval: 2s
  sync_rate: 4
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.Strategy != StrategyBlocking {
		t.Fatalf("unexpected strategy: %s", s.Strategy)
	}
	if s.Admin.Listen != ":9100" || s.Journal.DSN != "journal.sqlite" {
		t.Fatalf("unexpected admin/journal settings: %+v %+v", s.Admin, s.Journal)
	}
	if s.Offers.FixedDescription != "FIXED" || s.Offers.VariableDescription != "VAR-AMT TEST OFFER" {
		t.Fatalf("unexpected offers: %+v", s.Offers)
	}
	if !s.Reconfigure() {
		t.Fatalf("expected explicit reconfigure_on_ready to win over strategy default")
	}
	if s.Channel.MaxDustExposureMsat != 5000 {
		t.Fatalf("unexpected dust ceiling: %d", s.Channel.MaxDustExposureMsat)
	}
	if s.Devnode.SyncInterval.Duration != 2*time.Second || s.Devnode.SyncRate != 4 {
		t.Fatalf("unexpected devnode settings: %+v", s.Devnode)
	}
}

func TestLoadSettingsRejectsUnknownStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("strategy: threads\n"), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatalf("expected unknown strategy to be rejected")
	}
}

func TestLoadSettingsRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("devnode:\n  sync_interval: soon\n"), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Fatalf("expected invalid duration to be rejected")
	}
}
