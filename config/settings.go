package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Strategy selects how the event loop is scheduled.
type Strategy string

const (
	StrategyBlocking    Strategy = "blocking"
	StrategyCooperative Strategy = "cooperative"
)

// DefaultMaxDustExposureMsat is the whole bitcoin supply expressed in msat.
const DefaultMaxDustExposureMsat uint64 = 2_100_000_000_000_000_000

// Settings captures the optional runtime knobs that sit next to the
// positional configuration.
type Settings struct {
	Strategy Strategy        `yaml:"strategy"`
	Admin    AdminSettings   `yaml:"admin"`
	Journal  JournalSettings `yaml:"journal"`
	Log      LogSettings     `yaml:"log"`
	Offers   OfferSettings   `yaml:"offers"`
	Channel  ChannelSettings `yaml:"channel"`
	Devnode  DevnodeSettings `yaml:"devnode"`
}

// AdminSettings configures the operator HTTP surface. An empty listen address
// disables it.
type AdminSettings struct {
	Listen string `yaml:"listen"`
}

// JournalSettings configures the event journal. An empty DSN disables it.
type JournalSettings struct {
	DSN string `yaml:"dsn"`
}

// LogSettings controls where structured logs are written.
type LogSettings struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// OfferSettings holds the descriptions attached to created offers.
type OfferSettings struct {
	FixedDescription    string `yaml:"fixed_description"`
	VariableDescription string `yaml:"variable_description"`
}

// ChannelSettings controls the reconfiguration applied to ready channels.
type ChannelSettings struct {
	// ReconfigureOnReady defaults to true for the cooperative strategy and
	// false for the blocking one when unset.
	ReconfigureOnReady  *bool  `yaml:"reconfigure_on_ready"`
	MaxDustExposureMsat uint64 `yaml:"max_dust_exposure_msat"`
}

// DevnodeSettings tunes the development node.
type DevnodeSettings struct {
	SyncInterval Duration `yaml:"sync_interval"`
	SyncRate     float64  `yaml:"sync_rate"`
}

// Reconfigure resolves whether ready channels get their dust limit raised.
func (s Settings) Reconfigure() bool {
	if s.Channel.ReconfigureOnReady != nil {
		return *s.Channel.ReconfigureOnReady
	}
	return s.Strategy == StrategyCooperative
}

// DefaultSettings returns the settings used when no file is supplied.
func DefaultSettings() Settings {
	var s Settings
	applyDefaults(&s)
	return s
}

// LoadSettings reads settings from the supplied YAML path.
func LoadSettings(path string) (Settings, error) {
	s := Settings{}
	file, err := os.Open(path)
	if err != nil {
		return s, fmt.Errorf("open settings: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	applyDefaults(&s)
	if err := validateSettings(s); err != nil {
		return s, err
	}
	return s, nil
}

func applyDefaults(s *Settings) {
	s.Strategy = Strategy(strings.ToLower(strings.TrimSpace(string(s.Strategy))))
	if s.Strategy == "" {
		s.Strategy = StrategyCooperative
	}
	s.Admin.Listen = strings.TrimSpace(s.Admin.Listen)
	s.Journal.DSN = strings.TrimSpace(s.Journal.DSN)
	s.Log.File = strings.TrimSpace(s.Log.File)
	if s.Log.MaxSizeMB <= 0 {
		s.Log.MaxSizeMB = 100
	}
	if s.Log.MaxBackups <= 0 {
		s.Log.MaxBackups = 5
	}
	if s.Offers.FixedDescription == "" {
		s.Offers.FixedDescription = "TEST OFFER"
	}
	if s.Offers.VariableDescription == "" {
		s.Offers.VariableDescription = "VAR-AMT TEST OFFER"
	}
	if s.Channel.MaxDustExposureMsat == 0 {
		s.Channel.MaxDustExposureMsat = DefaultMaxDustExposureMsat
	}
	if s.Devnode.SyncInterval.Duration == 0 {
		s.Devnode.SyncInterval.Duration = 10 * time.Second
	}
	if s.Devnode.SyncRate == 0 {
		s.Devnode.SyncRate = 1
	}
}
