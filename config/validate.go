package config

import (
	"fmt"
	"net"
)

func validateSettings(s Settings) error {
	switch s.Strategy {
	case StrategyBlocking, StrategyCooperative:
	default:
		return fmt.Errorf("strategy: unsupported value %q", s.Strategy)
	}
	if s.Admin.Listen != "" {
		if _, _, err := net.SplitHostPort(s.Admin.Listen); err != nil {
			return fmt.Errorf("admin: listen: %w", err)
		}
	}
	if s.Devnode.SyncInterval.Duration < 0 {
		return fmt.Errorf("devnode: sync_interval must be positive")
	}
	if s.Devnode.SyncRate < 0 {
		return fmt.Errorf("devnode: sync_rate must be positive")
	}
	return nil
}

// Validate checks settings assembled outside LoadSettings, for example after
// a command line override.
func (s Settings) Validate() error {
	return validateSettings(s)
}
