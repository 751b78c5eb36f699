package config

import (
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Config is the validated node configuration assembled from the command line.
// It is built once at startup and never mutated afterwards.
type Config struct {
	StoragePath   string
	ListenAddress string
	Network       Network
	EsploraURL    string
	LogLevel      LogLevel
	// OfferAmountMsat is nil when offers should be created without a fixed
	// amount.
	OfferAmountMsat *uint64
}

// HasFixedOfferAmount reports whether a fixed offer amount was configured.
func (c Config) HasFixedOfferAmount() bool {
	return c.OfferAmountMsat != nil
}

// Assemble validates argv (program name first) and returns the resulting
// configuration. It never touches the filesystem or the network.
func Assemble(argv []string) (Config, error) {
	program := ""
	if len(argv) > 0 {
		program = argv[0]
	}
	if len(argv) < 5 {
		return Config{}, &UsageError{Program: program}
	}

	cfg := Config{
		StoragePath: argv[1],
		EsploraURL:  argv[4],
		LogLevel:    LogLevelTrace,
	}
	if strings.TrimSpace(cfg.StoragePath) == "" {
		return Config{}, ErrStoragePathRequired
	}

	addr, err := ParseListenAddress(argv[2])
	if err != nil {
		return Config{}, err
	}
	cfg.ListenAddress = addr

	network, err := ParseNetwork(argv[3])
	if err != nil {
		return Config{}, err
	}
	cfg.Network = network

	if len(argv) > 5 {
		amount, err := strconv.ParseUint(argv[5], 10, 64)
		if err != nil {
			return Config{}, &AmountParseError{Input: argv[5], Err: err}
		}
		cfg.OfferAmountMsat = &amount
	}
	return cfg, nil
}

// ParseListenAddress checks that raw is a host:port socket address. The host
// may be an IP literal or a DNS name.
func ParseListenAddress(raw string) (string, error) {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "", &AddressParseError{Input: raw, Err: err}
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", &AddressParseError{Input: raw, Err: err}
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return raw, nil
	}
	if !validHostname(host) {
		return "", &AddressParseError{Input: raw, Err: errors.New("invalid host")}
	}
	return raw, nil
}

func validHostname(host string) bool {
	if host == "" || len(host) > 255 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			default:
				return false
			}
		}
	}
	return true
}
