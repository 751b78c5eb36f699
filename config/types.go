package config

import "fmt"

// Network identifies the chain a node operates on.
type Network string

const (
	NetworkBitcoin Network = "bitcoin"
	NetworkTestnet Network = "testnet"
	NetworkRegtest Network = "regtest"
	NetworkSignet  Network = "signet"
)

// Networks lists the supported identifiers in display order.
var Networks = []Network{NetworkBitcoin, NetworkTestnet, NetworkRegtest, NetworkSignet}

// ParseNetwork matches raw against the supported identifiers. Matching is
// case sensitive.
func ParseNetwork(raw string) (Network, error) {
	for _, n := range Networks {
		if string(n) == raw {
			return n, nil
		}
	}
	return "", &NetworkParseError{Input: raw}
}

func (n Network) String() string { return string(n) }

// Valid reports whether n is one of the supported identifiers.
func (n Network) Valid() bool {
	_, err := ParseNetwork(string(n))
	return err == nil
}

// LogLevel is the verbosity handed to the node.
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}
