package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStoragePathRequired is returned when the storage path is blank.
var ErrStoragePathRequired = errors.New("storage_path must not be empty")

// UsageError is returned when too few positional parameters are supplied.
type UsageError struct {
	Program string
}

func (e *UsageError) Error() string {
	prog := e.Program
	if strings.TrimSpace(prog) == "" {
		prog = "nodepilot"
	}
	return fmt.Sprintf("Usage: %s storage_path listening_addr network esplora_server_url [offer_amount_msat]", prog)
}

// AddressParseError reports a listen address that is not a socket address.
type AddressParseError struct {
	Input string
	Err   error
}

func (e *AddressParseError) Error() string {
	return fmt.Sprintf("Failed to parse listening_addr: %s", e.Input)
}

func (e *AddressParseError) Unwrap() error { return e.Err }

// NetworkParseError reports an unsupported network token.
type NetworkParseError struct {
	Input string
}

func (e *NetworkParseError) Error() string {
	names := make([]string, 0, len(Networks))
	for _, n := range Networks {
		names = append(names, "'"+string(n)+"'")
	}
	return fmt.Sprintf("Unsupported network: %s. Use %s.", e.Input, strings.Join(names, ", "))
}

// AmountParseError reports an offer amount that is not an unsigned integer.
type AmountParseError struct {
	Input string
	Err   error
}

func (e *AmountParseError) Error() string {
	return fmt.Sprintf("Failed to parse amount: %s", e.Input)
}

func (e *AmountParseError) Unwrap() error { return e.Err }
