package devnode

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the node is running.
	ErrAlreadyRunning = errors.New("devnode: already running")
	// ErrNotRunning is returned by operations that need a running node.
	ErrNotRunning = errors.New("devnode: not running")
	// ErrNoEvent is returned when acknowledging with an empty queue.
	ErrNoEvent = errors.New("devnode: no event to acknowledge")
	// ErrChannelNotFound is returned for unknown channel identifiers.
	ErrChannelNotFound = errors.New("devnode: channel not found")
	// ErrCounterpartyMismatch is returned when a channel belongs to another peer.
	ErrCounterpartyMismatch = errors.New("devnode: counterparty does not match channel")
	// ErrChannelState is returned for transitions the channel cannot make.
	ErrChannelState = errors.New("devnode: invalid channel state")
	// ErrOfferNotFound is returned when paying an offer this node never issued.
	ErrOfferNotFound = errors.New("devnode: offer not found")
	// ErrInvalidAmount is returned for zero or otherwise unusable amounts.
	ErrInvalidAmount = errors.New("devnode: invalid amount")
	// ErrInsufficientAmount is returned when a payment is below the offer amount.
	ErrInsufficientAmount = errors.New("devnode: amount below offer amount")
	// ErrNetworkMismatch is returned when reopening storage created for another network.
	ErrNetworkMismatch = errors.New("devnode: storage belongs to a different network")
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("devnode: closed")

// ErrInvalidCounterparty is returned when a counterparty id is not a valid
// public key.
var ErrInvalidCounterparty = errors.New("devnode: invalid counterparty node id")
