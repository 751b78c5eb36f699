package node

import "context"

// Handle is the command and event surface of a running payment node. Every
// method is safe for concurrent use.
type Handle interface {
	// Start brings the node online.
	Start() error
	// Stop takes the node offline. It must be called at most once per Start.
	Stop() error

	NodeID() NodeID
	ListeningAddresses() []string

	// WaitNextEvent blocks until an event is available and returns it
	// without consuming it.
	WaitNextEvent() Event
	// NextEventAsync is WaitNextEvent that also returns when ctx is done or
	// the node stops.
	NextEventAsync(ctx context.Context) (Event, error)
	// EventHandled acknowledges the event last returned, allowing the next
	// one to be delivered.
	EventHandled() error

	UpdateChannelConfig(userChannelID UserChannelID, counterparty NodeID, cfg ChannelConfig) error
	CreateFixedOffer(amountMsat uint64, description string) (Offer, error)
	CreateVariableOffer(description string) (Offer, error)
}
