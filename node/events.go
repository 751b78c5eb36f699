package node

// Event is a notification emitted by a node. The concrete types below are the
// complete set; consumers should ignore variants they do not handle.
type Event interface {
	// Kind returns a stable snake_case name suitable for logs and metrics.
	Kind() string
	isEvent()
}

// ChannelPending is emitted once a channel's funding transaction has been
// negotiated but is not yet usable.
type ChannelPending struct {
	ChannelID          ChannelID     `json:"channel_id"`
	UserChannelID      UserChannelID `json:"user_channel_id"`
	CounterpartyNodeID NodeID        `json:"counterparty_node_id"`
	FundingTxo         string        `json:"funding_txo"`
}

// ChannelReady is emitted when a channel can be used for payments.
type ChannelReady struct {
	ChannelID     ChannelID     `json:"channel_id"`
	UserChannelID UserChannelID `json:"user_channel_id"`
	// CounterpartyNodeID may be absent for channels restored from old state.
	CounterpartyNodeID *NodeID `json:"counterparty_node_id,omitempty"`
}

// ChannelClosed is emitted once a channel has been closed.
type ChannelClosed struct {
	ChannelID          ChannelID     `json:"channel_id"`
	UserChannelID      UserChannelID `json:"user_channel_id"`
	CounterpartyNodeID *NodeID       `json:"counterparty_node_id,omitempty"`
	Reason             string        `json:"reason,omitempty"`
}

// PaymentReceived is emitted when an inbound payment has been claimed.
type PaymentReceived struct {
	PaymentID   *PaymentID  `json:"payment_id,omitempty"`
	PaymentHash PaymentHash `json:"payment_hash"`
	AmountMsat  uint64      `json:"amount_msat"`
}

// PaymentSuccessful is emitted when an outbound payment completes.
type PaymentSuccessful struct {
	PaymentID   *PaymentID  `json:"payment_id,omitempty"`
	PaymentHash PaymentHash `json:"payment_hash"`
	FeePaidMsat *uint64     `json:"fee_paid_msat,omitempty"`
}

// PaymentFailed is emitted when an outbound payment is abandoned.
type PaymentFailed struct {
	PaymentID   *PaymentID   `json:"payment_id,omitempty"`
	PaymentHash *PaymentHash `json:"payment_hash,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

const (
	KindChannelPending    = "channel_pending"
	KindChannelReady      = "channel_ready"
	KindChannelClosed     = "channel_closed"
	KindPaymentReceived   = "payment_received"
	KindPaymentSuccessful = "payment_successful"
	KindPaymentFailed     = "payment_failed"
)

func (ChannelPending) Kind() string    { return KindChannelPending }
func (ChannelReady) Kind() string      { return KindChannelReady }
func (ChannelClosed) Kind() string     { return KindChannelClosed }
func (PaymentReceived) Kind() string   { return KindPaymentReceived }
func (PaymentSuccessful) Kind() string { return KindPaymentSuccessful }
func (PaymentFailed) Kind() string     { return KindPaymentFailed }

func (ChannelPending) isEvent()    {}
func (ChannelReady) isEvent()      {}
func (ChannelClosed) isEvent()     {}
func (PaymentReceived) isEvent()   {}
func (PaymentSuccessful) isEvent() {}
func (PaymentFailed) isEvent()     {}
