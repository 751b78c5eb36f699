package node

import "fmt"

// DustExposureKind selects how the dust exposure limit is computed.
type DustExposureKind uint8

const (
	// DustExposureFeeRateMultiplier scales the limit with the current feerate.
	DustExposureFeeRateMultiplier DustExposureKind = iota
	// DustExposureFixedLimit caps exposure at a fixed msat value.
	DustExposureFixedLimit
)

// DustExposure is the maximum dust HTLC exposure a channel accepts.
type DustExposure struct {
	Kind  DustExposureKind `json:"kind"`
	Value uint64           `json:"value"`
}

// FixedDustLimit returns a fixed limit of msat.
func FixedDustLimit(msat uint64) DustExposure {
	return DustExposure{Kind: DustExposureFixedLimit, Value: msat}
}

func (d DustExposure) String() string {
	switch d.Kind {
	case DustExposureFixedLimit:
		return fmt.Sprintf("fixed_limit(%d msat)", d.Value)
	case DustExposureFeeRateMultiplier:
		return fmt.Sprintf("feerate_multiplier(%d)", d.Value)
	default:
		return fmt.Sprintf("unknown(%d)", d.Value)
	}
}

// ChannelConfig holds the per-channel forwarding parameters a node lets its
// operator change after the channel is open.
type ChannelConfig struct {
	ForwardingFeeProportionalMillionths uint32       `json:"forwarding_fee_proportional_millionths"`
	ForwardingFeeBaseMsat               uint32       `json:"forwarding_fee_base_msat"`
	CLTVExpiryDelta                     uint16       `json:"cltv_expiry_delta"`
	MaxDustHTLCExposure                 DustExposure `json:"max_dust_htlc_exposure"`
	ForceCloseAvoidanceMaxFeeSatoshis   uint64       `json:"force_close_avoidance_max_fee_satoshis"`
	AcceptUnderpayingHTLCs              bool         `json:"accept_underpaying_htlcs"`
}

// DefaultChannelConfig mirrors the defaults nodes apply to freshly opened
// channels.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		ForwardingFeeProportionalMillionths: 0,
		ForwardingFeeBaseMsat:               1000,
		CLTVExpiryDelta:                     72,
		MaxDustHTLCExposure:                 DustExposure{Kind: DustExposureFeeRateMultiplier, Value: 10_000},
		ForceCloseAvoidanceMaxFeeSatoshis:   1000,
	}
}
