package node

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvent encodes ev together with its kind so it can be restored by
// UnmarshalEvent.
func MarshalEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("marshal event: nil event")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Kind(), err)
	}
	return json.Marshal(envelope{Kind: ev.Kind(), Data: data})
}

// UnmarshalEvent decodes an event produced by MarshalEvent.
func UnmarshalEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	var ev Event
	switch env.Kind {
	case KindChannelPending:
		var v ChannelPending
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		ev = v
	case KindChannelReady:
		var v ChannelReady
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		ev = v
	case KindChannelClosed:
		var v ChannelClosed
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		ev = v
	case KindPaymentReceived:
		var v PaymentReceived
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		ev = v
	case KindPaymentSuccessful:
		var v PaymentSuccessful
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		ev = v
	case KindPaymentFailed:
		var v PaymentFailed
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Kind, err)
		}
		ev = v
	default:
		return nil, fmt.Errorf("unmarshal event: unknown kind %q", env.Kind)
	}
	return ev, nil
}
