package devnode

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"nodepilot/crypto"
	"nodepilot/node"
)

// OpenInbound records a channel opened towards this node by counterparty and
// queues ChannelPending. The channel becomes ready after the next block or an
// explicit ConfirmChannel.
func (n *Node) OpenInbound(counterparty node.NodeID, capacitySat uint64) (Channel, error) {
	if _, err := crypto.DecompressPubKey(counterparty[:]); err != nil {
		return Channel{}, fmt.Errorf("%w: %v", ErrInvalidCounterparty, err)
	}
	if capacitySat == 0 {
		return Channel{}, fmt.Errorf("%w: capacity must be positive", ErrInvalidAmount)
	}
	var channelID node.ChannelID
	if _, err := rand.Read(channelID[:]); err != nil {
		return Channel{}, err
	}
	var txid [32]byte
	if _, err := rand.Read(txid[:]); err != nil {
		return Channel{}, err
	}
	height, err := n.store.tipHeight()
	if err != nil {
		return Channel{}, err
	}
	now := time.Now().UTC()
	ch := Channel{
		ChannelID:      channelID,
		UserChannelID:  node.UserChannelIDFromBytes(uuid.New()),
		Counterparty:   counterparty,
		CapacitySat:    capacitySat,
		FundingTxo:     hex.EncodeToString(txid[:]) + ":0",
		State:          ChannelStatePending,
		OpenedAtHeight: height,
		Config:         node.DefaultChannelConfig(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = n.queue.emit(func(tx *bolt.Tx) (node.Event, error) {
		if err := putChannel(tx, ch); err != nil {
			return nil, err
		}
		return node.ChannelPending{
			ChannelID:          ch.ChannelID,
			UserChannelID:      ch.UserChannelID,
			CounterpartyNodeID: ch.Counterparty,
			FundingTxo:         ch.FundingTxo,
		}, nil
	})
	if err != nil {
		return Channel{}, fmt.Errorf("open channel: %w", err)
	}
	n.logger.Debug("inbound channel pending",
		slog.String("channel_id", ch.ChannelID.String()),
		slog.String("counterparty", counterparty.String()),
		slog.Uint64("capacity_sat", capacitySat))
	return ch, nil
}

// ConfirmChannel marks a pending channel ready and queues ChannelReady.
func (n *Node) ConfirmChannel(id node.ChannelID) (Channel, error) {
	return n.transition(id, ChannelStatePending, ChannelStateReady, func(ch Channel) node.Event {
		counterparty := ch.Counterparty
		return node.ChannelReady{
			ChannelID:          ch.ChannelID,
			UserChannelID:      ch.UserChannelID,
			CounterpartyNodeID: &counterparty,
		}
	})
}

// CloseChannel closes a pending or ready channel and queues ChannelClosed.
func (n *Node) CloseChannel(id node.ChannelID, reason string) (Channel, error) {
	return n.transition(id, "", ChannelStateClosed, func(ch Channel) node.Event {
		counterparty := ch.Counterparty
		return node.ChannelClosed{
			ChannelID:          ch.ChannelID,
			UserChannelID:      ch.UserChannelID,
			CounterpartyNodeID: &counterparty,
			Reason:             reason,
		}
	})
}

// transition moves a channel to state to. An empty from accepts any state
// other than to.
func (n *Node) transition(id node.ChannelID, from, to ChannelState, event func(Channel) node.Event) (Channel, error) {
	var out Channel
	_, err := n.queue.emit(func(tx *bolt.Tx) (node.Event, error) {
		ch, err := getChannel(tx, id)
		if err != nil {
			return nil, err
		}
		if ch.State == to || (from != "" && ch.State != from) {
			return nil, fmt.Errorf("%w: channel %s is %s", ErrChannelState, id, ch.State)
		}
		ch.State = to
		ch.UpdatedAt = time.Now().UTC()
		if err := putChannel(tx, ch); err != nil {
			return nil, err
		}
		out = ch
		return event(ch), nil
	})
	if err != nil {
		return Channel{}, err
	}
	n.logger.Debug("channel state changed",
		slog.String("channel_id", id.String()),
		slog.String("state", string(to)))
	return out, nil
}

// Channels lists every channel the node knows about.
func (n *Node) Channels() ([]Channel, error) {
	return n.store.channels()
}

// UpdateChannelConfig replaces the configuration of the channel identified by
// userChannelID. The counterparty must match the channel's peer.
func (n *Node) UpdateChannelConfig(userChannelID node.UserChannelID, counterparty node.NodeID, cfg node.ChannelConfig) error {
	err := n.store.db.Update(func(tx *bolt.Tx) error {
		ch, err := findChannel(tx, userChannelID)
		if err != nil {
			return err
		}
		if ch.Counterparty != counterparty {
			return fmt.Errorf("%w: channel %s belongs to %s", ErrCounterpartyMismatch, userChannelID, ch.Counterparty)
		}
		ch.Config = cfg
		ch.UpdatedAt = time.Now().UTC()
		return putChannel(tx, ch)
	})
	if err != nil {
		return fmt.Errorf("update channel config: %w", err)
	}
	n.logger.Debug("channel config updated",
		slog.String("user_channel_id", userChannelID.String()),
		slog.String("max_dust_htlc_exposure", cfg.MaxDustHTLCExposure.String()))
	return nil
}

// promotePending confirms every pending channel opened below height.
func (n *Node) promotePending(height uint32) {
	channels, err := n.store.channels()
	if err != nil {
		n.logger.Warn("list channels", slog.Any("error", err))
		return
	}
	for _, ch := range channels {
		if ch.State != ChannelStatePending || height <= ch.OpenedAtHeight {
			continue
		}
		if _, err := n.ConfirmChannel(ch.ChannelID); err != nil {
			n.logger.Warn("confirm channel",
				slog.String("channel_id", ch.ChannelID.String()),
				slog.Any("error", err))
		}
	}
}
