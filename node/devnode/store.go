package devnode

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"nodepilot/node"
)

var (
	bucketEvents   = []byte("events")
	bucketChannels = []byte("channels")
	bucketOffers   = []byte("offers")
	bucketMeta     = []byte("meta")

	metaNextSeq   = []byte("next_seq")
	metaTipHeight = []byte("tip_height")
)

// ChannelState tracks where a channel is in its lifecycle.
type ChannelState string

const (
	ChannelStatePending ChannelState = "pending"
	ChannelStateReady   ChannelState = "ready"
	ChannelStateClosed  ChannelState = "closed"
)

// Channel is the persisted view of a channel.
type Channel struct {
	ChannelID      node.ChannelID     `json:"channel_id"`
	UserChannelID  node.UserChannelID `json:"user_channel_id"`
	Counterparty   node.NodeID        `json:"counterparty_node_id"`
	CapacitySat    uint64             `json:"capacity_sat"`
	FundingTxo     string             `json:"funding_txo"`
	State          ChannelState       `json:"state"`
	OpenedAtHeight uint32             `json:"opened_at_height"`
	Config         node.ChannelConfig `json:"config"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type offerRecord struct {
	ID          [32]byte   `json:"id"`
	Offer       node.Offer `json:"offer"`
	AmountMsat  *uint64    `json:"amount_msat,omitempty"`
	Description string     `json:"description"`
	Payments    int        `json:"payments"`
	CreatedAt   time.Time  `json:"created_at"`
}

type queuedEvent struct {
	seq uint64
	ev  node.Event
}

// store persists devnode state in a single bbolt file.
type store struct {
	db *bolt.DB
}

func openStore(path string) (*store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEvents, bucketChannels, bucketOffers, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &store{db: db}, nil
}

func (s *store) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// pendingEvents returns every unacknowledged event in delivery order and the
// next free sequence number.
func (s *store) pendingEvents() ([]queuedEvent, uint64, error) {
	var (
		out  []queuedEvent
		next uint64
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(metaNextSeq); len(raw) == 8 {
			next = binary.BigEndian.Uint64(raw)
		}
		return tx.Bucket(bucketEvents).ForEach(func(k, v []byte) error {
			ev, err := node.UnmarshalEvent(v)
			if err != nil {
				return fmt.Errorf("event %x: %w", k, err)
			}
			out = append(out, queuedEvent{seq: binary.BigEndian.Uint64(k), ev: ev})
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	if len(out) > 0 && out[len(out)-1].seq >= next {
		next = out[len(out)-1].seq + 1
	}
	return out, next, nil
}

func putEvent(tx *bolt.Tx, seq uint64, ev node.Event) error {
	raw, err := node.MarshalEvent(ev)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketEvents).Put(seqKey(seq), raw); err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(metaNextSeq, seqKey(seq+1))
}

func (s *store) deleteEvent(seq uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Delete(seqKey(seq))
	})
}

func getChannel(tx *bolt.Tx, id node.ChannelID) (Channel, error) {
	var ch Channel
	raw := tx.Bucket(bucketChannels).Get(id[:])
	if raw == nil {
		return ch, ErrChannelNotFound
	}
	if err := json.Unmarshal(raw, &ch); err != nil {
		return ch, fmt.Errorf("decode channel %s: %w", id, err)
	}
	return ch, nil
}

func putChannel(tx *bolt.Tx, ch Channel) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketChannels).Put(ch.ChannelID[:], raw)
}

func (s *store) channels() ([]Channel, error) {
	var out []Channel
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChannels).ForEach(func(_, v []byte) error {
			var ch Channel
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			out = append(out, ch)
			return nil
		})
	})
	return out, err
}

// findChannel scans for the channel matching a user channel id.
func findChannel(tx *bolt.Tx, userChannelID node.UserChannelID) (Channel, error) {
	var (
		found Channel
		ok    bool
	)
	err := tx.Bucket(bucketChannels).ForEach(func(_, v []byte) error {
		if ok {
			return nil
		}
		var ch Channel
		if err := json.Unmarshal(v, &ch); err != nil {
			return err
		}
		if ch.UserChannelID == userChannelID {
			found, ok = ch, true
		}
		return nil
	})
	if err != nil {
		return found, err
	}
	if !ok {
		return found, ErrChannelNotFound
	}
	return found, nil
}

func getOffer(tx *bolt.Tx, id [32]byte) (offerRecord, error) {
	var rec offerRecord
	raw := tx.Bucket(bucketOffers).Get(id[:])
	if raw == nil {
		return rec, ErrOfferNotFound
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("decode offer: %w", err)
	}
	return rec, nil
}

func putOffer(tx *bolt.Tx, rec offerRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketOffers).Put(rec.ID[:], raw)
}

func (s *store) tipHeight() (uint32, error) {
	var height uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(metaTipHeight); len(raw) == 4 {
			height = binary.BigEndian.Uint32(raw)
		}
		return nil
	})
	return height, err
}

func (s *store) setTipHeight(height uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], height)
		return tx.Bucket(bucketMeta).Put(metaTipHeight, buf[:])
	})
}

func seqKey(seq uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return buf[:]
}
