package devnode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"nodepilot/crypto"
	"nodepilot/node"
)

const offerHRP = "lno"

// CreateFixedOffer issues a reusable offer for exactly amountMsat.
func (n *Node) CreateFixedOffer(amountMsat uint64, description string) (node.Offer, error) {
	if amountMsat == 0 {
		return "", fmt.Errorf("%w: fixed offer amount must be positive", ErrInvalidAmount)
	}
	return n.createOffer(&amountMsat, description)
}

// CreateVariableOffer issues a reusable offer the payer picks the amount for.
func (n *Node) CreateVariableOffer(description string) (node.Offer, error) {
	return n.createOffer(nil, description)
}

func (n *Node) createOffer(amountMsat *uint64, description string) (node.Offer, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	rec := offerRecord{
		ID:          offerID(n.id, amountMsat, description, nonce),
		AmountMsat:  amountMsat,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	encoded, err := crypto.EncodeBech32(offerHRP, rec.ID[:])
	if err != nil {
		return "", fmt.Errorf("encode offer: %w", err)
	}
	rec.Offer = node.Offer(encoded)
	if err := n.store.db.Update(func(tx *bolt.Tx) error { return putOffer(tx, rec) }); err != nil {
		return "", fmt.Errorf("store offer: %w", err)
	}
	mode := "variable"
	if amountMsat != nil {
		mode = "fixed"
	}
	n.metrics.RecordOffer(mode)
	n.logger.Debug("offer created", slog.String("offer", encoded), slog.String("mode", mode))
	return rec.Offer, nil
}

// PayOffer simulates an inbound payment of amountMsat against an offer this
// node issued and queues PaymentReceived. For fixed offers a zero amount pays
// the offer amount.
func (n *Node) PayOffer(offer node.Offer, amountMsat uint64) (node.PaymentReceived, error) {
	id, err := parseOffer(offer)
	if err != nil {
		return node.PaymentReceived{}, err
	}
	var payment node.PaymentID
	if _, err := rand.Read(payment[:]); err != nil {
		return node.PaymentReceived{}, err
	}
	var preimage [32]byte
	if _, err := rand.Read(preimage[:]); err != nil {
		return node.PaymentReceived{}, err
	}
	ev, err := n.queue.emit(func(tx *bolt.Tx) (node.Event, error) {
		rec, err := getOffer(tx, id)
		if err != nil {
			return nil, err
		}
		amount, err := settleAmount(rec, amountMsat)
		if err != nil {
			return nil, err
		}
		rec.Payments++
		if err := putOffer(tx, rec); err != nil {
			return nil, err
		}
		return node.PaymentReceived{
			PaymentID:   &payment,
			PaymentHash: node.PaymentHash(sha256.Sum256(preimage[:])),
			AmountMsat:  amount,
		}, nil
	})
	if err != nil {
		return node.PaymentReceived{}, fmt.Errorf("pay offer: %w", err)
	}
	received := ev.(node.PaymentReceived)
	n.logger.Debug("payment received",
		slog.String("offer", string(offer)),
		slog.Uint64("amount_msat", received.AmountMsat))
	return received, nil
}

func settleAmount(rec offerRecord, amountMsat uint64) (uint64, error) {
	if rec.AmountMsat == nil {
		if amountMsat == 0 {
			return 0, fmt.Errorf("%w: variable offer needs an amount", ErrInvalidAmount)
		}
		return amountMsat, nil
	}
	if amountMsat == 0 {
		return *rec.AmountMsat, nil
	}
	if amountMsat < *rec.AmountMsat {
		return 0, fmt.Errorf("%w: %d < %d", ErrInsufficientAmount, amountMsat, *rec.AmountMsat)
	}
	return amountMsat, nil
}

func offerID(nodeID node.NodeID, amountMsat *uint64, description string, nonce [16]byte) [32]byte {
	buf := make([]byte, 0, len(nodeID)+9+len(description)+len(nonce))
	buf = append(buf, nodeID[:]...)
	if amountMsat != nil {
		buf = append(buf, 1)
		buf = binary.BigEndian.AppendUint64(buf, *amountMsat)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, description...)
	buf = append(buf, nonce[:]...)
	return blake3.Sum256(buf)
}

func parseOffer(offer node.Offer) ([32]byte, error) {
	var id [32]byte
	payload, err := crypto.DecodeBech32(offerHRP, string(offer))
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrOfferNotFound, err)
	}
	if len(payload) != len(id) {
		return id, fmt.Errorf("%w: malformed offer", ErrOfferNotFound)
	}
	copy(id[:], payload)
	return id, nil
}
