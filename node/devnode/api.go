package devnode

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nodepilot/node"
)

type infoResponse struct {
	NodeID        string `json:"node_id"`
	Network       string `json:"network"`
	Listen        string `json:"listen"`
	TipHeight     uint32 `json:"tip_height"`
	PendingEvents int    `json:"pending_events"`
}

type openChannelRequest struct {
	CounterpartyNodeID string `json:"counterparty_node_id"`
	CapacitySat        uint64 `json:"capacity_sat"`
}

type closeChannelRequest struct {
	Reason string `json:"reason"`
}

type payOfferRequest struct {
	AmountMsat uint64 `json:"amount_msat"`
}

func (n *Node) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", n.handleInfo)
		r.Get("/channels", n.handleListChannels)
		r.Post("/channels", n.handleOpenChannel)
		r.Post("/channels/{id}/confirm", n.handleConfirmChannel)
		r.Post("/channels/{id}/close", n.handleCloseChannel)
		r.Post("/offers/{offer}/payments", n.handlePayOffer)
	})
	return r
}

func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	height, err := n.store.tipHeight()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{
		NodeID:        n.id.String(),
		Network:       n.cfg.Network.String(),
		Listen:        n.ListeningAddresses()[0],
		TipHeight:     height,
		PendingEvents: n.queue.depth(),
	})
}

func (n *Node) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := n.Channels()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (n *Node) handleOpenChannel(w http.ResponseWriter, r *http.Request) {
	var req openChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	counterparty, err := node.ParseNodeID(strings.TrimSpace(req.CounterpartyNodeID))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ch, err := n.OpenInbound(counterparty, req.CapacitySat)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (n *Node) handleConfirmChannel(w http.ResponseWriter, r *http.Request) {
	id, err := node.ParseChannelID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ch, err := n.ConfirmChannel(id)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (n *Node) handleCloseChannel(w http.ResponseWriter, r *http.Request) {
	id, err := node.ParseChannelID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	var req closeChannelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	}
	ch, err := n.CloseChannel(id, req.Reason)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (n *Node) handlePayOffer(w http.ResponseWriter, r *http.Request) {
	var req payOfferRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	}
	payment, err := n.PayOffer(node.Offer(chi.URLParam(r, "offer")), req.AmountMsat)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInsufficientAmount),
		errors.Is(err, ErrInvalidCounterparty), errors.Is(err, ErrCounterpartyMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrChannelState):
		return http.StatusConflict
	case errors.Is(err, ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
