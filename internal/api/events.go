package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/drip"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/tracker"
)

type deliveryEventRequest struct {
	ProviderMessageID string    `json:"providerMessageId" validate:"required"`
	State             string    `json:"state" validate:"required,oneof=sent delivered read failed"`
	Timestamp         time.Time `json:"timestamp"`
}

// DeliveryEvent receives delivery acknowledgements pushed by the
// gateway for previously-sent messages.
func (h *Handler) DeliveryEvent(w http.ResponseWriter, r *http.Request) {
	var req deliveryEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.tracker.Apply(r.Context(), tracker.Ack{
		ProviderMessageID: req.ProviderMessageID,
		State:             model.Status(req.State),
		Timestamp:         req.Timestamp,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// IngestSale is the drip trigger boundary. A duplicate trigger id
// answers 200 with materialized=false instead of failing the feed.
func (h *Handler) IngestSale(w http.ResponseWriter, r *http.Request) {
	var ev drip.SaleEvent
	if !h.decode(w, r, &ev) {
		return
	}

	msgs, err := h.drip.HandleSale(r.Context(), ev)
	if err != nil {
		if apperr.IsKind(err, apperr.KindConflict) {
			writeJSON(w, http.StatusOK, map[string]any{"materialized": false})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"materialized": len(msgs) > 0,
		"items":        msgs,
	})
}

func (h *Handler) ConnectAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	conn, err := h.gateway.Connect(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.registry.Register(accountID, conn)
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId": accountID,
		"connected": conn.Connected(),
	})
}

func (h *Handler) DisconnectAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	h.registry.Remove(accountID)
	if err := h.gateway.Disconnect(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
