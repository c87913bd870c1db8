package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
)

func (h *Handler) GetSenderSettings(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	s, err := h.settings.GetSender(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type senderSettingsRequest struct {
	WorkStart       string `json:"workStart" validate:"required"`
	WorkEnd         string `json:"workEnd" validate:"required"`
	IntervalSeconds int    `json:"intervalSeconds" validate:"min=0"`
	Enabled         bool   `json:"enabled"`
	Timezone        string `json:"timezone" validate:"required"`
}

func (h *Handler) PutSenderSettings(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	var req senderSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	s := model.SenderSettings{
		AccountID:       accountID,
		WorkStart:       req.WorkStart,
		WorkEnd:         req.WorkEnd,
		IntervalSeconds: req.IntervalSeconds,
		Enabled:         req.Enabled,
		Timezone:        req.Timezone,
	}
	// Reject windows and zones the dispatcher could not evaluate later.
	if _, err := s.WithinWindow(time.Now()); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid settings"))
		return
	}

	if err := h.settings.PutSender(r.Context(), &s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	if err := h.settings.DeleteAccount(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetDripSettings(w http.ResponseWriter, r *http.Request) {
	d, err := h.settings.GetDrip(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type dripSettingsRequest struct {
	Enabled          bool     `json:"enabled"`
	AccountID        string   `json:"accountId"`
	FirstDelayValue  int      `json:"firstDelayValue" validate:"min=0"`
	FirstDelayUnit   string   `json:"firstDelayUnit" validate:"required,oneof=minutes hours days"`
	SecondDelayValue int      `json:"secondDelayValue" validate:"min=0"`
	SecondDelayUnit  string   `json:"secondDelayUnit" validate:"required,oneof=minutes hours days"`
	FirstText        string   `json:"firstText"`
	FirstImages      []string `json:"firstImages"`
	SecondText       string   `json:"secondText"`
	SecondImages     []string `json:"secondImages"`
}

func (h *Handler) PutDripSettings(w http.ResponseWriter, r *http.Request) {
	var req dripSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.Enabled && req.AccountID == "" {
		writeError(w, apperr.New(apperr.KindValidation, "accountId is required when drip is enabled"))
		return
	}

	d := model.DripSettings{
		Enabled:          req.Enabled,
		AccountID:        req.AccountID,
		FirstDelayValue:  req.FirstDelayValue,
		FirstDelayUnit:   req.FirstDelayUnit,
		SecondDelayValue: req.SecondDelayValue,
		SecondDelayUnit:  req.SecondDelayUnit,
		FirstText:        req.FirstText,
		FirstImages:      req.FirstImages,
		SecondText:       req.SecondText,
		SecondImages:     req.SecondImages,
	}
	if err := h.settings.PutDrip(r.Context(), &d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
