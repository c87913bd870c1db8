package api

import (
	"net/http"
	"time"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/store"
)

type scheduleRequest struct {
	AccountID  string     `json:"accountId" validate:"required"`
	ContactIDs []int64    `json:"contactIds" validate:"required,min=1"`
	TemplateID int64      `json:"templateId" validate:"required"`
	NotBefore  *time.Time `json:"notBefore"`
}

func (h *Handler) ScheduleMessages(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	msgs, err := h.scheduler.Schedule(r.Context(), req.AccountID, req.ContactIDs, req.TemplateID, req.NotBefore)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"items": msgs})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	f := store.MessageFilter{
		AccountID: r.URL.Query().Get("accountId"),
		Status:    model.Status(r.URL.Query().Get("status")),
		Limit:     parseInt(r.URL.Query().Get("limit"), 50),
		Offset:    parseInt(r.URL.Query().Get("offset"), 0),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, apperr.New(apperr.KindValidation, "unknown status %q", f.Status))
		return
	}

	items, err := h.scheduler.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

type idResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) CancelMessages(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !h.decode(w, r, &req) {
		return
	}

	results := make([]idResult, 0, len(req.IDs))
	for _, id := range req.IDs {
		res := idResult{ID: id, OK: true}
		if err := h.scheduler.Cancel(r.Context(), id); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) DeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.scheduler.Delete(r.Context(), req.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": len(req.IDs)})
}

func (h *Handler) MessageStats(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}

	stats, statErr := h.scheduler.Stats(r.Context(), from, to)
	if statErr != nil {
		writeError(w, statErr)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.KindValidation, "invalid date %q, want YYYY-MM-DD", raw)
	}
	return t, nil
}
