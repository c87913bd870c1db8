package api

import (
	"net/http"
	"time"

	"github.com/leadwire/outreach/internal/model"
)

type templateRequest struct {
	Name   string   `json:"name" validate:"required"`
	Text   string   `json:"text"`
	Images []string `json:"images"`
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	t := model.Template{
		Name:      req.Name,
		Text:      req.Text,
		Images:    req.Images,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.templates.Create(r.Context(), &t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}

	t := model.Template{
		ID:        id,
		Name:      req.Name,
		Text:      req.Text,
		Images:    req.Images,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.templates.Update(r.Context(), &t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.templates.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.templates.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
