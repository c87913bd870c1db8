package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/importer"
	"github.com/leadwire/outreach/internal/model"
	"github.com/leadwire/outreach/internal/store"
)

type contactRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Birthday string `json:"birthday"`
	Phone    string `json:"phone" validate:"required"`
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !h.decode(w, r, &req) {
		return
	}

	phone := importer.NormalizePhone(req.Phone)
	if phone == "" {
		writeError(w, apperr.New(apperr.KindValidation, "phone number is required"))
		return
	}

	now := time.Now().UTC()
	c := model.Contact{
		Name:      req.Name,
		Surname:   req.Surname,
		Email:     req.Email,
		Birthday:  req.Birthday,
		Phone:     phone,
		Source:    model.SourceManual,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.contacts.Create(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req contactRequest
	if !h.decode(w, r, &req) {
		return
	}

	phone := importer.NormalizePhone(req.Phone)
	if phone == "" {
		writeError(w, apperr.New(apperr.KindValidation, "phone number is required"))
		return
	}

	c := model.Contact{
		ID:        id,
		Name:      req.Name,
		Surname:   req.Surname,
		Email:     req.Email,
		Birthday:  req.Birthday,
		Phone:     phone,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.contacts.Update(r.Context(), &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	f := store.ContactFilter{
		Query:  r.URL.Query().Get("q"),
		Limit:  parseInt(r.URL.Query().Get("limit"), 50),
		Offset: parseInt(r.URL.Query().Get("offset"), 0),
	}

	items, total, err := h.contacts.Search(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

// ContactIDs serves select-all-across-pages: every id matching the
// filter, no pagination.
func (h *Handler) ContactIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.contacts.IDsMatching(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.contacts.Delete(r.Context(), []int64{id}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type contactIDsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1"`
}

func (h *Handler) DeleteContacts(w http.ResponseWriter, r *http.Request) {
	var req contactIDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.contacts.Delete(r.Context(), req.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": len(req.IDs)})
}

type importRequest struct {
	Records []importer.Record `json:"records" validate:"required,min=1"`
}

func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.importer.Validate(r.Context(), req.Records)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.contacts.CreateBatch(r.Context(), res.Accepted); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(res.Accepted),
		"skipped":  res.Skipped,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperr.New(apperr.KindValidation, "invalid id %q", raw))
		return 0, false
	}
	return id, true
}
