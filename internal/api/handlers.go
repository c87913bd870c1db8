package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/leadwire/outreach/internal/apperr"
	"github.com/leadwire/outreach/internal/dispatch"
	"github.com/leadwire/outreach/internal/drip"
	"github.com/leadwire/outreach/internal/importer"
	"github.com/leadwire/outreach/internal/schedule"
	"github.com/leadwire/outreach/internal/store"
	"github.com/leadwire/outreach/internal/tracker"
	"github.com/leadwire/outreach/internal/transport"
)

type Handler struct {
	loop      *dispatch.Ticker
	scheduler *schedule.Service
	drip      *drip.Engine
	tracker   *tracker.Tracker
	importer  *importer.Importer

	contacts  store.ContactStore
	templates store.TemplateStore
	settings  store.SettingsStore

	registry *transport.Registry
	gateway  *transport.GatewayClient

	validate *validator.Validate
}

func NewHandler(
	loop *dispatch.Ticker,
	scheduler *schedule.Service,
	dripEngine *drip.Engine,
	deliveryTracker *tracker.Tracker,
	contactImporter *importer.Importer,
	contacts store.ContactStore,
	templates store.TemplateStore,
	settings store.SettingsStore,
	registry *transport.Registry,
	gateway *transport.GatewayClient,
) *Handler {
	return &Handler{
		loop:      loop,
		scheduler: scheduler,
		drip:      dripEngine,
		tracker:   deliveryTracker,
		importer:  contactImporter,
		contacts:  contacts,
		templates: templates,
		settings:  settings,
		registry:  registry,
		gateway:   gateway,
		validate:  validator.New(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) DispatcherStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.loop.IsRunning()})
}

func (h *Handler) DispatcherStart(w http.ResponseWriter, r *http.Request) {
	h.loop.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.loop.IsRunning()})
}

func (h *Handler) DispatcherStop(w http.ResponseWriter, r *http.Request) {
	h.loop.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.loop.IsRunning()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, err, "invalid request"))
		return false
	}
	return true
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindTransport:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}

	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}
