package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/dispatcher/status", h.DispatcherStatus)
		r.Post("/dispatcher/start", h.DispatcherStart)
		r.Post("/dispatcher/stop", h.DispatcherStop)

		r.Post("/messages/schedule", h.ScheduleMessages)
		r.Get("/messages", h.ListMessages)
		r.Post("/messages/cancel", h.CancelMessages)
		r.Post("/messages/delete", h.DeleteMessages)
		r.Get("/messages/stats", h.MessageStats)

		r.Get("/contacts", h.SearchContacts)
		r.Post("/contacts", h.CreateContact)
		r.Get("/contacts/ids", h.ContactIDs)
		r.Post("/contacts/delete", h.DeleteContacts)
		r.Post("/contacts/import", h.ImportContacts)
		r.Put("/contacts/{id}", h.UpdateContact)
		r.Delete("/contacts/{id}", h.DeleteContact)

		r.Get("/templates", h.ListTemplates)
		r.Post("/templates", h.CreateTemplate)
		r.Put("/templates/{id}", h.UpdateTemplate)
		r.Delete("/templates/{id}", h.DeleteTemplate)

		r.Get("/accounts/{id}/settings", h.GetSenderSettings)
		r.Put("/accounts/{id}/settings", h.PutSenderSettings)
		r.Delete("/accounts/{id}", h.DeleteAccount)
		r.Post("/accounts/{id}/connect", h.ConnectAccount)
		r.Delete("/accounts/{id}/connect", h.DisconnectAccount)

		r.Get("/drip/settings", h.GetDripSettings)
		r.Put("/drip/settings", h.PutDripSettings)

		r.Post("/sales", h.IngestSale)
		r.Post("/events/delivery", h.DeliveryEvent)
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("outreach"))
	})

	return r
}
