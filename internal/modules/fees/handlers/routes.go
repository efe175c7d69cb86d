package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all fee routes. Mutating routes are wrapped in admin.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/fees", func(r chi.Router) {
		r.Get("/rates", h.HandleGetRates)
		r.Get("/state/{consumer}", h.HandleGetState)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Put("/rates", h.HandleSetRates)
			r.Put("/state/{consumer}/high-water-mark", h.HandleSetHighWaterMark)
			r.Put("/state/{consumer}/last-collection", h.HandleSetLastCollection)
		})
	})
}
