package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all allocation routes. Mutating routes are wrapped in admin.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/allocation", func(r chi.Router) {
		r.Get("/target", h.HandleGetTarget)
		r.Get("/targets", h.HandleGetTargets)
		r.Get("/{tier}/entries", h.HandleGetEntries)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Put("/target", h.HandleSetTarget)
			r.Post("/{tier}/entries", h.HandleAddEntry)
			r.Post("/{tier}/entries/batch", h.HandleAddEntries)
			r.Put("/{tier}/entries/{adapter}", h.HandleUpdateEntry)
			r.Delete("/{tier}/entries/{adapter}", h.HandleRemoveEntry)
		})
	})
}
