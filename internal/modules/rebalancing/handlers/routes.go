package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rebalancing routes. Mutating routes are
// wrapped in admin.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/rebalancing", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Get("/snapshot", h.HandleGetSnapshot)
		r.Get("/risk-parameters", h.HandleGetRiskParameters)
		r.Get("/reports", h.HandleListReports)
		r.Get("/reports/{id}", h.HandleGetReport)
		r.Get("/drift", h.HandleGetDrift)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/run", h.HandleRebalance)
			r.Put("/risk-parameters", h.HandleSetRiskParameters)
		})
	})
}
