package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all vault routes. Deposits and withdrawals act on
// behalf of the authenticated caller; fee collection is admin-only.
func (h *Handler) RegisterRoutes(r chi.Router, caller, admin func(http.Handler) http.Handler) {
	r.Route("/vault", func(r chi.Router) {
		r.Get("/summary", h.HandleGetSummary)
		r.Get("/balances/{owner}", h.HandleGetBalance)

		r.Group(func(r chi.Router) {
			r.Use(caller)
			r.Post("/deposit", h.HandleDeposit)
			r.Post("/withdraw", h.HandleWithdraw)
		})

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/fees/collect", h.HandleCollectFees)
		})
	})
}
