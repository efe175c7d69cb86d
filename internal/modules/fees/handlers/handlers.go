// Package handlers provides HTTP handlers for fee configuration and state.
package handlers

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// Handler handles fee HTTP requests
type Handler struct {
	accrual *fees.Accrual
	log     zerolog.Logger
}

// NewHandler creates a new fees handler
func NewHandler(accrual *fees.Accrual, log zerolog.Logger) *Handler {
	return &Handler{
		accrual: accrual,
		log:     log.With().Str("handler", "fees").Logger(),
	}
}

// HighWaterMarkRequest overrides a consumer's mark (base units, decimal string)
type HighWaterMarkRequest struct {
	Mark string `json:"mark"`
}

// LastCollectionRequest overrides a consumer's last collection time
type LastCollectionRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// StateResponse is the JSON form of a consumer's fee state
type StateResponse struct {
	Consumer       string     `json:"consumer"`
	HighWaterMark  *string    `json:"high_water_mark"`
	LastCollection *time.Time `json:"last_collection"`
}

// HandleGetRates handles GET /api/fees/rates
func (h *Handler) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.accrual.Rates(), h.log)
}

// HandleSetRates handles PUT /api/fees/rates
func (h *Handler) HandleSetRates(w http.ResponseWriter, r *http.Request) {
	var req fees.Rates
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}
	if err := h.accrual.SetRates(req.ManagementBps, req.PerformanceBps); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.accrual.Rates(), h.log)
}

// HandleGetState handles GET /api/fees/state/{consumer}
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	consumer, err := utils.ParseAddress(chi.URLParam(r, "consumer"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	state, ok := h.accrual.State(consumer)
	if !ok {
		utils.WriteError(w, fmt.Errorf("%w: no fee state for %s", domain.ErrTokenNotFound, consumer.Hex()), h.log)
		return
	}

	resp := StateResponse{Consumer: consumer.Hex()}
	if state.HighWaterMark != nil {
		mark := state.HighWaterMark.String()
		resp.HighWaterMark = &mark
	}
	if !state.LastCollection.IsZero() {
		ts := state.LastCollection
		resp.LastCollection = &ts
	}
	utils.WriteJSON(w, http.StatusOK, resp, h.log)
}

// HandleSetHighWaterMark handles PUT /api/fees/state/{consumer}/high-water-mark
func (h *Handler) HandleSetHighWaterMark(w http.ResponseWriter, r *http.Request) {
	consumer, err := utils.ParseAddress(chi.URLParam(r, "consumer"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	var req HighWaterMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}
	mark, ok := new(big.Int).SetString(req.Mark, 10)
	if !ok {
		utils.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid mark %q", req.Mark), h.log)
		return
	}

	if err := h.accrual.SetHighWaterMark(consumer, mark); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.HandleGetState(w, r)
}

// HandleSetLastCollection handles PUT /api/fees/state/{consumer}/last-collection
func (h *Handler) HandleSetLastCollection(w http.ResponseWriter, r *http.Request) {
	consumer, err := utils.ParseAddress(chi.URLParam(r, "consumer"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	var req LastCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	if err := h.accrual.SetLastCollection(consumer, time.Unix(req.Timestamp, 0).UTC()); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.HandleGetState(w, r)
}
