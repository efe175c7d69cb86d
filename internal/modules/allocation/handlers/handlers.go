// Package handlers provides HTTP handlers for the allocation target and the
// per-tier adapter registries.
package handlers

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// Handler handles allocation HTTP requests
type Handler struct {
	ledger *allocation.Ledger
	log    zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(ledger *allocation.Ledger, log zerolog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		log:    log.With().Str("handler", "allocation").Logger(),
	}
}

// EntryRequest adds an adapter to a tier
type EntryRequest struct {
	Adapter string `json:"adapter"`
	Weight  uint64 `json:"weight"`
}

// BatchEntryRequest adds several adapters to a tier at once
type BatchEntryRequest struct {
	Adapters []string `json:"adapters"`
	Weights  []uint64 `json:"weights"`
}

// WeightRequest changes an adapter's weight
type WeightRequest struct {
	Weight uint64 `json:"weight"`
}

// EntryResponse is one registry row
type EntryResponse struct {
	Adapter string `json:"adapter"`
	Weight  uint64 `json:"weight"`
	Active  bool   `json:"active"`
}

// EntriesResponse lists a tier's registry
type EntriesResponse struct {
	Tier              string          `json:"tier"`
	TotalActiveWeight uint64          `json:"total_active_weight"`
	Entries           []EntryResponse `json:"entries"`
}

// ShareResponse is an adapter's portion of a tier target
type ShareResponse struct {
	Adapter string `json:"adapter"`
	Weight  uint64 `json:"weight"`
	Amount  string `json:"amount"`
}

// TargetsResponse splits a total value across tiers and adapters
type TargetsResponse struct {
	Total   string                     `json:"total"`
	Target  allocation.Target          `json:"target"`
	Primary string                     `json:"primary"`
	Yield   string                     `json:"yield"`
	Buffer  string                     `json:"buffer"`
	Shares  map[string][]ShareResponse `json:"shares"`
}

func toEntryResponses(entries []registry.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{Adapter: e.Adapter.Hex(), Weight: e.Weight, Active: e.Active})
	}
	return out
}

// HandleGetTarget handles GET /api/allocation/target
func (h *Handler) HandleGetTarget(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.ledger.Target(), h.log)
}

// HandleSetTarget handles PUT /api/allocation/target
func (h *Handler) HandleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req allocation.Target
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}
	if err := h.ledger.SetAllocation(req.PrimaryBps, req.YieldBps, req.BufferBps); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.ledger.Target(), h.log)
}

// HandleGetTargets handles GET /api/allocation/targets?total=<base units>
func (h *Handler) HandleGetTargets(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("total")
	total, ok := new(big.Int).SetString(raw, 10)
	if !ok || total.Sign() < 0 {
		utils.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid total %q", raw), h.log)
		return
	}

	targets := h.ledger.GetTargets(total)
	resp := TargetsResponse{
		Total:   total.String(),
		Target:  h.ledger.Target(),
		Primary: targets.Primary.String(),
		Yield:   targets.Yield.String(),
		Buffer:  targets.Buffer.String(),
		Shares:  make(map[string][]ShareResponse, len(domain.Tiers)),
	}
	for _, tier := range domain.Tiers {
		shares := h.ledger.Registry(tier).Distribute(targets.ForTier(tier))
		rows := make([]ShareResponse, 0, len(shares))
		for _, s := range shares {
			rows = append(rows, ShareResponse{
				Adapter: s.Entry.Adapter.Hex(),
				Weight:  s.Entry.Weight,
				Amount:  s.Amount.String(),
			})
		}
		resp.Shares[tier.String()] = rows
	}
	utils.WriteJSON(w, http.StatusOK, resp, h.log)
}

// HandleGetEntries handles GET /api/allocation/{tier}/entries.
// Removed entries are listed only with ?include_removed=true.
func (h *Handler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	tier, ok := h.parseTier(w, r)
	if !ok {
		return
	}

	reg := h.ledger.Registry(tier)
	entries := reg.ActiveEntries()
	if r.URL.Query().Get("include_removed") == "true" {
		entries = reg.Entries()
	}
	utils.WriteJSON(w, http.StatusOK, EntriesResponse{
		Tier:              tier.String(),
		TotalActiveWeight: reg.TotalActiveWeight(),
		Entries:           toEntryResponses(entries),
	}, h.log)
}

// HandleAddEntry handles POST /api/allocation/{tier}/entries
func (h *Handler) HandleAddEntry(w http.ResponseWriter, r *http.Request) {
	tier, ok := h.parseTier(w, r)
	if !ok {
		return
	}
	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}
	adapter, err := utils.ParseAddress(req.Adapter)
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	if err := h.ledger.AddEntry(tier, adapter, req.Weight); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.writeEntries(w, http.StatusCreated, tier)
}

// HandleAddEntries handles POST /api/allocation/{tier}/entries/batch
func (h *Handler) HandleAddEntries(w http.ResponseWriter, r *http.Request) {
	tier, ok := h.parseTier(w, r)
	if !ok {
		return
	}
	var req BatchEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	adapters := make([]common.Address, 0, len(req.Adapters))
	for _, raw := range req.Adapters {
		adapter, err := utils.ParseAddress(raw)
		if err != nil {
			utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
			return
		}
		adapters = append(adapters, adapter)
	}

	if err := h.ledger.AddEntries(tier, adapters, req.Weights); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.writeEntries(w, http.StatusCreated, tier)
}

// HandleUpdateEntry handles PUT /api/allocation/{tier}/entries/{adapter}
func (h *Handler) HandleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	tier, ok := h.parseTier(w, r)
	if !ok {
		return
	}
	adapter, err := utils.ParseAddress(chi.URLParam(r, "adapter"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}
	var req WeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	if err := h.ledger.UpdateEntry(tier, adapter, req.Weight); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.writeEntries(w, http.StatusOK, tier)
}

// HandleRemoveEntry handles DELETE /api/allocation/{tier}/entries/{adapter}
func (h *Handler) HandleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	tier, ok := h.parseTier(w, r)
	if !ok {
		return
	}
	adapter, err := utils.ParseAddress(chi.URLParam(r, "adapter"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	if err := h.ledger.RemoveEntry(tier, adapter); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.writeEntries(w, http.StatusOK, tier)
}

func (h *Handler) parseTier(w http.ResponseWriter, r *http.Request) (domain.Tier, bool) {
	tier, err := domain.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusNotFound, err.Error(), h.log)
		return 0, false
	}
	return tier, true
}

func (h *Handler) writeEntries(w http.ResponseWriter, status int, tier domain.Tier) {
	reg := h.ledger.Registry(tier)
	utils.WriteJSON(w, status, EntriesResponse{
		Tier:              tier.String(),
		TotalActiveWeight: reg.TotalActiveWeight(),
		Entries:           toEntryResponses(reg.Entries()),
	}, h.log)
}
