// Package handlers provides HTTP handlers for vault share accounting.
package handlers

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/access"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// Handler handles vault HTTP requests
type Handler struct {
	vault *vault.Vault
	log   zerolog.Logger
}

// NewHandler creates a new vault handler
func NewHandler(v *vault.Vault, log zerolog.Logger) *Handler {
	return &Handler{
		vault: v,
		log:   log.With().Str("handler", "vault").Logger(),
	}
}

// AmountRequest carries a human-readable amount, e.g. "1500.25"
type AmountRequest struct {
	Amount string `json:"amount"`
}

// SummaryResponse describes the vault as a whole
type SummaryResponse struct {
	Address              string `json:"address"`
	Decimals             uint8  `json:"decimals"`
	TotalAssets          string `json:"total_assets"`
	TotalAssetsFormatted string `json:"total_assets_formatted"`
	TotalSupply          string `json:"total_supply"`
	SharePrice           string `json:"share_price"`
	SharePriceFormatted  string `json:"share_price_formatted"`
}

// BalanceResponse is an owner's position
type BalanceResponse struct {
	Owner  string `json:"owner"`
	Shares string `json:"shares"`
	Value  string `json:"value"`
}

// DepositResponse is returned from a deposit
type DepositResponse struct {
	Shares   string  `json:"shares"`
	ReportID *string `json:"report_id,omitempty"`
}

// WithdrawResponse is returned from a withdrawal
type WithdrawResponse struct {
	Assets string `json:"assets"`
}

// FeeCollectionResponse is returned from a fee collection
type FeeCollectionResponse struct {
	ManagementFee  string `json:"management_fee"`
	PerformanceFee string `json:"performance_fee"`
	SharesMinted   string `json:"shares_minted"`
	SharePrice     string `json:"share_price"`
}

// HandleGetSummary handles GET /api/vault/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assets := h.vault.TotalAssets(ctx)
	price := h.vault.SharePrice(ctx)
	dec := h.vault.Decimals()

	utils.WriteJSON(w, http.StatusOK, SummaryResponse{
		Address:              h.vault.Address().Hex(),
		Decimals:             dec,
		TotalAssets:          assets.String(),
		TotalAssetsFormatted: utils.FormatUnits(assets, dec),
		TotalSupply:          h.vault.TotalSupply().String(),
		SharePrice:           price.String(),
		SharePriceFormatted:  utils.FormatUnits(price, dec),
	}, h.log)
}

// HandleGetBalance handles GET /api/vault/balances/{owner}
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := utils.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, err.Error(), h.log)
		return
	}

	shares := h.vault.BalanceOf(owner)
	value := new(big.Int).Mul(shares, h.vault.SharePrice(r.Context()))
	value.Quo(value, domain.Pow10(h.vault.Decimals()))

	utils.WriteJSON(w, http.StatusOK, BalanceResponse{
		Owner:  owner.Hex(),
		Shares: shares.String(),
		Value:  value.String(),
	}, h.log)
}

// HandleDeposit handles POST /api/vault/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := access.CallerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, domain.ErrUnauthorized, h.log)
		return
	}
	amount, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	result, err := h.vault.Deposit(r.Context(), caller, amount)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	resp := DepositResponse{Shares: result.Shares.String()}
	if result.Report != nil {
		resp.ReportID = &result.Report.ID
	}
	utils.WriteJSON(w, http.StatusOK, resp, h.log)
}

// HandleWithdraw handles POST /api/vault/withdraw. The amount is in shares.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := access.CallerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, domain.ErrUnauthorized, h.log)
		return
	}
	shares, ok := h.decodeAmount(w, r)
	if !ok {
		return
	}

	assets, err := h.vault.Withdraw(r.Context(), caller, shares)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, WithdrawResponse{Assets: assets.String()}, h.log)
}

// HandleCollectFees handles POST /api/vault/fees/collect
func (h *Handler) HandleCollectFees(w http.ResponseWriter, r *http.Request) {
	collection, err := h.vault.CollectFees(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, FeeCollectionResponse{
		ManagementFee:  collection.ManagementFee.String(),
		PerformanceFee: collection.PerformanceFee.String(),
		SharesMinted:   collection.SharesMinted.String(),
		SharePrice:     collection.SharePrice.String(),
	}, h.log)
}

// decodeAmount parses the request's amount at vault precision, writing a 400
// on failure.
func (h *Handler) decodeAmount(w http.ResponseWriter, r *http.Request) (*big.Int, bool) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return nil, false
	}
	amount, err := utils.ParseUnits(req.Amount, h.vault.Decimals())
	if err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid amount: %v", err), h.log)
		return nil, false
	}
	return amount, true
}
