// Package handlers provides HTTP handlers for rebalancing operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// ReportStore reads stored pass reports
type ReportStore interface {
	GetReport(id string) (*rebalancing.Report, error)
	ListReports(limit int) ([]*rebalancing.Report, error)
}

// Handler handles rebalancing HTTP requests
type Handler struct {
	engine  *rebalancing.Engine
	reports ReportStore
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(engine *rebalancing.Engine, reports ReportStore, log zerolog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		reports: reports,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// RiskParametersRequest represents a request to change the rebalance gate
type RiskParametersRequest struct {
	IntervalSeconds int64  `json:"interval_seconds"`
	ThresholdBps    uint64 `json:"threshold_bps"`
}

// PositionResponse is one adapter row of a snapshot
type PositionResponse struct {
	Tier         string `json:"tier"`
	Adapter      string `json:"adapter"`
	Weight       uint64 `json:"weight"`
	Current      string `json:"current"`
	Target       string `json:"target"`
	Delta        string `json:"delta"`
	DeviationBps uint64 `json:"deviation_bps"`
	ValueError   string `json:"value_error,omitempty"`
}

// OutcomeResponse is one adapter interaction of a pass
type OutcomeResponse struct {
	Tier      string `json:"tier"`
	Adapter   string `json:"adapter"`
	Action    string `json:"action"`
	Requested string `json:"requested"`
	Moved     string `json:"moved"`
	Error     string `json:"error,omitempty"`
}

// ReportResponse is the JSON form of a pass report
type ReportResponse struct {
	ID              string            `json:"id"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
	TotalValue      string            `json:"total_value"`
	Targets         map[string]string `json:"targets"`
	MaxDeviationBps uint64            `json:"max_deviation_bps"`
	IntervalElapsed bool              `json:"interval_elapsed"`
	Degraded        bool              `json:"degraded"`
	Moves           int               `json:"moves"`
	Failures        int               `json:"failures"`
	Outcomes        []OutcomeResponse `json:"outcomes"`
}

func toReportResponse(r *rebalancing.Report) ReportResponse {
	resp := ReportResponse{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		TotalValue:  domain.CopyBig(r.TotalValue).String(),
		Targets: map[string]string{
			"primary": domain.CopyBig(r.Targets.Primary).String(),
			"yield":   domain.CopyBig(r.Targets.Yield).String(),
			"buffer":  domain.CopyBig(r.Targets.Buffer).String(),
		},
		MaxDeviationBps: r.MaxDeviationBps,
		IntervalElapsed: r.IntervalElapsed,
		Degraded:        r.Degraded,
		Moves:           r.Moves(),
		Failures:        r.Failures(),
		Outcomes:        make([]OutcomeResponse, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		resp.Outcomes = append(resp.Outcomes, OutcomeResponse{
			Tier:      o.Tier.String(),
			Adapter:   o.Adapter,
			Action:    string(o.Action),
			Requested: domain.CopyBig(o.Requested).String(),
			Moved:     domain.CopyBig(o.Moved).String(),
			Error:     o.Err,
		})
	}
	return resp
}

// HandleGetStatus handles GET /api/rebalancing/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot(r.Context())
	params := h.engine.RiskParameters()

	var last interface{}
	if ts := h.engine.LastRebalanceTimestamp(); !ts.IsZero() {
		last = ts
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total_value":       snap.TotalValue.String(),
		"buffer":            snap.Buffer.String(),
		"primary_value":     snap.TierValue(domain.TierPrimary).String(),
		"yield_value":       snap.TierValue(domain.TierYield).String(),
		"max_deviation_bps": snap.MaxDeviationBps,
		"unvalued_adapters": snap.Unvalued(),
		"rebalance_needed":  h.engine.IsRebalanceNeeded(r.Context()),
		"last_rebalance":    last,
		"interval_seconds":  int64(params.Interval / time.Second),
		"threshold_bps":     params.ThresholdBps,
	}, h.log)
}

// HandleGetSnapshot handles GET /api/rebalancing/snapshot
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot(r.Context())

	positions := make([]PositionResponse, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		pos := PositionResponse{
			Tier:         p.Tier.String(),
			Adapter:      p.Entry.Adapter.Hex(),
			Weight:       p.Entry.Weight,
			Current:      p.Current.String(),
			Target:       p.Target.String(),
			Delta:        p.Delta.String(),
			DeviationBps: p.DeviationBps(),
		}
		if p.ValueErr != nil {
			pos.ValueError = p.ValueErr.Error()
		}
		positions = append(positions, pos)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total_value": snap.TotalValue.String(),
		"buffer":      snap.Buffer.String(),
		"targets": map[string]string{
			"primary": snap.Targets.Primary.String(),
			"yield":   snap.Targets.Yield.String(),
			"buffer":  snap.Targets.Buffer.String(),
		},
		"max_deviation_bps": snap.MaxDeviationBps,
		"unvalued_adapters": snap.Unvalued(),
		"positions":         positions,
	}, h.log)
}

// HandleRebalance handles POST /api/rebalancing/run
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Rebalance(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toReportResponse(report), h.log)
}

// HandleGetRiskParameters handles GET /api/rebalancing/risk-parameters
func (h *Handler) HandleGetRiskParameters(w http.ResponseWriter, r *http.Request) {
	params := h.engine.RiskParameters()
	utils.WriteJSON(w, http.StatusOK, RiskParametersRequest{
		IntervalSeconds: int64(params.Interval / time.Second),
		ThresholdBps:    params.ThresholdBps,
	}, h.log)
}

// HandleSetRiskParameters handles PUT /api/rebalancing/risk-parameters
func (h *Handler) HandleSetRiskParameters(w http.ResponseWriter, r *http.Request) {
	var req RiskParametersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteErrorMessage(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	interval := time.Duration(req.IntervalSeconds) * time.Second
	if err := h.engine.SetRiskParameters(interval, req.ThresholdBps); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	h.HandleGetRiskParameters(w, r)
}

// HandleListReports handles GET /api/rebalancing/reports
func (h *Handler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.ListReports(parseLimit(r))
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	resp := make([]ReportResponse, 0, len(reports))
	for _, report := range reports {
		resp = append(resp, toReportResponse(report))
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reports": resp,
		"count":   len(resp),
	}, h.log)
}

// HandleGetReport handles GET /api/rebalancing/reports/{id}
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GetReport(chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, toReportResponse(report), h.log)
}

// HandleGetDrift handles GET /api/rebalancing/drift
func (h *Handler) HandleGetDrift(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.ListReports(parseLimit(r))
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rebalancing.ComputeDriftStatistics(reports), h.log)
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
