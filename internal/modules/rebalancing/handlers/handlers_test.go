package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/access"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

func setupRouter(t *testing.T) (http.Handler, *testhelpers.MockAdapter) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db, cleanup := testhelpers.NewTestDB(t, "vault")
	t.Cleanup(cleanup)

	g := guard.New("manager")
	ledger, err := allocation.NewLedger(allocation.Target{PrimaryBps: 4000, YieldBps: 5000, BufferBps: 1000}, g, nil, nil, logger)
	require.NoError(t, err)

	resolver := testhelpers.NewMockResolver()
	strategy := testhelpers.NewMockAdapter(0)
	resolver.Set(testhelpers.StrategyA, strategy)
	require.NoError(t, ledger.AddEntry(domain.TierYield, testhelpers.StrategyA, 1))

	repo := rebalancing.NewRepository(db.Conn(), logger)
	engine, err := rebalancing.NewEngine(ledger, resolver, testhelpers.NewMockReserve(1000), g, repo, nil,
		rebalancing.RiskParameters{Interval: time.Hour, ThresholdBps: 500}, logger)
	require.NoError(t, err)

	controller := access.NewController([]common.Address{testhelpers.AdminAddress}, logger)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		NewHandler(engine, repo, logger).RegisterRoutes(r, controller.RequireAdmin)
	})
	return r, strategy
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if admin {
		req.Header.Set(access.CallerHeader, testhelpers.AdminAddress.Hex())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRebalance_RequiresAdmin(t *testing.T) {
	router, strategy := setupRouter(t)

	rec := do(t, router, http.MethodPost, "/api/rebalancing/run", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "0", strategy.Value().String())

	rec = do(t, router, http.MethodPost, "/api/rebalancing/run", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var report ReportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "1000", report.TotalValue)
	assert.Equal(t, 1, report.Moves)
	assert.Equal(t, "500", strategy.Value().String())

	// Nothing drifted and the interval has not elapsed.
	rec = do(t, router, http.MethodPost, "/api/rebalancing/run", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/rebalancing/reports/"+report.ID, nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/rebalancing/reports/unknown", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/rebalancing/reports?limit=5", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
}

func TestHandleGetStatus(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(t, router, http.MethodGet, "/api/rebalancing/status", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "1000", status["total_value"])
	assert.Equal(t, true, status["rebalance_needed"])
	assert.Nil(t, status["last_rebalance"])
}

func TestHandleSetRiskParameters(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(t, router, http.MethodPut, "/api/rebalancing/risk-parameters",
		RiskParametersRequest{IntervalSeconds: 7200, ThresholdBps: 250}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var params RiskParametersRequest
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&params))
	assert.Equal(t, int64(7200), params.IntervalSeconds)
	assert.Equal(t, uint64(250), params.ThresholdBps)

	rec = do(t, router, http.MethodPut, "/api/rebalancing/risk-parameters",
		RiskParametersRequest{IntervalSeconds: 60, ThresholdBps: 0}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSnapshotAndDrift(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(t, router, http.MethodGet, "/api/rebalancing/snapshot", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap struct {
		Positions []PositionResponse `json:"positions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "500", snap.Positions[0].Target)
	assert.Equal(t, uint64(10000), snap.Positions[0].DeviationBps)

	rec = do(t, router, http.MethodGet, "/api/rebalancing/drift", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}
