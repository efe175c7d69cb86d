package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/access"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

func setupRouter(t *testing.T) (http.Handler, *allocation.Ledger) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	ledger, err := allocation.NewLedger(allocation.Target{PrimaryBps: 4000, YieldBps: 5000, BufferBps: 1000}, guard.New("manager"), nil, nil, logger)
	require.NoError(t, err)

	controller := access.NewController([]common.Address{testhelpers.AdminAddress}, logger)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		NewHandler(ledger, logger).RegisterRoutes(r, controller.RequireAdmin)
	})
	return r, ledger
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

func TestHandleTarget(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(t, router, http.MethodGet, "/api/allocation/target", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"primary_bps":4000,"yield_bps":5000,"buffer_bps":1000}`, rec.Body.String())

	next := allocation.Target{PrimaryBps: 3000, YieldBps: 6000, BufferBps: 1000}
	rec = do(t, router, http.MethodPut, "/api/allocation/target", next, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/allocation/target", next, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"primary_bps":3000,"yield_bps":6000,"buffer_bps":1000}`, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/api/allocation/target", allocation.Target{PrimaryBps: 5000, YieldBps: 5000, BufferBps: 1000}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEntriesLifecycle(t *testing.T) {
	router, ledger := setupRouter(t)
	strategyA := testhelpers.StrategyA.Hex()

	rec := do(t, router, http.MethodPost, "/api/allocation/yield/entries", EntryRequest{Adapter: strategyA, Weight: 60}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/allocation/yield/entries", EntryRequest{Adapter: strategyA, Weight: 10}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/allocation/yield/entries/"+strategyA, WeightRequest{Weight: 75}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries EntriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, uint64(75), entries.TotalActiveWeight)

	rec = do(t, router, http.MethodDelete, "/api/allocation/yield/entries/"+strategyA, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ledger.ActiveEntries(domain.TierYield))

	rec = do(t, router, http.MethodDelete, "/api/allocation/yield/entries/"+testhelpers.UnknownStrategy.Hex(), nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/allocation/yield/entries", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries.Entries)

	rec = do(t, router, http.MethodGet, "/api/allocation/yield/entries?include_removed=true", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries.Entries, 1)
	assert.False(t, entries.Entries[0].Active)
}

func TestHandleAddEntries_Batch(t *testing.T) {
	router, ledger := setupRouter(t)

	req := BatchEntryRequest{
		Adapters: []string{testhelpers.StrategyA.Hex(), testhelpers.StrategyB.Hex()},
		Weights:  []uint64{60},
	}
	rec := do(t, router, http.MethodPost, "/api/allocation/yield/entries/batch", req, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ledger.Entries(domain.TierYield))

	req.Weights = []uint64{60, 40}
	rec = do(t, router, http.MethodPost, "/api/allocation/yield/entries/batch", req, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, ledger.ActiveEntries(domain.TierYield), 2)
}

func TestHandleGetTargets(t *testing.T) {
	router, ledger := setupRouter(t)
	require.NoError(t, ledger.AddEntry(domain.TierPrimary, testhelpers.RWAAdapter, 1))
	require.NoError(t, ledger.AddEntry(domain.TierYield, testhelpers.StrategyA, 60))
	require.NoError(t, ledger.AddEntry(domain.TierYield, testhelpers.StrategyB, 40))

	rec := do(t, router, http.MethodGet, "/api/allocation/targets?total=100000", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TargetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "40000", resp.Primary)
	assert.Equal(t, "50000", resp.Yield)
	assert.Equal(t, "10000", resp.Buffer)
	require.Len(t, resp.Shares["yield"], 2)
	assert.Equal(t, "30000", resp.Shares["yield"][0].Amount)
	assert.Equal(t, "20000", resp.Shares["yield"][1].Amount)

	rec = do(t, router, http.MethodGet, "/api/allocation/targets?total=abc", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownTier(t *testing.T) {
	router, _ := setupRouter(t)

	rec := do(t, router, http.MethodGet, "/api/allocation/equity/entries", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
