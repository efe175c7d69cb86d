package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

func TestHTTPAdapter_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/deposit", "/withdraw":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "123456789012345678901234567890", req["amount"])
			json.NewEncoder(w).Encode(map[string]string{"amount": req["amount"]})
		case "/value":
			assert.Equal(t, http.MethodGet, r.Method)
			json.NewEncoder(w).Encode(map[string]string{"value": "42"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	a := NewHTTPAdapter(server.URL+"/", time.Second, zerolog.Nop())
	ctx := context.Background()
	amount, ok := testhelpers.Units(0).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	got, err := a.Deposit(ctx, amount)
	require.NoError(t, err)
	assert.Equal(t, amount.String(), got.String())

	got, err = a.Withdraw(ctx, amount)
	require.NoError(t, err)
	assert.Equal(t, amount.String(), got.String())

	got, err = a.ValueOf(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", got.String())
}

func TestHTTPAdapter_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "strategy paused"})
	}))
	defer server.Close()

	a := NewHTTPAdapter(server.URL, time.Second, zerolog.Nop())
	_, err := a.Deposit(context.Background(), testhelpers.Units(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "strategy paused")
}

func TestHTTPAdapter_InvalidPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"value": "not-a-number"})
	}))
	defer server.Close()

	a := NewHTTPAdapter(server.URL, time.Second, zerolog.Nop())
	_, err := a.ValueOf(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid value")
}

func TestHTTPAdapter_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	a := NewHTTPAdapter(server.URL, 50*time.Millisecond, zerolog.Nop())
	_, err := a.ValueOf(context.Background())
	assert.Error(t, err)
}
