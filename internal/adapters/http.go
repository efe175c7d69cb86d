package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds each call to a remote strategy service.
const DefaultTimeout = 30 * time.Second

// amountPayload is the wire form of every request and response body.
// Amounts travel as base-unit decimal strings.
type amountPayload struct {
	Amount string `json:"amount,omitempty"`
	Value  string `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HTTPAdapter is a client for a remote strategy service exposing
// POST /deposit, POST /withdraw and GET /value.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPAdapter creates a client for the service at baseURL.
// A zero timeout falls back to DefaultTimeout.
func NewHTTPAdapter(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPAdapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "strategy").Str("base_url", baseURL).Logger(),
	}
}

// Deposit implements domain.Adapter.
func (a *HTTPAdapter) Deposit(ctx context.Context, amount *big.Int) (*big.Int, error) {
	resp, err := a.do(ctx, http.MethodPost, "/deposit", &amountPayload{Amount: amount.String()})
	if err != nil {
		return nil, fmt.Errorf("deposit failed: %w", err)
	}
	return parseField("amount", resp.Amount)
}

// Withdraw implements domain.Adapter.
func (a *HTTPAdapter) Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error) {
	resp, err := a.do(ctx, http.MethodPost, "/withdraw", &amountPayload{Amount: amount.String()})
	if err != nil {
		return nil, fmt.Errorf("withdraw failed: %w", err)
	}
	return parseField("amount", resp.Amount)
}

// ValueOf implements domain.Adapter.
func (a *HTTPAdapter) ValueOf(ctx context.Context) (*big.Int, error) {
	resp, err := a.do(ctx, http.MethodGet, "/value", nil)
	if err != nil {
		return nil, fmt.Errorf("value query failed: %w", err)
	}
	return parseField("value", resp.Value)
}

func (a *HTTPAdapter) do(ctx context.Context, method, path string, body *amountPayload) (*amountPayload, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var payload amountPayload
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	a.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Strategy call")

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && payload.Error != "" {
			return nil, fmt.Errorf("service returned status %d: %s", resp.StatusCode, payload.Error)
		}
		return nil, fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	return &payload, nil
}

func parseField(name, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q in response", name, raw)
	}
	return v, nil
}
