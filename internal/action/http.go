package action

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rendis/harvest/pkg/schema"
)

const defaultTimeout = 60 * time.Second

// HTTPConfig configures the HTTP vault executor.
type HTTPConfig struct {
	Endpoint string        // vault service URL, required
	Timeout  time.Duration // per-request timeout; action calls can be slow
}

// HTTPVault submits acquisitions to an external vault service and waits
// for the confirmation response carrying the receipt identifier.
type HTTPVault struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVault creates an HTTP vault executor.
func NewHTTPVault(cfg HTTPConfig) (*HTTPVault, error) {
	if cfg.Endpoint == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "vault endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPVault{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Perform submits the action and returns the vault's receipt.
func (v *HTTPVault) Perform(ctx context.Context, item string, score float64) (Receipt, error) {
	amount := AmountFor(score)

	body, err := json.Marshal(map[string]any{
		"item":   item,
		"amount": amount,
	})
	if err != nil {
		return Receipt{}, schema.NewErrorf(schema.ErrCodeAction, "marshal request: %s", err.Error()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, schema.NewErrorf(schema.ErrCodeAction, "build request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Receipt{}, schema.NewErrorf(schema.ErrCodeAction, "vault request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Receipt{}, schema.NewErrorf(schema.ErrCodeAction, "vault returned %d", resp.StatusCode).
			WithDetails(map[string]any{"item": item, "amount": amount})
	}

	var out struct {
		ReceiptID string `json:"receipt_id"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Receipt{}, schema.NewErrorf(schema.ErrCodeAction, "decode response: %s", err.Error()).WithCause(err)
	}
	if out.Error != "" {
		return Receipt{}, schema.NewErrorf(schema.ErrCodeAction, "vault rejected action: %s", out.Error).
			WithDetails(map[string]any{"item": item})
	}
	if out.ReceiptID == "" {
		return Receipt{}, schema.NewError(schema.ErrCodeAction, "vault response missing receipt_id")
	}

	return Receipt{ID: out.ReceiptID, Amount: amount}, nil
}

var _ Executor = (*HTTPVault)(nil)
