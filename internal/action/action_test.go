package action

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountFor(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{0.0, 0.01},
		{1.0, 0.01},
		{2.0, 0.01},
		{4.0, 0.02},
		{6.0, 0.03},
		{8.0, 0.04},
		{10.0, 0.05},
		{100.0, 0.05},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, AmountFor(tc.score), 1e-9, "score=%v", tc.score)
	}
}

func TestDryRunExecutor(t *testing.T) {
	var d DryRun

	first, err := d.Perform(context.Background(), "x.test", 7.0)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.InDelta(t, 0.035, first.Amount, 1e-9)

	second, err := d.Perform(context.Background(), "x.test", 7.0)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestHTTPVaultPerform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "x.test", body["item"])
		assert.InDelta(t, 0.035, body["amount"].(float64), 1e-9)
		json.NewEncoder(w).Encode(map[string]string{"receipt_id": "0xabc123"})
	}))
	defer srv.Close()

	v, err := NewHTTPVault(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	receipt, err := v.Perform(context.Background(), "x.test", 7.0)
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", receipt.ID)
	assert.InDelta(t, 0.035, receipt.Amount, 1e-9)
}

func TestHTTPVaultRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds"})
	}))
	defer srv.Close()

	v, err := NewHTTPVault(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = v.Perform(context.Background(), "x.test", 7.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestHTTPVaultServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	v, err := NewHTTPVault(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = v.Perform(context.Background(), "x.test", 7.0)
	assert.Error(t, err)
}

func TestHTTPVaultMissingReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	v, err := NewHTTPVault(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = v.Perform(context.Background(), "x.test", 7.0)
	assert.Error(t, err)
}

func TestHTTPVaultRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPVault(HTTPConfig{})
	assert.Error(t, err)
}
