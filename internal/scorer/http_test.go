package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScoreServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPScorerDefaultPath(t *testing.T) {
	srv := newScoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "x.test", body["item"])
		json.NewEncoder(w).Encode(map[string]any{"score": 7.2})
	})

	s, err := NewHTTPScorer(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	got, err := s.Score(context.Background(), "x.test")
	require.NoError(t, err)
	assert.Equal(t, 7.2, got)
}

func TestHTTPScorerCustomPath(t *testing.T) {
	srv := newScoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"value": 6.5},
		})
	})

	s, err := NewHTTPScorer(HTTPConfig{Endpoint: srv.URL, ScorePath: ".result.value"})
	require.NoError(t, err)

	got, err := s.Score(context.Background(), "x.test")
	require.NoError(t, err)
	assert.Equal(t, 6.5, got)
}

func TestHTTPScorerClampsToRange(t *testing.T) {
	srv := newScoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"score": 42.0})
	})

	s, err := NewHTTPScorer(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	got, err := s.Score(context.Background(), "x.test")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestHTTPScorerStringScore(t *testing.T) {
	srv := newScoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"score": "8.1"})
	})

	s, err := NewHTTPScorer(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	got, err := s.Score(context.Background(), "x.test")
	require.NoError(t, err)
	assert.Equal(t, 8.1, got)
}

func TestHTTPScorerServerError(t *testing.T) {
	srv := newScoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	s, err := NewHTTPScorer(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = s.Score(context.Background(), "x.test")
	assert.Error(t, err)
}

func TestHTTPScorerNonNumericScore(t *testing.T) {
	srv := newScoreServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"score": map[string]any{"nested": true}})
	})

	s, err := NewHTTPScorer(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = s.Score(context.Background(), "x.test")
	assert.Error(t, err)
}

func TestHTTPScorerInvalidConfig(t *testing.T) {
	_, err := NewHTTPScorer(HTTPConfig{})
	assert.Error(t, err)

	_, err = NewHTTPScorer(HTTPConfig{Endpoint: "http://localhost:1", ScorePath: ".foo|"})
	assert.Error(t, err)
}
