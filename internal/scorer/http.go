package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/itchyny/gojq"

	"github.com/rendis/harvest/pkg/schema"
)

const (
	defaultScorePath       = ".score"
	defaultTimeout         = 30 * time.Second
	defaultMaxResponseBody = 1 << 20 // 1MB
)

// HTTPConfig configures the HTTP scorer.
type HTTPConfig struct {
	Endpoint  string        // scoring service URL, required
	ScorePath string        // jq expression extracting the score from the response
	Timeout   time.Duration // per-request timeout
}

// HTTPScorer asks an external scoring service to evaluate an item. The
// request is a JSON POST {"item": ...}; the numeric score is extracted
// from the JSON response with a jq expression so the scorer works against
// differently shaped model APIs without code changes.
type HTTPScorer struct {
	endpoint string
	code     *gojq.Code
	client   *http.Client
}

// NewHTTPScorer compiles the extraction expression and returns a scorer.
func NewHTTPScorer(cfg HTTPConfig) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "scorer endpoint is required")
	}
	path := cfg.ScorePath
	if path == "" {
		path = defaultScorePath
	}
	query, err := gojq.Parse(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in score path %q: %s", path, err.Error()).WithCause(err)
	}
	code, err := gojq.Compile(query,
		// Sandbox: block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in score path %q: %s", path, err.Error()).WithCause(err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPScorer{
		endpoint: cfg.Endpoint,
		code:     code,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Score requests a score for the item and clamps the result to [1,10].
func (s *HTTPScorer) Score(ctx context.Context, item string) (float64, error) {
	body, err := json.Marshal(map[string]string{"item": item})
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "marshal request: %s", err.Error()).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "build request: %s", err.Error()).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "score request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "score request returned %d", resp.StatusCode).
			WithDetails(map[string]any{"item": item})
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "read response: %s", err.Error()).WithCause(err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "decode response: %s", err.Error()).WithCause(err)
	}

	value, err := s.extract(ctx, payload)
	if err != nil {
		return 0, err
	}
	return clamp(value, 1.0, 10.0), nil
}

// extract runs the jq expression and coerces the first output to a float.
func (s *HTTPScorer) extract(ctx context.Context, payload any) (float64, error) {
	iter := s.code.RunWithContext(ctx, payload)
	v, ok := iter.Next()
	if !ok {
		return 0, schema.NewError(schema.ErrCodeScorer, "score path produced no output")
	}
	if err, isErr := v.(error); isErr {
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "score path evaluation failed: %s", err.Error()).WithCause(err)
	}

	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err != nil {
			return 0, schema.NewErrorf(schema.ErrCodeScorer, "non-numeric score %q", n)
		}
		return f, nil
	default:
		return 0, schema.NewErrorf(schema.ErrCodeScorer, "non-numeric score of type %T", v)
	}
}

var _ Scorer = (*HTTPScorer)(nil)
