package worklist

import "context"

// Provider supplies the candidate items for a pipeline run.
type Provider interface {
	Load(ctx context.Context) ([]string, error)
}

// Static serves a fixed list of items.
type Static struct {
	items []string
}

// NewStatic creates a provider over the given items.
func NewStatic(items []string) *Static {
	copied := make([]string, len(items))
	copy(copied, items)
	return &Static{items: copied}
}

// Load returns a copy of the configured items. An empty list is valid:
// the run completes with zero evaluations.
func (s *Static) Load(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out, nil
}

var _ Provider = (*Static)(nil)
