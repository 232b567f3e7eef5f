package status

import (
	"sync"

	"github.com/rendis/harvest/pkg/schema"
)

// Snapshot field names. Every field read via Get was written by some
// completed Update call or set by the initial default.
const (
	FieldStatus        = "status"
	FieldCurrentTask   = "current_task"
	FieldCurrentItem   = "current_item"
	FieldProgress      = "progress"
	FieldLastScore     = "last_score"
	FieldLastRisk      = "last_risk"
	FieldLastDecision  = "last_decision"
	FieldLastActionRef = "last_action_ref"
)

// Snapshot is the single authoritative status mapping, read by anyone and
// mutated only through merge-patch updates. It spans the process lifetime.
type Snapshot struct {
	mu     sync.Mutex
	fields map[string]any
}

// New creates a Snapshot initialized to the idle state.
func New() *Snapshot {
	return &Snapshot{fields: idleFields()}
}

func idleFields() map[string]any {
	return map[string]any{
		FieldStatus:        string(schema.RunStatusIdle),
		FieldCurrentTask:   "",
		FieldCurrentItem:   "",
		FieldProgress:      map[string]any{"done": 0, "total": 0},
		FieldLastScore:     nil,
		FieldLastRisk:      nil,
		FieldLastDecision:  nil,
		FieldLastActionRef: nil,
	}
}

// Update merges the patch into the snapshot under one exclusive critical
// section. Only listed keys change; last writer wins per field.
func (s *Snapshot) Update(patch map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range patch {
		s.fields[k] = deepCopy(v)
	}
}

// Get returns a full consistent copy, never a live reference, so callers
// cannot observe a partial update or mutate shared state.
func (s *Snapshot) Get() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		out[k] = deepCopy(v)
	}
	return out
}

// Status returns the current lifecycle status field.
func (s *Snapshot) Status() schema.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.fields[FieldStatus].(string)
	return schema.RunStatus(v)
}

// deepCopy copies nested maps and slices so readers and writers never
// share mutable structures.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopy(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopy(inner)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}
