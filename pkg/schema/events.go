package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type constants for the live stream.
const (
	EventStart           = "start"
	EventWorklistLoaded  = "worklist-loaded"
	EventScore           = "score"
	EventRisk            = "risk"
	EventDecision        = "decision"
	EventActionSent      = "action-sent"
	EventActionConfirmed = "action-confirmed"
	EventActionFailed    = "action-failed"
	EventStep            = "step"
	EventProgress        = "progress"
	EventError           = "error"
	EventComplete        = "complete"
)

// Payload is implemented by every event payload variant. Each variant
// carries only the fields relevant to its event type.
type Payload interface {
	EventType() string
}

// Event is an immutable record published on the bus. The timestamp is
// stamped by the bus at publish time when zero; events are never mutated
// after publication.
type Event struct {
	Type      string
	Timestamp time.Time
	Payload   Payload
}

// NewEvent wraps a payload in an Event tagged with the payload's type.
func NewEvent(p Payload) Event {
	return Event{Type: p.EventType(), Payload: p}
}

// MarshalJSON flattens the payload fields alongside the type tag and
// timestamp, matching the wire shape consumed by stream clients.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Type, err)
		}
	}
	flat["type"] = e.Type
	if !e.Timestamp.IsZero() {
		flat["ts"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(flat)
}

// --- Payload variants ---

// StartPayload announces the beginning of a run.
type StartPayload struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

func (StartPayload) EventType() string { return EventStart }

// WorklistLoadedPayload carries the items selected for a run.
type WorklistLoadedPayload struct {
	Items   []string `json:"items"`
	Message string   `json:"message"`
}

func (WorklistLoadedPayload) EventType() string { return EventWorklistLoaded }

// ScorePayload carries the quality score assigned to an item.
type ScorePayload struct {
	Item    string  `json:"item"`
	Score   float64 `json:"score"`
	Message string  `json:"message"`
}

func (ScorePayload) EventType() string { return EventScore }

// RiskPayload carries the risk value derived for an item.
type RiskPayload struct {
	Item    string  `json:"item"`
	Risk    float64 `json:"risk"`
	Message string  `json:"message"`
}

func (RiskPayload) EventType() string { return EventRisk }

// DecisionPayload carries the act/skip decision for an item.
type DecisionPayload struct {
	Item     string   `json:"item"`
	Decision Decision `json:"decision"`
	Score    float64  `json:"score"`
	Risk     float64  `json:"risk"`
	Message  string   `json:"message"`
}

func (DecisionPayload) EventType() string { return EventDecision }

// ActionSentPayload is emitted when the external action has been dispatched.
type ActionSentPayload struct {
	Item    string  `json:"item"`
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}

func (ActionSentPayload) EventType() string { return EventActionSent }

// ActionConfirmedPayload is emitted when the external action succeeded.
type ActionConfirmedPayload struct {
	Item      string  `json:"item"`
	ReceiptID string  `json:"receipt_id"`
	Amount    float64 `json:"amount"`
	Message   string  `json:"message"`
}

func (ActionConfirmedPayload) EventType() string { return EventActionConfirmed }

// ActionFailedPayload is emitted when the external action failed.
// Action failures are non-fatal to the run.
type ActionFailedPayload struct {
	Item    string `json:"item"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (ActionFailedPayload) EventType() string { return EventActionFailed }

// StepPayload is emitted once per pipeline transition.
type StepPayload struct {
	Stage   Stage  `json:"stage"`
	Item    string `json:"item,omitempty"`
	Message string `json:"message"`
}

func (StepPayload) EventType() string { return EventStep }

// ProgressPayload tracks how many worklist items have been evaluated.
type ProgressPayload struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

func (ProgressPayload) EventType() string { return EventProgress }

// ErrorPayload reports a fatal run error. It always precedes the terminal
// complete event so observers can tell an aborted run from a clean finish.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (ErrorPayload) EventType() string { return EventError }

// CompletePayload is the terminal event of every run.
type CompletePayload struct {
	RunID   string `json:"run_id,omitempty"`
	Message string `json:"message"`
}

func (CompletePayload) EventType() string { return EventComplete }
