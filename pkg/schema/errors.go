package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeExecution      = "EXECUTION_ERROR"
	ErrCodeScorer         = "SCORER_ERROR"
	ErrCodeAction         = "ACTION_ERROR"
	ErrCodeLedger         = "LEDGER_ERROR"
	ErrCodeStore          = "STORE_ERROR"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeIterationLimit = "ITERATION_LIMIT"
	ErrCodeCancelled      = "CANCELLED"
	ErrCodeNotFound       = "NOT_FOUND"
)

// HarvestError is the structured error type for all harvest operations.
type HarvestError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Stage   Stage          `json:"stage,omitempty"`
	Cause   error          `json:"-"`
}

func (e *HarvestError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *HarvestError) Unwrap() error {
	return e.Cause
}

// NewError creates a new HarvestError.
func NewError(code, message string) *HarvestError {
	return &HarvestError{Code: code, Message: message}
}

// NewErrorf creates a new HarvestError with a formatted message.
func NewErrorf(code, format string, args ...any) *HarvestError {
	return &HarvestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStage attaches the pipeline stage to the error.
func (e *HarvestError) WithStage(stage Stage) *HarvestError {
	e.Stage = stage
	return e
}

// WithCause attaches an underlying cause.
func (e *HarvestError) WithCause(err error) *HarvestError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *HarvestError) WithDetails(details map[string]any) *HarvestError {
	e.Details = details
	return e
}
