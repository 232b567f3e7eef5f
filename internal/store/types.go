package store

import (
	"time"

	"github.com/rendis/harvest/pkg/schema"
)

// Acquisition is one append-only ledger entry for a confirmed action.
type Acquisition struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id,omitempty"`
	Item       string    `json:"item"`
	Amount     float64   `json:"amount"`
	ReceiptID  string    `json:"receipt_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Run is the archived record of one pipeline execution.
type Run struct {
	ID          string           `json:"id"`
	Status      schema.RunStatus `json:"status"`
	ItemsTotal  int              `json:"items_total"`
	ItemsDone   int              `json:"items_done"`
	ItemsActed  int              `json:"items_acted"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// RunUpdate specifies mutable fields of a run record.
type RunUpdate struct {
	Status      *schema.RunStatus `json:"status,omitempty"`
	ItemsTotal  *int              `json:"items_total,omitempty"`
	ItemsDone   *int              `json:"items_done,omitempty"`
	ItemsActed  *int              `json:"items_acted,omitempty"`
	Error       *string           `json:"error,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
