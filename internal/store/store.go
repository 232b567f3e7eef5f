package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Acquisitions (append-only)
	AppendAcquisition(ctx context.Context, acq *Acquisition) error
	ListAcquisitions(ctx context.Context) ([]*Acquisition, error)

	// Run archive
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
