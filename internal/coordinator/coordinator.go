package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/harvest/internal/action"
	"github.com/rendis/harvest/internal/bus"
	"github.com/rendis/harvest/internal/engine"
	"github.com/rendis/harvest/internal/ledger"
	"github.com/rendis/harvest/internal/logging"
	"github.com/rendis/harvest/internal/policy"
	"github.com/rendis/harvest/internal/scorer"
	"github.com/rendis/harvest/internal/status"
	"github.com/rendis/harvest/internal/store"
	"github.com/rendis/harvest/internal/worklist"
	"github.com/rendis/harvest/pkg/schema"
)

// Config wires a Coordinator with its collaborators. Bus, Snapshot and
// Worklist are required; Store is optional (no run archive without it).
type Config struct {
	Worklist       worklist.Provider
	Scorer         scorer.Scorer
	Rule           *policy.Rule
	Vault          action.Executor
	Ledger         ledger.Ledger
	Bus            *bus.Bus
	Snapshot       *status.Snapshot
	Store          store.Store
	Logger         *slog.Logger
	MaxTransitions int
}

// Coordinator owns at most one active pipeline run. It bridges run
// lifecycle into the snapshot, the bus and the run archive.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	runID    string
	done     chan struct{}
	stopFlag atomic.Bool
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Bus == nil || cfg.Snapshot == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "bus and snapshot are required")
	}
	if cfg.Worklist == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "worklist provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, logger: cfg.Logger}, nil
}

// Start begins a new run and returns its ID. A second start during an
// active run is rejected with a conflict, not queued.
func (c *Coordinator) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running || !c.cfg.Snapshot.Status().Startable() {
		return "", schema.NewError(schema.ErrCodeConflict, "already running")
	}

	runID := uuid.NewString()
	exec, err := engine.New(engine.Config{
		RunID:          runID,
		Worklist:       c.cfg.Worklist,
		Scorer:         c.cfg.Scorer,
		Rule:           c.cfg.Rule,
		Vault:          c.cfg.Vault,
		Ledger:         c.cfg.Ledger,
		Bus:            c.cfg.Bus,
		Snapshot:       c.cfg.Snapshot,
		Logger:         c.logger,
		MaxTransitions: c.cfg.MaxTransitions,
		StopRequested:  c.stopFlag.Load,
	})
	if err != nil {
		return "", err
	}

	c.stopFlag.Store(false)
	c.running = true
	c.runID = runID
	c.done = make(chan struct{})

	// Status flips to running before Start returns so an immediate
	// status query never reports the previous terminal state.
	c.cfg.Snapshot.Update(map[string]any{
		status.FieldStatus:      string(schema.RunStatusRunning),
		status.FieldCurrentTask: "starting run",
		status.FieldCurrentItem: "",
	})
	c.cfg.Bus.Publish(schema.NewEvent(schema.StartPayload{
		RunID:   runID,
		Message: "run started",
	}))

	runCtx := logging.WithRunID(context.Background(), runID)
	c.logger.InfoContext(runCtx, "run starting")
	c.archiveCreate(runCtx, runID)

	go c.drive(runCtx, exec)
	return runID, nil
}

// Stop requests cooperative cancellation of the active run. The executor
// checks the flag before starting its next item; an in-flight external
// call is never interrupted. Returns false when no run is active.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.stopFlag.Store(true)
	// Status reads as stopped right away even while the in-flight item
	// finishes; the executor re-asserts the terminal state on exit.
	c.cfg.Snapshot.Update(map[string]any{
		status.FieldStatus: string(schema.RunStatusStopped),
	})
	c.logger.Info("stop requested", "run_id", c.runID)
	return true
}

// Running reports whether a run is currently active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Wait blocks until the active run (if any) finishes or the context ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close requests a stop and waits for the worker to exit.
func (c *Coordinator) Close(ctx context.Context) error {
	c.Stop()
	return c.Wait(ctx)
}

// drive runs the executor to completion on the background worker and
// archives the outcome.
func (c *Coordinator) drive(ctx context.Context, exec *engine.Executor) {
	result := exec.Run(ctx)
	c.archiveFinish(ctx, result)

	c.mu.Lock()
	c.running = false
	close(c.done)
	c.mu.Unlock()
}

func (c *Coordinator) archiveCreate(ctx context.Context, runID string) {
	if c.cfg.Store == nil {
		return
	}
	err := c.cfg.Store.CreateRun(ctx, &store.Run{
		ID:        runID,
		Status:    schema.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "archive run create failed", "error", err)
	}
}

func (c *Coordinator) archiveFinish(ctx context.Context, result engine.Result) {
	if c.cfg.Store == nil {
		return
	}
	terminal := schema.RunStatusCompleted
	switch {
	case result.Err != nil:
		terminal = schema.RunStatusFailed
	case result.Stopped:
		terminal = schema.RunStatusStopped
	}
	update := store.RunUpdate{
		Status:     &terminal,
		ItemsTotal: &result.ItemsTotal,
		ItemsDone:  &result.ItemsDone,
		ItemsActed: &result.ItemsActed,
	}
	if result.Err != nil {
		msg := result.Err.Error()
		update.Error = &msg
	}
	completed := time.Now().UTC()
	update.CompletedAt = &completed

	if err := c.cfg.Store.UpdateRun(ctx, result.RunID, update); err != nil {
		c.logger.ErrorContext(ctx, "archive run update failed", "error", err)
	}
}
