package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/harvest/pkg/schema"
)

// tickInterval is how often the scheduler checks whether the schedule is due.
const tickInterval = 30 * time.Second

// RunStarter is the interface the scheduler uses to trigger runs.
// Satisfied by the run coordinator.
type RunStarter interface {
	Start(ctx context.Context) (string, error)
}

// Scheduler triggers pipeline runs on a cron schedule. A trigger that
// lands while a run is still active is skipped, not queued.
type Scheduler struct {
	starter  RunStarter
	schedule cron.Schedule
	expr     string
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// New creates a Scheduler for the given cron expression
// (standard five-field syntax: minute, hour, day-of-month, month, day-of-week).
func New(expr string, starter RunStarter, logger *slog.Logger) (*Scheduler, error) {
	if starter == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "run starter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse cron expression %q: %s", expr, err.Error()).WithCause(err)
	}
	return &Scheduler{
		starter:  starter,
		schedule: schedule,
		expr:     expr,
		logger:   logger,
	}, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.nextRun = s.schedule.Next(time.Now().UTC())
	s.mu.Unlock()

	// Close the captured channel, not the field: Stop nils the field
	// before the loop winds down.
	go func() {
		defer close(done)
		s.loop(schedCtx)
	}()
	s.logger.Info("scheduler started", "schedule", s.expr, "next_run", s.nextRun)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick triggers a run when the schedule is due and advances next_run.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	due := !s.nextRun.After(now)
	if due {
		s.nextRun = s.schedule.Next(now)
	}
	next := s.nextRun
	s.mu.Unlock()

	if !due {
		return
	}

	runID, err := s.starter.Start(ctx)
	if err != nil {
		var herr *schema.HarvestError
		if errors.As(err, &herr) && herr.Code == schema.ErrCodeConflict {
			s.logger.Info("scheduled run skipped, previous run still active", "next_run", next)
			return
		}
		s.logger.Error("scheduled run failed to start", "error", err)
		return
	}
	s.logger.Info("scheduled run started", "run_id", runID, "next_run", next)
}

// NextRun returns the next scheduled trigger time.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	// Wait outside the lock: a tick in flight needs the lock to finish.
	cancel()
	<-done

	s.logger.Info("scheduler stopped")
	return nil
}
