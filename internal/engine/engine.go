package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/harvest/internal/action"
	"github.com/rendis/harvest/internal/bus"
	"github.com/rendis/harvest/internal/ledger"
	"github.com/rendis/harvest/internal/logging"
	"github.com/rendis/harvest/internal/policy"
	"github.com/rendis/harvest/internal/scorer"
	"github.com/rendis/harvest/internal/status"
	"github.com/rendis/harvest/internal/worklist"
	"github.com/rendis/harvest/pkg/schema"
)

// DefaultMaxTransitions bounds total state transitions per run. It guards
// against an unbounded loop from a malformed worklist or routing bug.
const DefaultMaxTransitions = 50

// Config wires an Executor with its collaborators. Bus and Snapshot are
// required; everything else has a working default.
type Config struct {
	RunID    string
	Worklist worklist.Provider
	Scorer   scorer.Scorer
	Rule     *policy.Rule
	Vault    action.Executor
	Ledger   ledger.Ledger
	Bus      *bus.Bus
	Snapshot *status.Snapshot
	Logger   *slog.Logger

	// MaxTransitions overrides DefaultMaxTransitions when positive.
	MaxTransitions int

	// StopRequested is polled at the loop-check stage for cooperative
	// cancellation. An in-flight item is never interrupted.
	StopRequested func() bool
}

// RunState is the mutable state threaded through one pipeline execution.
type RunState struct {
	Worklist    []string
	Cursor      int
	CurrentItem string
	Score       float64
	Risk        float64
	Decision    schema.Decision

	itemsActed     int
	actionFailures int
	stopRequested  bool
}

// Result summarizes a finished run.
type Result struct {
	RunID          string
	ItemsTotal     int
	ItemsDone      int
	ItemsActed     int
	ActionFailures int
	Stopped        bool
	Err            error
}

type transitionFunc func(ctx context.Context, st *RunState) (schema.Stage, error)

// Executor advances worklist items through the pipeline stages, publishing
// one event and merging one snapshot patch per transition.
type Executor struct {
	runID          string
	provider       worklist.Provider
	scorer         scorer.Scorer
	rule           *policy.Rule
	vault          action.Executor
	ledger         ledger.Ledger
	bus            *bus.Bus
	snapshot       *status.Snapshot
	logger         *slog.Logger
	maxTransitions int
	stopRequested  func() bool

	table map[schema.Stage]transitionFunc
}

// New creates an Executor from the given configuration.
func New(cfg Config) (*Executor, error) {
	if cfg.Bus == nil || cfg.Snapshot == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "bus and snapshot are required")
	}
	if cfg.Worklist == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "worklist provider is required")
	}
	if cfg.Scorer == nil {
		cfg.Scorer = scorer.Deterministic{}
	}
	if cfg.Rule == nil {
		rule, err := policy.Compile(policy.DefaultRule)
		if err != nil {
			return nil, err
		}
		cfg.Rule = rule
	}
	if cfg.Vault == nil {
		cfg.Vault = &action.DryRun{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = DefaultMaxTransitions
	}
	if cfg.StopRequested == nil {
		cfg.StopRequested = func() bool { return false }
	}

	e := &Executor{
		runID:          cfg.RunID,
		provider:       cfg.Worklist,
		scorer:         cfg.Scorer,
		rule:           cfg.Rule,
		vault:          cfg.Vault,
		ledger:         cfg.Ledger,
		bus:            cfg.Bus,
		snapshot:       cfg.Snapshot,
		logger:         cfg.Logger,
		maxTransitions: cfg.MaxTransitions,
		stopRequested:  cfg.StopRequested,
	}
	e.table = map[schema.Stage]transitionFunc{
		schema.StageLoadWorklist:  e.loadWorklist,
		schema.StageEvaluate:      e.evaluate,
		schema.StageAssessRisk:    e.assessRisk,
		schema.StageDecide:        e.decide,
		schema.StagePerformAction: e.performAction,
		schema.StageLoopCheck:     e.loopCheck,
	}
	return e, nil
}

// Run drives the state machine to completion. Stage failures are caught
// here, at the outermost loop: the run is reported with an error event and
// a terminal status, and never resumed. Run does not return an error; the
// outcome lives in the Result.
func (e *Executor) Run(ctx context.Context) Result {
	ctx = logging.WithRunID(ctx, e.runID)
	st := &RunState{}
	stage := schema.StageLoadWorklist
	transitions := 0
	var runErr error

	for stage != schema.StageEnd {
		transitions++
		if transitions > e.maxTransitions {
			runErr = schema.NewErrorf(schema.ErrCodeIterationLimit,
				"transition ceiling of %d exceeded", e.maxTransitions)
			break
		}

		fn, ok := e.table[stage]
		if !ok {
			runErr = schema.NewErrorf(schema.ErrCodeExecution, "no transition for stage %q", stage).
				WithStage(stage)
			break
		}

		stageCtx := logging.WithStage(logging.WithItem(ctx, st.CurrentItem), string(stage))
		e.publish(schema.StepPayload{
			Stage:   stage,
			Item:    st.CurrentItem,
			Message: fmt.Sprintf("entering %s", stage),
		})

		next, err := fn(stageCtx, st)
		if err != nil {
			var herr *schema.HarvestError
			if h, ok := err.(*schema.HarvestError); ok {
				herr = h.WithStage(stage)
			} else {
				herr = schema.NewError(schema.ErrCodeExecution, err.Error()).
					WithStage(stage).WithCause(err)
			}
			runErr = herr
			break
		}
		stage = next
	}

	return e.finish(ctx, st, runErr)
}

// finish performs terminal cleanup: the error event (if any), the terminal
// complete event, and the terminal snapshot patch.
func (e *Executor) finish(ctx context.Context, st *RunState, runErr error) Result {
	result := Result{
		RunID:          e.runID,
		ItemsTotal:     len(st.Worklist),
		ItemsDone:      st.Cursor,
		ItemsActed:     st.itemsActed,
		ActionFailures: st.actionFailures,
		Stopped:        st.stopRequested,
		Err:            runErr,
	}

	terminal := schema.RunStatusCompleted
	message := fmt.Sprintf("run complete: %d evaluated, %d acted", st.Cursor, st.itemsActed)
	switch {
	case runErr != nil:
		terminal = schema.RunStatusFailed
		message = "run aborted"
		code := schema.ErrCodeExecution
		if herr, ok := runErr.(*schema.HarvestError); ok {
			code = herr.Code
		}
		e.logger.ErrorContext(ctx, "run failed", "error", runErr)
		e.publish(schema.ErrorPayload{Code: code, Message: runErr.Error()})
	case st.stopRequested:
		terminal = schema.RunStatusStopped
		message = fmt.Sprintf("run stopped: %d of %d evaluated", st.Cursor, len(st.Worklist))
		e.logger.InfoContext(ctx, "run stopped", "done", st.Cursor, "total", len(st.Worklist))
	default:
		e.logger.InfoContext(ctx, "run complete",
			"evaluated", st.Cursor, "acted", st.itemsActed, "action_failures", st.actionFailures)
	}

	e.publish(schema.CompletePayload{RunID: e.runID, Message: message})
	e.snapshot.Update(map[string]any{
		status.FieldStatus:      string(terminal),
		status.FieldCurrentTask: "",
		status.FieldCurrentItem: "",
	})
	return result
}

// --- Stage transitions ---

func (e *Executor) loadWorklist(ctx context.Context, st *RunState) (schema.Stage, error) {
	items, err := e.provider.Load(ctx)
	if err != nil {
		return "", err
	}
	st.Worklist = items
	st.Cursor = 0

	e.logger.InfoContext(ctx, "worklist loaded", "items", len(items))
	e.publish(schema.WorklistLoadedPayload{
		Items:   items,
		Message: fmt.Sprintf("worklist loaded with %d items", len(items)),
	})
	e.snapshot.Update(map[string]any{
		status.FieldCurrentTask: "scanning worklist",
		status.FieldProgress:    map[string]any{"done": 0, "total": len(items)},
	})
	return schema.StageEvaluate, nil
}

func (e *Executor) evaluate(ctx context.Context, st *RunState) (schema.Stage, error) {
	if st.Cursor >= len(st.Worklist) {
		return schema.StageEnd, nil
	}
	st.CurrentItem = st.Worklist[st.Cursor]
	st.Decision = schema.DecisionUndetermined

	e.snapshot.Update(map[string]any{
		status.FieldCurrentItem: st.CurrentItem,
		status.FieldCurrentTask: fmt.Sprintf("evaluating %s", st.CurrentItem),
	})

	score, err := e.scorer.Score(ctx, st.CurrentItem)
	if err != nil {
		// Degraded mode: a deterministic score derived from the item
		// identifier keeps reruns reproducible.
		score = scorer.Fallback(st.CurrentItem)
		e.logger.WarnContext(ctx, "scorer failed, using fallback",
			"item", st.CurrentItem, "fallback", score, "error", err)
	}
	st.Score = score
	st.Cursor++

	e.publish(schema.ScorePayload{
		Item:    st.CurrentItem,
		Score:   st.Score,
		Message: fmt.Sprintf("%s scored %.2f", st.CurrentItem, st.Score),
	})
	e.snapshot.Update(map[string]any{status.FieldLastScore: st.Score})
	return schema.StageAssessRisk, nil
}

func (e *Executor) assessRisk(ctx context.Context, st *RunState) (schema.Stage, error) {
	st.Risk = 10 - st.Score
	if st.Risk < 1 {
		st.Risk = 1
	}

	e.publish(schema.RiskPayload{
		Item:    st.CurrentItem,
		Risk:    st.Risk,
		Message: fmt.Sprintf("%s risk %.2f", st.CurrentItem, st.Risk),
	})
	e.snapshot.Update(map[string]any{status.FieldLastRisk: st.Risk})
	return schema.StageDecide, nil
}

func (e *Executor) decide(ctx context.Context, st *RunState) (schema.Stage, error) {
	decision, err := e.rule.Decide(st.CurrentItem, st.Score, st.Risk)
	if err != nil {
		return "", err
	}
	st.Decision = decision

	e.publish(schema.DecisionPayload{
		Item:     st.CurrentItem,
		Decision: st.Decision,
		Score:    st.Score,
		Risk:     st.Risk,
		Message:  fmt.Sprintf("%s decision: %s", st.CurrentItem, st.Decision),
	})
	e.snapshot.Update(map[string]any{status.FieldLastDecision: string(st.Decision)})

	if st.Decision == schema.DecisionAct {
		return schema.StagePerformAction, nil
	}
	return schema.StageLoopCheck, nil
}

func (e *Executor) performAction(ctx context.Context, st *RunState) (schema.Stage, error) {
	amount := action.AmountFor(st.Score)
	e.publish(schema.ActionSentPayload{
		Item:    st.CurrentItem,
		Amount:  amount,
		Message: fmt.Sprintf("acquiring %s for %.4f", st.CurrentItem, amount),
	})
	e.snapshot.Update(map[string]any{
		status.FieldCurrentTask: fmt.Sprintf("acquiring %s", st.CurrentItem),
	})

	receipt, err := e.vault.Perform(ctx, st.CurrentItem, st.Score)
	if err != nil {
		// Non-fatal: one item's action outcome never aborts the run.
		st.actionFailures++
		e.logger.WarnContext(ctx, "action failed", "item", st.CurrentItem, "error", err)
		e.publish(schema.ActionFailedPayload{
			Item:    st.CurrentItem,
			Error:   err.Error(),
			Message: fmt.Sprintf("action failed for %s", st.CurrentItem),
		})
		return schema.StageLoopCheck, nil
	}

	st.itemsActed++
	e.logger.InfoContext(ctx, "action confirmed",
		"item", st.CurrentItem, "receipt_id", receipt.ID, "amount", receipt.Amount)
	e.publish(schema.ActionConfirmedPayload{
		Item:      st.CurrentItem,
		ReceiptID: receipt.ID,
		Amount:    receipt.Amount,
		Message:   fmt.Sprintf("acquired %s", st.CurrentItem),
	})
	e.snapshot.Update(map[string]any{status.FieldLastActionRef: receipt.ID})

	if e.ledger != nil {
		if err := e.ledger.Record(ctx, ledger.Entry{
			RunID:     e.runID,
			Item:      st.CurrentItem,
			Amount:    receipt.Amount,
			ReceiptID: receipt.ID,
		}); err != nil {
			// The action already happened; a ledger write failure must not
			// abort the run or suppress remaining items.
			e.logger.ErrorContext(ctx, "ledger record failed", "item", st.CurrentItem, "error", err)
		}
	}
	return schema.StageLoopCheck, nil
}

func (e *Executor) loopCheck(ctx context.Context, st *RunState) (schema.Stage, error) {
	e.publish(schema.ProgressPayload{Done: st.Cursor, Total: len(st.Worklist)})
	e.snapshot.Update(map[string]any{
		status.FieldProgress: map[string]any{"done": st.Cursor, "total": len(st.Worklist)},
	})

	if e.stopRequested() || ctx.Err() != nil {
		st.stopRequested = true
		return schema.StageEnd, nil
	}
	if st.Cursor < len(st.Worklist) {
		return schema.StageEvaluate, nil
	}
	return schema.StageEnd, nil
}

func (e *Executor) publish(p schema.Payload) {
	e.bus.Publish(schema.NewEvent(p))
}
