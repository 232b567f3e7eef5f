package schema

// RunStatus represents the lifecycle state of the agent.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusFailed    RunStatus = "failed"
)

// Startable reports whether a new run may begin from this status.
// A second start during an active run is rejected, not queued.
func (s RunStatus) Startable() bool {
	return s != RunStatusRunning
}

// Stage identifies a pipeline state. One bus event and one snapshot patch
// are produced per stage transition.
type Stage string

const (
	StageLoadWorklist  Stage = "load-worklist"
	StageEvaluate      Stage = "evaluate"
	StageAssessRisk    Stage = "assess-risk"
	StageDecide        Stage = "decide"
	StagePerformAction Stage = "perform-action"
	StageLoopCheck     Stage = "loop-check"
	StageEnd           Stage = "end"
)

// Decision is the outcome of the decide stage for one item.
type Decision string

const (
	DecisionUndetermined Decision = "undetermined"
	DecisionAct          Decision = "act"
	DecisionSkip         Decision = "skip"
)
