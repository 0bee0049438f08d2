package models

import "time"

// SystemMode is the process-wide coarse state.
type SystemMode string

const (
	ModeReady          SystemMode = "ready"
	ModeProcessing     SystemMode = "processing"
	ModeWaitingForUser SystemMode = "waiting_for_user"
)

// DeferredPhase names the states of the deferred action workflow.
type DeferredPhase string

const (
	PhaseIdle            DeferredPhase = "idle"
	PhaseGenerating      DeferredPhase = "generating"
	PhaseWaitingForClick DeferredPhase = "waiting_for_click"
	PhaseExecuting       DeferredPhase = "executing"
	PhaseCompleted       DeferredPhase = "completed"
	PhaseFailed          DeferredPhase = "failed"
	PhaseTimedOut        DeferredPhase = "timed_out"
	PhaseInterrupted     DeferredPhase = "interrupted"
)

// Transition types recorded in the transition history.
const (
	TransitionProcessing   = "processing"
	TransitionReady        = "ready"
	TransitionDeferredGen  = "deferred_generating"
	TransitionDeferredArm  = "deferred_armed"
	TransitionDeferredExec = "deferred_executing"
	TransitionDeferredDone = "deferred_completed"
	TransitionDeferredFail = "deferred_failed"
	TransitionTimedOut     = "deferred_timed_out"
	TransitionInterrupted  = "deferred_interrupted"
	TransitionReset        = "deferred_reset"
	TransitionRepaired     = "state_repaired"
	TransitionRecovery     = "module_recovery"
)

// TransitionRecord is a diagnostic entry in the state transition history.
type TransitionRecord struct {
	Timestamp      time.Time      `json:"timestamp"`
	TransitionType string         `json:"transition_type"`
	ExecutionID    string         `json:"execution_id,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// ConversationTurn is one exchange retained for conversational context.
type ConversationTurn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ExecutionSummary is the bounded record kept after a command finishes.
type ExecutionSummary struct {
	ExecutionID string        `json:"execution_id"`
	Command     string        `json:"command"`
	Mode        Intent        `json:"mode"`
	Status      ResultStatus  `json:"status"`
	Success     bool          `json:"success"`
	PathUsed    string        `json:"path_used,omitempty"`
	Duration    time.Duration `json:"duration"`
	Errors      []string      `json:"errors,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
}
