package models

import "time"

// ExecutionStatus represents the lifecycle state of a single command execution.
type ExecutionStatus string

const (
	ExecutionStatusPending        ExecutionStatus = "pending"
	ExecutionStatusValidating     ExecutionStatus = "validating"
	ExecutionStatusProcessing     ExecutionStatus = "processing"
	ExecutionStatusWaitingForUser ExecutionStatus = "waiting_for_user"
	ExecutionStatusCompleted      ExecutionStatus = "completed"
	ExecutionStatusFailed         ExecutionStatus = "failed"
	ExecutionStatusTimeout        ExecutionStatus = "timeout"
)

// Stage names appended to ExecutionContext.StepsCompleted.
const (
	StepValidation     = "validation"
	StepClassification = "classification"
	StepFastPath       = "fast_path"
	StepPerception     = "perception"
	StepReasoning      = "reasoning"
	StepAction         = "action"
	StepFeedback       = "feedback"
	StepGeneration     = "generation"
	StepArmed          = "listener_armed"
	StepConversation   = "conversation"
	StepAnswer         = "answer"
)

// ValidationResult records the outcome of command normalization.
type ValidationResult struct {
	Valid       bool   `json:"valid"`
	Normalized  string `json:"normalized"`
	CommandType string `json:"command_type"`
	Error       string `json:"error,omitempty"`
}

// ExecutionContext is the bookkeeping record for one command invocation.
// It is owned by the goroutine that created it and is never shared.
type ExecutionContext struct {
	ExecutionID      string
	Command          string
	StartTime        time.Time
	Status           ExecutionStatus
	StepsCompleted   []string
	Errors           []string
	Warnings         []string
	ValidationResult *ValidationResult
	IntentResult     *IntentResult
	Metadata         map[string]any
}

// NewExecutionContext creates a pending context for the given command.
func NewExecutionContext(id, command string) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: id,
		Command:     command,
		StartTime:   time.Now(),
		Status:      ExecutionStatusPending,
		Metadata:    make(map[string]any),
	}
}

// CompleteStep records a finished stage.
func (c *ExecutionContext) CompleteStep(step string) {
	c.StepsCompleted = append(c.StepsCompleted, step)
}

// AddError records a stage failure.
func (c *ExecutionContext) AddError(format string, err error) {
	if err == nil {
		c.Errors = append(c.Errors, format)
		return
	}
	c.Errors = append(c.Errors, format+": "+err.Error())
}

// AddWarning records a non-fatal problem.
func (c *ExecutionContext) AddWarning(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// HasStep reports whether the named stage completed.
func (c *ExecutionContext) HasStep(step string) bool {
	for _, s := range c.StepsCompleted {
		if s == step {
			return true
		}
	}
	return false
}

// Elapsed returns the time since the execution started.
func (c *ExecutionContext) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}
