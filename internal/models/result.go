package models

// ResultStatus is the top-level status reported to callers of ExecuteCommand.
type ResultStatus string

const (
	ResultStatusCompleted      ResultStatus = "completed"
	ResultStatusFailed         ResultStatus = "failed"
	ResultStatusWaitingForUser ResultStatus = "waiting_for_user_action"
	ResultStatusRejected       ResultStatus = "rejected"
)

// Result is returned for every command, successful or not.
type Result struct {
	ExecutionID    string         `json:"execution_id"`
	Status         ResultStatus   `json:"status"`
	Success        bool           `json:"success"`
	Mode           Intent         `json:"mode"`
	Duration       float64        `json:"duration"`
	PathUsed       string         `json:"path_used,omitempty"`
	Response       string         `json:"response,omitempty"`
	ContentPreview string         `json:"content_preview,omitempty"`
	Instructions   string         `json:"instructions,omitempty"`
	Error          string         `json:"error,omitempty"`
	Errors         []string       `json:"errors,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	StepsCompleted []string       `json:"steps_completed,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
