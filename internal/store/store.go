package store

import (
	"context"
	"time"

	"github.com/joescharf/deskpilot/internal/models"
)

// ExecutionFilter specifies filters for listing journaled executions.
type ExecutionFilter struct {
	Status models.ResultStatus
	Mode   models.Intent
	Limit  int
}

// Store is the execution journal. It is an append-mostly record for
// diagnostics; the orchestrator's in-memory state stays authoritative.
type Store interface {
	// Executions
	RecordExecution(ctx context.Context, sum models.ExecutionSummary) error
	GetExecution(ctx context.Context, executionID string) (*models.ExecutionSummary, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*models.ExecutionSummary, error)

	// Transitions
	RecordTransition(ctx context.Context, rec models.TransitionRecord) error
	ListTransitions(ctx context.Context, executionID string, limit int) ([]*models.TransitionRecord, error)

	// Maintenance
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
