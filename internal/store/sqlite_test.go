package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/deskpilot/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func summary(id string, status models.ResultStatus, mode models.Intent, started time.Time) models.ExecutionSummary {
	return models.ExecutionSummary{
		ExecutionID: id,
		Command:     "click the Submit button",
		Mode:        mode,
		Status:      status,
		Success:     status == models.ResultStatusCompleted,
		PathUsed:    "fast",
		Duration:    1500 * time.Millisecond,
		StartedAt:   started,
	}
}

func TestExecutions_RecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)

	sum := summary("01EXEC", models.ResultStatusFailed, models.IntentGUIInteraction, started)
	sum.Errors = []string{"perception failed: no display"}
	require.NoError(t, s.RecordExecution(ctx, sum))

	got, err := s.GetExecution(ctx, "01EXEC")
	require.NoError(t, err)
	assert.Equal(t, "click the Submit button", got.Command)
	assert.Equal(t, models.IntentGUIInteraction, got.Mode)
	assert.Equal(t, models.ResultStatusFailed, got.Status)
	assert.False(t, got.Success)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, []string{"perception failed: no display"}, got.Errors)
	assert.True(t, started.Equal(got.StartedAt))

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorContains(t, err, "execution not found")
}

func TestExecutions_RecordReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordExecution(ctx, summary("01EXEC", models.ResultStatusFailed, models.IntentGUIInteraction, now)))
	require.NoError(t, s.RecordExecution(ctx, summary("01EXEC", models.ResultStatusCompleted, models.IntentGUIInteraction, now)))

	list, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ResultStatusCompleted, list[0].Status)
	assert.True(t, list[0].Success)
}

func TestExecutions_RecordRequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordExecution(context.Background(), models.ExecutionSummary{})
	assert.ErrorContains(t, err, "missing execution id")
}

func TestExecutions_ListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC()

	require.NoError(t, s.RecordExecution(ctx, summary("A", models.ResultStatusCompleted, models.IntentGUIInteraction, base)))
	require.NoError(t, s.RecordExecution(ctx, summary("B", models.ResultStatusFailed, models.IntentGUIInteraction, base.Add(time.Minute))))
	require.NoError(t, s.RecordExecution(ctx, summary("C", models.ResultStatusCompleted, models.IntentConversational, base.Add(2*time.Minute))))
	require.NoError(t, s.RecordExecution(ctx, summary("D", models.ResultStatusWaitingForUser, models.IntentDeferredAction, base.Add(3*time.Minute))))

	all, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "D", all[0].ExecutionID, "newest first")
	assert.Equal(t, "A", all[3].ExecutionID)

	completed, err := s.ListExecutions(ctx, ExecutionFilter{Status: models.ResultStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	gui, err := s.ListExecutions(ctx, ExecutionFilter{Mode: models.IntentGUIInteraction, Status: models.ResultStatusFailed})
	require.NoError(t, err)
	require.Len(t, gui, 1)
	assert.Equal(t, "B", gui[0].ExecutionID)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "C", limited[1].ExecutionID)
}

func TestTransitions_RecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTransition(ctx, models.TransitionRecord{
		Timestamp:      time.Now(),
		TransitionType: models.TransitionDeferredArm,
		ExecutionID:    "E1",
		Context:        map[string]any{"phase": "waiting_for_click"},
	}))
	require.NoError(t, s.RecordTransition(ctx, models.TransitionRecord{
		TransitionType: models.TransitionInterrupted,
		ExecutionID:    "E1",
		Context:        map[string]any{"superseded_by": "E2"},
	}))
	require.NoError(t, s.RecordTransition(ctx, models.TransitionRecord{
		TransitionType: models.TransitionProcessing,
		ExecutionID:    "E2",
	}))

	e1, err := s.ListTransitions(ctx, "E1", 0)
	require.NoError(t, err)
	require.Len(t, e1, 2)
	assert.Equal(t, models.TransitionDeferredArm, e1[0].TransitionType, "oldest first")
	assert.Equal(t, "waiting_for_click", e1[0].Context["phase"])
	assert.Equal(t, "E2", e1[1].Context["superseded_by"])
	assert.False(t, e1[1].Timestamp.IsZero())

	recent, err := s.ListTransitions(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.TransitionInterrupted, recent[0].TransitionType)
	assert.Equal(t, models.TransitionProcessing, recent[1].TransitionType)
	assert.Nil(t, recent[1].Context)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour).UTC()

	require.NoError(t, s.RecordExecution(ctx, summary("OLD", models.ResultStatusCompleted, models.IntentGUIInteraction, old)))
	require.NoError(t, s.RecordExecution(ctx, summary("NEW", models.ResultStatusCompleted, models.IntentGUIInteraction, time.Now().UTC())))
	require.NoError(t, s.RecordTransition(ctx, models.TransitionRecord{Timestamp: old, TransitionType: models.TransitionReady, ExecutionID: "OLD"}))

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "NEW", list[0].ExecutionID)
}
