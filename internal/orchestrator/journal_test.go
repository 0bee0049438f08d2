package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/models"
)

type memJournal struct {
	mu          sync.Mutex
	executions  []models.ExecutionSummary
	transitions []models.TransitionRecord
	err         error
}

func (j *memJournal) RecordExecution(_ context.Context, sum models.ExecutionSummary) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.executions = append(j.executions, sum)
	return j.err
}

func (j *memJournal) RecordTransition(_ context.Context, rec models.TransitionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transitions = append(j.transitions, rec)
	return j.err
}

func newJournaled(j Journal) *Orchestrator {
	return New(DefaultConfig(), Collaborators{
		Reasoner:      newFakeReasoner(),
		Vision:        &fakeVision{desc: &desktop.ScreenDescription{}},
		Automation:    &fakeAutomation{},
		Accessibility: &fakeAccessibility{ready: true, elements: map[string]desktop.Element{"Submit button": {Label: "Submit"}}},
		Feedback:      &fakeFeedback{},
		Listener:      desktop.NewChannelListener(),
	}, WithJournal(j))
}

func TestJournal_RecordsExecutionsAndTransitions(t *testing.T) {
	defer goleak.VerifyNone(t)

	j := &memJournal{}
	o := newJournaled(j)
	res := o.ExecuteCommand(context.Background(), "click the Submit button")
	require.Equal(t, models.ResultStatusCompleted, res.Status)
	require.NoError(t, o.Close())

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.executions, 1)
	assert.Equal(t, res.ExecutionID, j.executions[0].ExecutionID)
	assert.Equal(t, PathFast, j.executions[0].PathUsed)

	var kinds []string
	for _, tr := range j.transitions {
		kinds = append(kinds, tr.TransitionType)
	}
	assert.Equal(t, []string{models.TransitionProcessing, models.TransitionReady}, kinds)
}

func TestJournal_FailuresDoNotAffectCommands(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := newJournaled(&memJournal{err: errors.New("disk full")})
	res := o.ExecuteCommand(context.Background(), "click the Submit button")
	assert.Equal(t, models.ResultStatusCompleted, res.Status)
	require.NoError(t, o.Close())

	// Entries after close are dropped.
	o.journal.execution(models.ExecutionSummary{ExecutionID: "late"})
}
