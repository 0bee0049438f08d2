package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/deskpilot/internal/models"
)

type fakeListener struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeListener) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeListener) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func armed(s *SystemState, l ListenerHandle) {
	payload := "print('hi')"
	s.PendingPayload = &payload
	s.DeferredActionType = "type"
	s.WaitingForUserAction = true
	s.Mode = models.ModeWaitingForUser
	s.DeferredStart = time.Now()
	s.DeferredTimeout = time.Now().Add(time.Minute)
	s.MouseListener = l
	s.MouseListenerActive = true
	s.CurrentExecutionID = "exec-1"
}

func TestNewManager_Idle(t *testing.T) {
	m := NewManager(10)
	snap := m.Snapshot()
	assert.Equal(t, models.ModeReady, snap.Mode)
	assert.False(t, snap.WaitingForUserAction)
	assert.True(t, m.Validate().Consistent)
	assert.False(t, m.ExecutionLock().Locked())
	assert.False(t, m.DeferredLock().Locked())
}

func TestResetDeferred_ClearsEverything(t *testing.T) {
	m := NewManager(10)
	l := &fakeListener{}
	cancelled := false
	timer := time.AfterFunc(time.Hour, func() {})

	ctx := context.Background()
	require.NoError(t, m.WithDeferred(ctx, time.Second, func(s *SystemState) {
		armed(s, l)
		s.Watchdog = timer
		s.StopWaiting = func() { cancelled = true }
	}))
	assert.True(t, m.Validate().Consistent)

	require.NoError(t, m.WithDeferred(ctx, time.Second, func(s *SystemState) { s.ResetDeferred() }))

	m.Read(func(s SystemState) {
		assert.False(t, s.WaitingForUserAction)
		assert.Nil(t, s.PendingPayload)
		assert.Empty(t, s.DeferredActionType)
		assert.Nil(t, s.MouseListener)
		assert.False(t, s.MouseListenerActive)
		assert.False(t, s.DeferredExecuting)
		assert.Empty(t, s.CurrentExecutionID)
		assert.Equal(t, models.ModeReady, s.Mode)
		assert.True(t, s.Idle())
	})
	assert.Equal(t, 1, l.stopCount())
	assert.True(t, cancelled)
	assert.False(t, timer.Stop(), "watchdog should already be stopped")
}

func TestWithDeferred_Timeout(t *testing.T) {
	m := NewManager(10)
	require.True(t, m.DeferredLock().TryAcquire())
	defer m.DeferredLock().Release()

	called := false
	err := m.WithDeferred(context.Background(), 20*time.Millisecond, func(*SystemState) { called = true })
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)
}

func TestValidate_DetectsViolations(t *testing.T) {
	m := NewManager(10)
	require.NoError(t, m.WithDeferred(context.Background(), time.Second, func(s *SystemState) {
		s.WaitingForUserAction = true
		s.MouseListenerActive = true
	}))

	v := m.Validate()
	assert.False(t, v.Consistent)
	assert.Len(t, v.Violations, 4)

	// Validate is read-only.
	assert.True(t, m.Snapshot().WaitingForUserAction)
}

func TestRepair(t *testing.T) {
	m := NewManager(10)
	require.NoError(t, m.WithDeferred(context.Background(), time.Second, func(s *SystemState) {
		s.Mode = models.ModeWaitingForUser
	}))

	v := m.Repair()
	assert.True(t, v.Repaired)
	assert.NotEmpty(t, v.Violations)
	assert.True(t, m.Validate().Consistent)
	assert.Equal(t, models.ModeReady, m.Snapshot().Mode)

	trans := m.Transitions()
	require.NotEmpty(t, trans)
	assert.Equal(t, models.TransitionRepaired, trans[len(trans)-1].TransitionType)

	again := m.Repair()
	assert.True(t, again.Consistent)
	assert.False(t, again.Repaired)
}

func TestValidate_DoesNotWaitForDeferredLock(t *testing.T) {
	m := NewManager(10)
	require.True(t, m.DeferredLock().TryAcquire())
	defer m.DeferredLock().Release()

	done := make(chan struct{})
	go func() {
		m.Validate()
		m.Snapshot()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("validation blocked on the deferred-action lock")
	}
}

func TestConversationHistory_Bounded(t *testing.T) {
	m := NewManager(3)
	for _, u := range []string{"a", "b", "c", "d"} {
		m.AppendConversation(u, u+"!")
	}
	turns := m.Conversation()
	require.Len(t, turns, 3)
	assert.Equal(t, "b", turns[0].User)
	assert.Equal(t, "d!", turns[2].Assistant)
}

func TestTransitions_BoundedWithHook(t *testing.T) {
	m := NewManager(2)
	var seen []string
	m.OnTransition(func(r models.TransitionRecord) { seen = append(seen, r.TransitionType) })

	m.RecordTransition("one", "", nil)
	m.RecordTransition("two", "", nil)
	m.RecordTransition("three", "x", map[string]any{"k": 1})

	trans := m.Transitions()
	require.Len(t, trans, 2)
	assert.Equal(t, "two", trans[0].TransitionType)
	assert.Equal(t, "x", trans[1].ExecutionID)
	assert.Equal(t, []string{"one", "two", "three"}, seen)
}

func TestRecentExecutions(t *testing.T) {
	m := NewManager(5)
	for _, id := range []string{"1", "2", "3"} {
		m.RecordExecution(models.ExecutionSummary{ExecutionID: id})
	}
	recent := m.RecentExecutions(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].ExecutionID)
	assert.Len(t, m.RecentExecutions(-1), 3)
}

func TestAvailability(t *testing.T) {
	m := NewManager(5)
	m.SetAvailable("vision", true)
	m.SetAvailable("audio", false)
	assert.True(t, m.Available("vision"))
	assert.False(t, m.Available("audio"))
	assert.False(t, m.Available("unknown"))

	av := m.Availability()
	av["vision"] = false
	assert.True(t, m.Available("vision"), "Availability returns a copy")
}

func TestSnapshot_PayloadPreview(t *testing.T) {
	m := NewManager(5)
	require.NoError(t, m.WithDeferred(context.Background(), time.Second, func(s *SystemState) {
		armed(s, &fakeListener{})
	}))
	snap := m.Snapshot()
	assert.True(t, snap.HasPendingPayload)
	assert.Equal(t, "print('hi')", snap.PayloadPreview)
	assert.Equal(t, "exec-1", snap.CurrentExecutionID)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview("abc", 5))
	assert.Equal(t, "ab...", Preview("abcdef", 2))
}
