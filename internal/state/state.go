// Package state holds the process-wide orchestrator state and the locks that
// guard it.
//
// Lock discipline:
//   - the execution lock serializes heavy command stages;
//   - the deferred-action lock serializes every transition of the deferred
//     fields and Mode. It is never held while acquiring the execution lock;
//   - the conversation lock guards history appends only;
//   - the validation lock guards Validate and Repair and never waits on the
//     workflow locks.
//
// Readers (Snapshot, Validate) only take the short field mutex.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/joescharf/deskpilot/internal/models"
)

// ListenerHandle is the part of a mouse listener the state needs to own it.
type ListenerHandle interface {
	Stop()
}

// SystemState is the set of fields shared between concurrent commands, the
// click consumer, and the timeout watchdog.
type SystemState struct {
	Mode                 models.SystemMode
	WaitingForUserAction bool
	PendingPayload       *string
	DeferredActionType   string
	DeferredExecuting    bool
	DeferredStart        time.Time
	DeferredTimeout      time.Time
	MouseListener        ListenerHandle
	MouseListenerActive  bool
	CurrentExecutionID   string

	// Watchdog fires the deferred-action timeout.
	Watchdog *time.Timer
	// StopWaiting ends the click consumer goroutine.
	StopWaiting context.CancelFunc
}

// ResetDeferred clears every deferred-action field, stops the listener,
// watchdog and click consumer, and returns Mode to ready.
func (s *SystemState) ResetDeferred() {
	if s.Watchdog != nil {
		s.Watchdog.Stop()
	}
	if s.StopWaiting != nil {
		s.StopWaiting()
	}
	if s.MouseListener != nil {
		s.MouseListener.Stop()
	}

	s.WaitingForUserAction = false
	s.PendingPayload = nil
	s.DeferredActionType = ""
	s.DeferredExecuting = false
	s.DeferredStart = time.Time{}
	s.DeferredTimeout = time.Time{}
	s.MouseListener = nil
	s.MouseListenerActive = false
	s.CurrentExecutionID = ""
	s.Watchdog = nil
	s.StopWaiting = nil
	s.Mode = models.ModeReady
}

// Idle reports whether no deferred action is outstanding.
func (s *SystemState) Idle() bool {
	return !s.WaitingForUserAction && s.DeferredStart.IsZero() && s.DeferredTimeout.IsZero()
}

// Manager owns a SystemState and its locks.
type Manager struct {
	execLock     *TimedLock
	deferredLock *TimedLock

	fieldsMu sync.RWMutex
	st       SystemState

	convMu       sync.Mutex
	conversation *Ring[models.ConversationTurn]

	validationMu sync.Mutex

	historyMu   sync.Mutex
	transitions *Ring[models.TransitionRecord]
	executions  *Ring[models.ExecutionSummary]
	onTransit   func(models.TransitionRecord)

	availMu      sync.RWMutex
	availability map[string]bool
}

// NewManager creates a Manager whose histories hold at most maxHistory entries.
func NewManager(maxHistory int) *Manager {
	return &Manager{
		execLock:     NewTimedLock("execution"),
		deferredLock: NewTimedLock("deferred_action"),
		st:           SystemState{Mode: models.ModeReady},
		conversation: NewRing[models.ConversationTurn](maxHistory),
		transitions:  NewRing[models.TransitionRecord](maxHistory),
		executions:   NewRing[models.ExecutionSummary](maxHistory),
		availability: make(map[string]bool),
	}
}

// ExecutionLock returns the lock serializing heavy command stages.
func (m *Manager) ExecutionLock() *TimedLock { return m.execLock }

// DeferredLock returns the lock serializing deferred-action transitions.
func (m *Manager) DeferredLock() *TimedLock { return m.deferredLock }

// OnTransition registers a hook called after each recorded transition.
// It must not block.
func (m *Manager) OnTransition(fn func(models.TransitionRecord)) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.onTransit = fn
}

// WithDeferred runs fn while holding the deferred-action lock and the field
// mutex. fn must not block.
func (m *Manager) WithDeferred(ctx context.Context, timeout time.Duration, fn func(s *SystemState)) error {
	if err := m.deferredLock.Acquire(ctx, timeout); err != nil {
		return err
	}
	defer m.deferredLock.Release()

	m.fieldsMu.Lock()
	defer m.fieldsMu.Unlock()
	fn(&m.st)
	return nil
}

// Read runs fn with a read-only view of the state.
func (m *Manager) Read(fn func(s SystemState)) {
	m.fieldsMu.RLock()
	defer m.fieldsMu.RUnlock()
	fn(m.st)
}

// RecordTransition appends to the transition history.
func (m *Manager) RecordTransition(transitionType, executionID string, ctx map[string]any) {
	rec := models.TransitionRecord{
		Timestamp:      time.Now(),
		TransitionType: transitionType,
		ExecutionID:    executionID,
		Context:        ctx,
	}

	m.historyMu.Lock()
	m.transitions.Push(rec)
	hook := m.onTransit
	m.historyMu.Unlock()

	if hook != nil {
		hook(rec)
	}
}

// Transitions returns the transition history, oldest first.
func (m *Manager) Transitions() []models.TransitionRecord {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	return m.transitions.Items()
}

// RecordExecution keeps a bounded summary of a finished command.
func (m *Manager) RecordExecution(sum models.ExecutionSummary) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.executions.Push(sum)
}

// RecentExecutions returns up to n of the newest execution summaries.
func (m *Manager) RecentExecutions(n int) []models.ExecutionSummary {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	return m.executions.Last(n)
}

// AppendConversation adds a turn under the conversation lock.
func (m *Manager) AppendConversation(user, assistant string) {
	m.convMu.Lock()
	defer m.convMu.Unlock()
	m.conversation.Push(models.ConversationTurn{User: user, Assistant: assistant})
}

// Conversation returns the retained turns, oldest first.
func (m *Manager) Conversation() []models.ConversationTurn {
	m.convMu.Lock()
	defer m.convMu.Unlock()
	return m.conversation.Items()
}

// SetAvailable marks a module as available or not.
func (m *Manager) SetAvailable(module string, ok bool) {
	m.availMu.Lock()
	defer m.availMu.Unlock()
	m.availability[module] = ok
}

// Available reports a module's availability.
func (m *Manager) Available(module string) bool {
	m.availMu.RLock()
	defer m.availMu.RUnlock()
	return m.availability[module]
}

// Availability returns a copy of the module availability map.
func (m *Manager) Availability() map[string]bool {
	m.availMu.RLock()
	defer m.availMu.RUnlock()
	out := make(map[string]bool, len(m.availability))
	for k, v := range m.availability {
		out[k] = v
	}
	return out
}
