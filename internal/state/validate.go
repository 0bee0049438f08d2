package state

import (
	"time"

	"github.com/joescharf/deskpilot/internal/models"
)

// Snapshot is a lock-free copy of the state for diagnostics.
type Snapshot struct {
	Mode                 models.SystemMode `json:"mode"`
	WaitingForUserAction bool              `json:"waiting_for_user_action"`
	HasPendingPayload    bool              `json:"has_pending_payload"`
	PayloadPreview       string            `json:"payload_preview,omitempty"`
	DeferredActionType   string            `json:"deferred_action_type,omitempty"`
	DeferredExecuting    bool              `json:"deferred_executing"`
	DeferredStart        time.Time         `json:"deferred_start,omitempty"`
	DeferredTimeout      time.Time         `json:"deferred_timeout,omitempty"`
	HasMouseListener     bool              `json:"has_mouse_listener"`
	MouseListenerActive  bool              `json:"mouse_listener_active"`
	CurrentExecutionID   string            `json:"current_execution_id,omitempty"`
	ModuleAvailability   map[string]bool   `json:"module_availability"`
	ConversationTurns    int               `json:"conversation_turns"`
	Transitions          int               `json:"transitions"`
}

const previewLen = 120

// Snapshot copies the current state.
func (m *Manager) Snapshot() Snapshot {
	var snap Snapshot
	m.Read(func(s SystemState) {
		snap = Snapshot{
			Mode:                 s.Mode,
			WaitingForUserAction: s.WaitingForUserAction,
			HasPendingPayload:    s.PendingPayload != nil,
			DeferredActionType:   s.DeferredActionType,
			DeferredExecuting:    s.DeferredExecuting,
			DeferredStart:        s.DeferredStart,
			DeferredTimeout:      s.DeferredTimeout,
			HasMouseListener:     s.MouseListener != nil,
			MouseListenerActive:  s.MouseListenerActive,
			CurrentExecutionID:   s.CurrentExecutionID,
		}
		if s.PendingPayload != nil {
			snap.PayloadPreview = Preview(*s.PendingPayload, previewLen)
		}
	})
	snap.ModuleAvailability = m.Availability()
	snap.ConversationTurns = len(m.Conversation())
	snap.Transitions = len(m.Transitions())
	return snap
}

// Validation is the result of checking the state invariants.
type Validation struct {
	Consistent bool     `json:"consistent"`
	Violations []string `json:"violations,omitempty"`
	Repaired   bool     `json:"repaired"`
}

// Validate checks the state invariants without modifying anything.
func (m *Manager) Validate() Validation {
	m.validationMu.Lock()
	defer m.validationMu.Unlock()

	var v []string
	m.Read(func(s SystemState) { v = violations(s) })
	return Validation{Consistent: len(v) == 0, Violations: v}
}

// Repair validates and, if any invariant is broken, forces the deferred
// fields back to their idle defaults.
func (m *Manager) Repair() Validation {
	m.validationMu.Lock()
	defer m.validationMu.Unlock()

	m.fieldsMu.Lock()
	v := violations(m.st)
	execID := m.st.CurrentExecutionID
	if len(v) > 0 {
		m.st.ResetDeferred()
	}
	m.fieldsMu.Unlock()

	if len(v) == 0 {
		return Validation{Consistent: true}
	}
	m.RecordTransition(models.TransitionRepaired, execID, map[string]any{"violations": v})
	return Validation{Consistent: false, Violations: v, Repaired: true}
}

func violations(s SystemState) []string {
	var v []string
	if s.WaitingForUserAction != (s.Mode == models.ModeWaitingForUser) {
		v = append(v, "waiting flag does not match system mode")
	}
	if s.WaitingForUserAction && s.PendingPayload == nil {
		v = append(v, "waiting for user action without a pending payload")
	}
	if s.WaitingForUserAction && s.DeferredActionType == "" {
		v = append(v, "waiting for user action without a deferred action type")
	}
	if s.MouseListenerActive && s.MouseListener == nil {
		v = append(v, "mouse listener marked active without a listener")
	}
	return v
}

// Preview truncates s to at most n runes, appending an ellipsis when cut.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
