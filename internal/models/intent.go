package models

// Intent is the classified purpose of a command.
type Intent string

const (
	IntentGUIInteraction    Intent = "gui_interaction"
	IntentConversational    Intent = "conversational_chat"
	IntentDeferredAction    Intent = "deferred_action"
	IntentQuestionAnswering Intent = "question_answering"
)

// Valid reports whether the intent belongs to the closed set of known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentGUIInteraction, IntentConversational, IntentDeferredAction, IntentQuestionAnswering:
		return true
	}
	return false
}

// IntentResult is the output of intent classification.
type IntentResult struct {
	Intent     Intent         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Parameters map[string]any `json:"parameters,omitempty"`
	IsFallback bool           `json:"is_fallback"`
}

// StringParam returns a string parameter or def when absent.
func (r *IntentResult) StringParam(key, def string) string {
	if r == nil || r.Parameters == nil {
		return def
	}
	if v, ok := r.Parameters[key].(string); ok && v != "" {
		return v
	}
	return def
}
