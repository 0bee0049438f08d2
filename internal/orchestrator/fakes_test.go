package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/reply"
)

func classification(in models.Intent, confidence float64, params map[string]any) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"intent":     in,
		"confidence": confidence,
		"parameters": params,
	})
	return data
}

type fakeReasoner struct {
	mu          sync.Mutex
	intents     map[string]json.RawMessage
	content     json.RawMessage
	contentErr  error
	chat        json.RawMessage
	chatErr     error
	plan        *desktop.Plan
	planErr     error
	chatPrompts []string
	generated   int
}

func newFakeReasoner() *fakeReasoner {
	return &fakeReasoner{
		intents: make(map[string]json.RawMessage),
		chat:    reply.Flat("Hello there."),
		content: reply.Flat("Dear team, thanks for the update."),
	}
}

func (r *fakeReasoner) on(text string, in models.Intent, params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[text] = classification(in, 0.95, params)
}

func (r *fakeReasoner) ClassifyIntent(_ context.Context, text string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if raw, ok := r.intents[text]; ok {
		return raw, nil
	}
	return classification(models.IntentGUIInteraction, 0.9, nil), nil
}

func (r *fakeReasoner) GenerateContent(context.Context, string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generated++
	return r.content, r.contentErr
}

func (r *fakeReasoner) Chat(_ context.Context, prompt string) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatPrompts = append(r.chatPrompts, prompt)
	return r.chat, r.chatErr
}

func (r *fakeReasoner) GetActionPlan(context.Context, string, *desktop.ScreenDescription) (*desktop.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plan, r.planErr
}

func (r *fakeReasoner) generateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generated
}

type fakeAccessibility struct {
	mu          sync.Mutex
	ready       bool
	elements    map[string]desktop.Element
	appearAfter int
	lookups     int
	err         error
}

func (a *fakeAccessibility) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

func (a *fakeAccessibility) FindElement(_ context.Context, _, label, _ string) (*desktop.Element, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lookups++
	if a.err != nil {
		return nil, a.err
	}
	if a.lookups <= a.appearAfter {
		return nil, nil
	}
	el, ok := a.elements[label]
	if !ok {
		return nil, nil
	}
	return &el, nil
}

type fakeAutomation struct {
	mu      sync.Mutex
	actions []desktop.Action
	fail    map[desktop.ActionKind]string
	delay   time.Duration
}

func (a *fakeAutomation) Execute(ctx context.Context, action desktop.Action) desktop.ActionResult {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return desktop.ActionResult{Error: ctx.Err().Error()}
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	if msg, ok := a.fail[action.Kind]; ok {
		return desktop.ActionResult{Error: msg}
	}
	return desktop.ActionResult{Success: true}
}

func (a *fakeAutomation) recorded() []desktop.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]desktop.Action(nil), a.actions...)
}

func (a *fakeAutomation) count(kind desktop.ActionKind) int {
	n := 0
	for _, act := range a.recorded() {
		if act.Kind == kind {
			n++
		}
	}
	return n
}

type fakeVision struct {
	mu    sync.Mutex
	desc  *desktop.ScreenDescription
	err   error
	kinds []string
}

func (v *fakeVision) DescribeScreen(_ context.Context, analysisType string) (*desktop.ScreenDescription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.kinds = append(v.kinds, analysisType)
	return v.desc, v.err
}

type fakeFeedback struct {
	mu     sync.Mutex
	spoken []string
	cues   []string
}

func (f *fakeFeedback) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return nil
}

func (f *fakeFeedback) Play(_ context.Context, cue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cues = append(f.cues, cue)
	return nil
}

func (f *fakeFeedback) said(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.spoken {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func (f *fakeFeedback) played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cues...)
}

type fixture struct {
	reasoner *fakeReasoner
	acc      *fakeAccessibility
	auto     *fakeAutomation
	vision   *fakeVision
	fb       *fakeFeedback
	listener *desktop.ChannelListener
	orch     *Orchestrator
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		reasoner: newFakeReasoner(),
		acc: &fakeAccessibility{
			ready: true,
			elements: map[string]desktop.Element{
				"Submit button": {Role: "button", Label: "Submit", Center: desktop.Point{X: 120, Y: 40}},
			},
		},
		auto: &fakeAutomation{},
		vision: &fakeVision{desc: &desktop.ScreenDescription{
			Description: "A browser window with a search box",
			Elements:    []desktop.Element{{Role: "text field", Label: "Search", Center: desktop.Point{X: 400, Y: 90}}},
		}},
		fb:       &fakeFeedback{},
		listener: desktop.NewChannelListener(),
	}
	f.reasoner.plan = &desktop.Plan{
		Actions:     []desktop.Action{{Kind: desktop.ActionClick, Point: &desktop.Point{X: 400, Y: 90}}},
		Explanation: "Clicked the search box.",
	}
	f.orch = New(cfg, Collaborators{
		Reasoner:      f.reasoner,
		Vision:        f.vision,
		Automation:    f.auto,
		Accessibility: f.acc,
		Feedback:      f.fb,
		Listener:      f.listener,
	})
	t.Cleanup(func() { _ = f.orch.Close() })
	return f
}

const factorialOneLiner = "def factorial(n): if n <= 1: return 1; return n * factorial(n - 1)"

// armFactorial makes the next "write a factorial function" command a python
// deferred action and runs it.
func (f *fixture) armFactorial(t *testing.T) *models.Result {
	t.Helper()
	f.reasoner.on("write a factorial function", models.IntentDeferredAction, map[string]any{
		"content_type": "code",
		"language":     "python",
		"target":       "factorial function",
	})
	f.reasoner.mu.Lock()
	f.reasoner.content = reply.Flat("```python\n" + factorialOneLiner + "\n```")
	f.reasoner.mu.Unlock()
	return f.orch.ExecuteCommand(context.Background(), "write a factorial function")
}
