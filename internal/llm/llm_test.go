package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/deskpilot/internal/desktop"
)

func TestSystemPrompts(t *testing.T) {
	for _, label := range []string{`"gui_interaction"`, `"conversational_chat"`, `"deferred_action"`, `"question_answering"`} {
		assert.Contains(t, intentSystemPrompt, label)
	}
	assert.Contains(t, intentSystemPrompt, `"confidence"`)
	assert.Contains(t, planSystemPrompt, `"plan"`)
	assert.Contains(t, screenSystemPrompt, `"elements"`)
}

func TestBuildPlanPrompt(t *testing.T) {
	t.Run("with screen", func(t *testing.T) {
		p := buildPlanPrompt("click save", &desktop.ScreenDescription{
			Description: "An editor window",
			Elements:    []desktop.Element{{Role: "button", Label: "Save", Center: desktop.Point{X: 10, Y: 20}}},
		})
		assert.Contains(t, p, "Command: click save")
		assert.Contains(t, p, "An editor window")
		assert.Contains(t, p, `"label":"Save"`)
	})

	t.Run("without screen", func(t *testing.T) {
		p := buildPlanPrompt("click save", nil)
		assert.Contains(t, p, "click save")
		assert.NotContains(t, p, "Screen description")
	})
}

func TestBuildScreenPrompt(t *testing.T) {
	assert.Contains(t, buildScreenPrompt("question"), "questions")
	assert.Contains(t, buildScreenPrompt("full"), "interactive elements")
}

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan("```json\n" + `{"plan":[{"action":"click","coordinates":{"x":5,"y":6}},{"action":"type","text":"hi"}]}` + "\n```")
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, desktop.ActionClick, plan.Actions[0].Kind)
	assert.Equal(t, &desktop.Point{X: 5, Y: 6}, plan.Actions[0].Point)
	assert.Equal(t, "hi", plan.Actions[1].Text)

	_, err = parsePlan(`{"plan":[]}`)
	assert.Error(t, err)

	_, err = parsePlan("not json")
	assert.Error(t, err)
}

func TestParseScreen(t *testing.T) {
	desc, err := parseScreen(`{"description":"desktop","elements":[{"role":"icon","label":"Trash","center":{"x":1,"y":2}}]}`)
	require.NoError(t, err)
	assert.Equal(t, "desktop", desc.Description)
	require.Len(t, desc.Elements, 1)
	assert.NotNil(t, desc.Metadata)

	desc, err = parseScreen("A terminal window with a prompt.")
	require.NoError(t, err)
	assert.Equal(t, "A terminal window with a prompt.", desc.Description)

	_, err = parseScreen("   ")
	assert.Error(t, err)
}

type failingCapturer struct{}

func (failingCapturer) Capture(context.Context) ([]byte, error) {
	return nil, desktop.ErrUnavailable
}

func TestScreenDescriber_CaptureFailure(t *testing.T) {
	d := NewScreenDescriber(NewClient("test-key", "claude-haiku-4-5-20251001"), failingCapturer{})
	_, err := d.DescribeScreen(context.Background(), "full")
	assert.ErrorIs(t, err, desktop.ErrUnavailable)
}
