package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog(t *testing.T) {
	u, out, _ := newTestUI()
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())

	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestDryRunMsg(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())

	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestColorHelpers(t *testing.T) {
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestStatusColor(t *testing.T) {
	for _, s := range []string{"completed", "failed", "rejected", "waiting_for_user_action"} {
		assert.Contains(t, StatusColor(s), s)
	}
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestHealthColor(t *testing.T) {
	assert.Contains(t, HealthColor(90), "90")
	assert.Contains(t, HealthColor(60), "60")
	assert.Contains(t, HealthColor(10), "10")
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Module", "Available"})
	require.NotNil(t, table)

	table.Append([]string{"vision", "yes"})
	table.Append([]string{"audio", "no"})
	require.NoError(t, table.Render())

	result := out.String()
	assert.Contains(t, result, "vision")
	assert.Contains(t, result, "audio")
}

func TestResult_Completed(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Result(&models.Result{
		Status:   models.ResultStatusCompleted,
		Success:  true,
		Response: "Done: click Submit",
		Warnings: []string{"fast path unavailable: element_not_found"},
	})
	assert.Contains(t, out.String(), "Done: click Submit")
	assert.Contains(t, errOut.String(), "element_not_found")
}

func TestResult_Waiting(t *testing.T) {
	u, out, _ := newTestUI()
	u.Result(&models.Result{
		Status:         models.ResultStatusWaitingForUser,
		Instructions:   "Click where you want the content placed.",
		ContentPreview: "def factorial(n):",
	})
	assert.Contains(t, out.String(), "Click where you want")
	assert.Contains(t, out.String(), "def factorial(n):")
}

func TestResult_Failed(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Result(&models.Result{
		Status: models.ResultStatusFailed,
		Error:  "command is empty",
		Errors: []string{"command is empty", "second"},
	})
	assert.Empty(t, out.String())
	assert.Equal(t, 1, strings.Count(errOut.String(), "command is empty"))
	assert.Contains(t, errOut.String(), "second")
}

func TestHealth(t *testing.T) {
	u, out, _ := newTestUI()
	err := u.Health(health.Report{
		OverallHealth: health.Degraded,
		HealthScore:   66,
		ModuleHealth: map[string]health.ModuleHealth{
			"vision": {Available: true},
			"audio":  {Available: false, RecoveryAttempts: 3, GivenUp: true},
		},
		ErrorStatistics: map[string]int{"vision_failures": 2, "lock_timeouts": 0},
	})
	require.NoError(t, err)

	s := out.String()
	assert.Contains(t, s, "degraded")
	assert.Contains(t, s, "66")
	assert.Contains(t, s, "given up")
	assert.Contains(t, s, "vision_failures=2")
	assert.NotContains(t, s, "lock_timeouts")
	assert.Less(t, strings.Index(s, "audio"), strings.Index(s, "vision"))
}

func TestRecovery(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Recovery(health.RecoveryReport{})
	assert.Contains(t, out.String(), "Nothing to recover")

	u, out, errOut = newTestUI()
	u.Recovery(health.RecoveryReport{
		Attempted: []string{"vision", "audio"},
		Recovered: []string{"vision"},
		Failed:    map[string]string{"audio": "no output device"},
		GivenUp:   []string{"accessibility"},
	})
	assert.Contains(t, out.String(), "vision recovered")
	assert.Contains(t, errOut.String(), "audio: no output device")
	assert.Contains(t, errOut.String(), "accessibility")
}

func TestHistory(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.History(nil))
	assert.Contains(t, out.String(), "No executions recorded")

	u, out, _ = newTestUI()
	require.NoError(t, u.History([]models.ExecutionSummary{{
		ExecutionID: "01HX",
		Command:     strings.Repeat("write a function ", 10),
		Mode:        models.IntentDeferredAction,
		Status:      models.ResultStatusWaitingForUser,
		Duration:    1500 * time.Millisecond,
		StartedAt:   time.Now(),
	}}))
	s := out.String()
	assert.Contains(t, s, "01HX")
	assert.Contains(t, s, "deferred_action")
	assert.Contains(t, s, "1.5s")
	assert.Contains(t, s, "…")
}

func TestState(t *testing.T) {
	u, out, _ := newTestUI()
	u.State(state.Snapshot{
		Mode:                 models.ModeWaitingForUser,
		WaitingForUserAction: true,
		DeferredActionType:   "type",
		PayloadPreview:       "print(1)",
		DeferredTimeout:      time.Now().Add(time.Minute),
	}, state.Validation{Consistent: true})
	assert.Contains(t, out.String(), "waiting_for_user")
	assert.Contains(t, out.String(), `"print(1)"`)
	assert.Contains(t, out.String(), "consistent")

	u, _, errOut := newTestUI()
	u.State(state.Snapshot{Mode: models.ModeReady}, state.Validation{Violations: []string{"x"}, Repaired: true})
	assert.Contains(t, errOut.String(), "has been reset")
}
