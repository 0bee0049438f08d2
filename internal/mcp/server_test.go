package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
	"github.com/joescharf/deskpilot/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockEngine struct {
	commands  []string
	clicks    []desktop.Point
	clickErr  error
	recovered []string
	repaired  bool
	recent    []models.ExecutionSummary
}

func (m *mockEngine) ExecuteCommand(_ context.Context, text string) *models.Result {
	m.commands = append(m.commands, text)
	return &models.Result{
		ExecutionID: "01TEST",
		Status:      models.ResultStatusCompleted,
		Success:     true,
		Mode:        models.IntentGUIInteraction,
		PathUsed:    "fast",
	}
}

func (m *mockEngine) ReportClick(p desktop.Point) error {
	m.clicks = append(m.clicks, p)
	return m.clickErr
}

func (m *mockEngine) SystemHealth() health.Report {
	return health.Report{OverallHealth: health.Degraded, HealthScore: 66, ModuleHealth: map[string]health.ModuleHealth{}}
}

func (m *mockEngine) AttemptRecovery(_ context.Context, module string) health.RecoveryReport {
	m.recovered = append(m.recovered, module)
	return health.RecoveryReport{Attempted: []string{"vision"}, Recovered: []string{"vision"}}
}

func (m *mockEngine) State() state.Snapshot {
	return state.Snapshot{Mode: models.ModeReady}
}

func (m *mockEngine) ValidateState() state.Validation {
	return state.Validation{Consistent: true}
}

func (m *mockEngine) RepairState() state.Validation {
	m.repaired = true
	return state.Validation{Consistent: false, Violations: []string{"x"}, Repaired: true}
}

func (m *mockEngine) RecentExecutions(n int) []models.ExecutionSummary {
	if n < 0 || n > len(m.recent) {
		return m.recent
	}
	return m.recent[len(m.recent)-n:]
}

type mockJournal struct {
	store.Store
	filter store.ExecutionFilter
	list   []*models.ExecutionSummary
	err    error
}

func (m *mockJournal) ListExecutions(_ context.Context, f store.ExecutionFilter) ([]*models.ExecutionSummary, error) {
	m.filter = f
	return m.list, m.err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), target))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	s := NewServer(&mockEngine{}, nil, "", nil)
	require.NotNil(t, s)
	assert.Equal(t, "dev", s.version)
	assert.NotNil(t, s.MCPServer())
}

func TestHandleExecuteCommand(t *testing.T) {
	e := &mockEngine{}
	s := NewServer(e, nil, "1.0.0", nil)

	result, err := s.handleExecuteCommand(context.Background(), callToolReq("desk_execute_command", map[string]any{"command": "click OK"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var res models.Result
	resultJSON(t, result, &res)
	assert.Equal(t, "01TEST", res.ExecutionID)
	assert.Equal(t, models.ResultStatusCompleted, res.Status)
	assert.Equal(t, []string{"click OK"}, e.commands)
}

func TestHandleExecuteCommand_Missing(t *testing.T) {
	s := NewServer(&mockEngine{}, nil, "", nil)
	result, err := s.handleExecuteCommand(context.Background(), callToolReq("desk_execute_command", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "command")
}

func TestHandleReportClick(t *testing.T) {
	e := &mockEngine{}
	s := NewServer(e, nil, "", nil)

	result, err := s.handleReportClick(context.Background(), callToolReq("desk_report_click", map[string]any{"x": 500.0, "y": 300.0}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []desktop.Point{{X: 500, Y: 300}}, e.clicks)
	assert.Contains(t, resultText(t, result), "(500,300)")
}

func TestHandleReportClick_Errors(t *testing.T) {
	s := NewServer(&mockEngine{clickErr: desktop.ErrListenerIdle}, nil, "", nil)

	result, err := s.handleReportClick(context.Background(), callToolReq("desk_report_click", map[string]any{"x": 1.0, "y": 2.0}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not armed")

	result, err = s.handleReportClick(context.Background(), callToolReq("desk_report_click", map[string]any{"x": 1.0}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "y")
}

func TestHandleSystemHealth(t *testing.T) {
	s := NewServer(&mockEngine{}, nil, "", nil)
	result, err := s.handleSystemHealth(context.Background(), callToolReq("desk_system_health", nil))
	require.NoError(t, err)

	var rep health.Report
	resultJSON(t, result, &rep)
	assert.Equal(t, health.Degraded, rep.OverallHealth)
	assert.Equal(t, 66, rep.HealthScore)
}

func TestHandleSystemState(t *testing.T) {
	e := &mockEngine{}
	s := NewServer(e, nil, "", nil)

	result, err := s.handleSystemState(context.Background(), callToolReq("desk_system_state", nil))
	require.NoError(t, err)
	var out struct {
		State      state.Snapshot   `json:"state"`
		Validation state.Validation `json:"validation"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, models.ModeReady, out.State.Mode)
	assert.True(t, out.Validation.Consistent)
	assert.False(t, e.repaired)

	result, err = s.handleSystemState(context.Background(), callToolReq("desk_system_state", map[string]any{"repair": true}))
	require.NoError(t, err)
	resultJSON(t, result, &out)
	assert.True(t, e.repaired)
	assert.True(t, out.Validation.Repaired)
}

func TestHandleRecover(t *testing.T) {
	e := &mockEngine{}
	s := NewServer(e, nil, "", nil)

	result, err := s.handleRecover(context.Background(), callToolReq("desk_recover", map[string]any{"module": "vision"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"vision"}, e.recovered)
	assert.Contains(t, resultText(t, result), `"recovered":["vision"]`)

	result, err = s.handleRecover(context.Background(), callToolReq("desk_recover", map[string]any{"module": "printer"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Len(t, e.recovered, 1)
}

func TestHandleHistory_InMemory(t *testing.T) {
	e := &mockEngine{recent: []models.ExecutionSummary{
		{ExecutionID: "A", Status: models.ResultStatusCompleted, Duration: time.Second},
		{ExecutionID: "B", Status: models.ResultStatusFailed},
		{ExecutionID: "C", Status: models.ResultStatusCompleted},
	}}
	s := NewServer(e, nil, "", nil)

	result, err := s.handleHistory(context.Background(), callToolReq("desk_history", nil))
	require.NoError(t, err)
	var list []models.ExecutionSummary
	resultJSON(t, result, &list)
	require.Len(t, list, 3)
	assert.Equal(t, "C", list[0].ExecutionID, "newest first")

	result, err = s.handleHistory(context.Background(), callToolReq("desk_history", map[string]any{"status": "completed", "limit": 1}))
	require.NoError(t, err)
	list = nil
	resultJSON(t, result, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "C", list[0].ExecutionID)
}

func TestHandleHistory_Journal(t *testing.T) {
	j := &mockJournal{list: []*models.ExecutionSummary{{ExecutionID: "J1"}}}
	s := NewServer(&mockEngine{}, j, "", nil)

	result, err := s.handleHistory(context.Background(), callToolReq("desk_history", map[string]any{"status": "failed"}))
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, j.filter.Status)
	assert.Equal(t, defaultHistoryLimit, j.filter.Limit)
	assert.Contains(t, resultText(t, result), "J1")

	j.err = errors.New("database is locked")
	result, err = s.handleHistory(context.Background(), callToolReq("desk_history", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "database is locked")
}
