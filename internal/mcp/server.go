// Package mcp exposes the orchestrator as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
	"github.com/joescharf/deskpilot/internal/store"
)

// Engine is the orchestrator surface the tools drive.
type Engine interface {
	ExecuteCommand(ctx context.Context, text string) *models.Result
	ReportClick(p desktop.Point) error
	SystemHealth() health.Report
	AttemptRecovery(ctx context.Context, module string) health.RecoveryReport
	State() state.Snapshot
	ValidateState() state.Validation
	RepairState() state.Validation
	RecentExecutions(n int) []models.ExecutionSummary
}

const defaultHistoryLimit = 20

// Server wraps the orchestrator and exposes it as MCP tools.
type Server struct {
	engine  Engine
	journal store.Store
	logger  *zap.Logger
	version string
}

// NewServer creates the MCP server wrapper. journal may be nil, in which
// case history is served from memory.
func NewServer(e Engine, journal store.Store, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	return &Server{engine: e, journal: journal, logger: logger, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("deskpilot", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.executeCommandTool())
	srv.AddTool(s.reportClickTool())
	srv.AddTool(s.systemHealthTool())
	srv.AddTool(s.systemStateTool())
	srv.AddTool(s.recoverTool())
	srv.AddTool(s.historyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// desk_execute_command
func (s *Server) executeCommandTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_execute_command",
		mcp.WithDescription("Execute a natural-language desktop command (click, type, ask, chat, or generate content to place at the next click). Returns the execution result as JSON."),
		mcp.WithString("command", mcp.Required(), mcp.Description("The command text, e.g. 'click the Submit button'")),
	)
	return tool, s.handleExecuteCommand
}

func (s *Server) handleExecuteCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: command"), nil
	}
	res := s.engine.ExecuteCommand(ctx, text)
	s.logger.Debug("tool executed command",
		zap.String("execution_id", res.ExecutionID),
		zap.String("status", string(res.Status)))
	return jsonResult(res)
}

// desk_report_click
func (s *Server) reportClickTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_report_click",
		mcp.WithDescription("Report a mouse click at screen coordinates. Places pending deferred content when a deferred action is waiting."),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Horizontal screen coordinate in pixels")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Vertical screen coordinate in pixels")),
	)
	return tool, s.handleReportClick
}

func (s *Server) handleReportClick(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, err := request.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: x"), nil
	}
	y, err := request.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: y"), nil
	}
	p := desktop.Point{X: int(x), Y: int(y)}
	if err := s.engine.ReportClick(p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("click not delivered: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Click at %s delivered.", p)), nil
}

// desk_system_health
func (s *Server) systemHealthTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_system_health",
		mcp.WithDescription("Report overall health, health score (0-100), per-module availability, and error statistics."),
	)
	return tool, s.handleSystemHealth
}

func (s *Server) handleSystemHealth(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.SystemHealth())
}

// desk_system_state
func (s *Server) systemStateTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_system_state",
		mcp.WithDescription("Show the current system mode, any pending deferred action, and whether the state invariants hold."),
		mcp.WithBoolean("repair", mcp.Description("Reset the deferred state if any invariant is violated")),
	)
	return tool, s.handleSystemState
}

func (s *Server) handleSystemState(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var v state.Validation
	if request.GetBool("repair", false) {
		v = s.engine.RepairState()
	} else {
		v = s.engine.ValidateState()
	}
	return jsonResult(struct {
		State      state.Snapshot   `json:"state"`
		Validation state.Validation `json:"validation"`
	}{s.engine.State(), v})
}

// desk_recover
func (s *Server) recoverTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_recover",
		mcp.WithDescription("Try to re-initialize unavailable modules. Without a module name every unavailable module is retried."),
		mcp.WithString("module", mcp.Description("Module name: "+strings.Join(desktop.Modules, ", "))),
	)
	return tool, s.handleRecover
}

func (s *Server) handleRecover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	module := request.GetString("module", "")
	if module != "" && !knownModule(module) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown module: %s", module)), nil
	}
	rep := s.engine.AttemptRecovery(ctx, module)
	return jsonResult(struct {
		Recovery health.RecoveryReport `json:"recovery"`
		Health   health.Report         `json:"health"`
	}{rep, s.engine.SystemHealth()})
}

func knownModule(name string) bool {
	for _, m := range desktop.Modules {
		if m == name {
			return true
		}
	}
	return false
}

// desk_history
func (s *Server) historyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_history",
		mcp.WithDescription("List recent command executions, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of executions (default 20)")),
		mcp.WithString("status", mcp.Description("Filter by status: completed, failed, waiting_for_user_action, rejected")),
	)
	return tool, s.handleHistory
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	status := models.ResultStatus(request.GetString("status", ""))

	if s.journal != nil {
		list, err := s.journal.ListExecutions(ctx, store.ExecutionFilter{Status: status, Limit: limit})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list executions: %v", err)), nil
		}
		if list == nil {
			list = []*models.ExecutionSummary{}
		}
		return jsonResult(list)
	}

	recent := s.engine.RecentExecutions(-1)
	out := make([]models.ExecutionSummary, 0, limit)
	for i := len(recent) - 1; i >= 0 && len(out) < limit; i-- {
		if status != "" && recent[i].Status != status {
			continue
		}
		out = append(out, recent[i])
	}
	return jsonResult(out)
}
