package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/deskpilot/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client drive the desktop through deskpilot. Configure
the client with:

  {
    "mcpServers": {
      "deskpilot": { "command": "deskpilot", "args": ["mcp"] }
    }
  }

Available tools: desk_execute_command, desk_report_click, desk_system_health,
desk_system_state, desk_recover, desk_history`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		release, err := acquireInstance()
		if err != nil {
			return err
		}
		defer release()

		o := newEngine(ctx)
		defer func() { _ = o.Close() }()

		// dataStore is nil when the journal is disabled; history then
		// comes from memory.
		srv := mcp.NewServer(o, dataStore, buildVersion, logger.Named("mcp"))
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
