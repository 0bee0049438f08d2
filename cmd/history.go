package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/store"
)

var (
	historyLimit     int
	historyStatus    string
	historyMode      string
	historyOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List journaled command executions",
	Long: `List recent command executions from the SQLite journal, newest first.

Running bare 'deskpilot history' is the same as 'deskpilot history list'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent executions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyListRun(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <execution-id>",
	Short: "Show one execution and its state transitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyShowRun(cmd, args[0])
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete journal entries older than a duration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyPruneRun(cmd)
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, historyListCmd} {
		c.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum number of executions")
		c.Flags().StringVarP(&historyStatus, "status", "s", "", "Filter by status (completed, failed, waiting_for_user_action, rejected)")
		c.Flags().StringVarP(&historyMode, "mode", "m", "", "Filter by intent (gui_interaction, conversational_chat, deferred_action, question_answering)")
	}
	historyPruneCmd.Flags().DurationVar(&historyOlderThan, "older-than", 30*24*time.Hour, "Age threshold")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyFilter() (store.ExecutionFilter, error) {
	f := store.ExecutionFilter{Limit: historyLimit}
	if historyStatus != "" {
		switch st := models.ResultStatus(historyStatus); st {
		case models.ResultStatusCompleted, models.ResultStatusFailed,
			models.ResultStatusWaitingForUser, models.ResultStatusRejected:
			f.Status = st
		default:
			return f, fmt.Errorf("unknown status: %s", historyStatus)
		}
	}
	if historyMode != "" {
		m := models.Intent(historyMode)
		if !m.Valid() {
			return f, fmt.Errorf("unknown mode: %s", historyMode)
		}
		f.Mode = m
	}
	return f, nil
}

func historyListRun(cmd *cobra.Command) error {
	filter, err := historyFilter()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	list, err := s.ListExecutions(cmd.Context(), filter)
	if err != nil {
		return err
	}
	out := make([]models.ExecutionSummary, 0, len(list))
	for _, e := range list {
		out = append(out, *e)
	}
	return ui.History(out)
}

func historyShowRun(cmd *cobra.Command, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	e, err := s.GetExecution(cmd.Context(), id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "Execution: %s\n", e.ExecutionID)
	fmt.Fprintf(ui.Out, "Command:   %s\n", e.Command)
	fmt.Fprintf(ui.Out, "Mode:      %s\n", e.Mode)
	fmt.Fprintf(ui.Out, "Status:    %s\n", e.Status)
	if e.PathUsed != "" {
		fmt.Fprintf(ui.Out, "Path:      %s\n", e.PathUsed)
	}
	fmt.Fprintf(ui.Out, "Started:   %s (%s)\n", e.StartedAt.Local().Format(time.RFC3339), e.Duration.Round(time.Millisecond))
	for _, msg := range e.Errors {
		ui.Error("%s", msg)
	}

	trs, err := s.ListTransitions(cmd.Context(), id, 0)
	if err != nil {
		return err
	}
	if len(trs) == 0 {
		return nil
	}
	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Time", "Transition", "Context"})
	for _, tr := range trs {
		table.Append([]string{
			tr.Timestamp.Local().Format("15:04:05.000"),
			tr.TransitionType,
			formatContext(tr.Context),
		})
	}
	return table.Render()
}

// formatContext renders a transition context as sorted key=value pairs.
func formatContext(ctx map[string]any) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := ctx[k]
		if s, ok := v.(string); ok {
			parts = append(parts, k+"="+s)
			continue
		}
		data, _ := json.Marshal(v)
		parts = append(parts, k+"="+string(data))
	}
	return strings.Join(parts, " ")
}

func historyPruneRun(cmd *cobra.Command) error {
	if historyOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	before := time.Now().Add(-historyOlderThan)
	if dryRun {
		ui.DryRunMsg("Would delete journal entries recorded before %s", before.Format(time.RFC3339))
		return nil
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	n, err := s.Prune(cmd.Context(), before)
	if err != nil {
		return err
	}
	ui.Success("Pruned %d journal entries", n)
	return nil
}
