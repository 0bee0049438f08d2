// Package output renders command results, health reports, and execution
// history for the terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
)

// UI provides colored output and respects verbose/dry-run modes.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	waitPrefix    = color.New(color.FgHiMagenta).Sprint("⏳")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	magenta       = color.New(color.FgHiMagenta).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// StatusColor returns the string colored by result status.
func StatusColor(status string) string {
	switch models.ResultStatus(strings.ToLower(status)) {
	case models.ResultStatusCompleted:
		return green(status)
	case models.ResultStatusWaitingForUser:
		return magenta(status)
	case models.ResultStatusRejected:
		return yellow(status)
	case models.ResultStatusFailed:
		return red(status)
	default:
		return status
	}
}

// HealthColor returns the score colored by its health bucket.
func HealthColor(score int) string {
	s := fmt.Sprintf("%d", score)
	switch health.Bucket(score) {
	case health.Healthy:
		return green(s)
	case health.Degraded:
		return yellow(s)
	default:
		return red(s)
	}
}

// OverallColor colors an overall health label.
func OverallColor(o health.Overall) string {
	switch o {
	case health.Healthy:
		return green(string(o))
	case health.Degraded:
		return yellow(string(o))
	default:
		return red(string(o))
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Waiting(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", waitPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Result prints a command result. The headline goes to Out for successes and
// pending waits, to ErrOut otherwise; errors and warnings always go to ErrOut.
func (u *UI) Result(res *models.Result) {
	switch res.Status {
	case models.ResultStatusCompleted:
		msg := res.Response
		if msg == "" {
			msg = fmt.Sprintf("%s completed", res.Mode)
		}
		u.Success("%s", msg)
	case models.ResultStatusWaitingForUser:
		u.Waiting("%s", res.Instructions)
		if res.ContentPreview != "" {
			fmt.Fprintf(u.Out, "    %s\n", cyan(res.ContentPreview))
		}
	default:
		msg := res.Error
		if msg == "" {
			msg = string(res.Status)
		}
		u.Error("%s", msg)
	}
	for _, e := range res.Errors {
		if e != res.Error {
			u.Error("%s", e)
		}
	}
	for _, w := range res.Warnings {
		u.Warning("%s", w)
	}
	u.VerboseLog("execution %s mode=%s path=%s duration=%.2fs", res.ExecutionID, res.Mode, res.PathUsed, res.Duration)
	if len(res.StepsCompleted) > 0 {
		u.VerboseLog("steps: %s", strings.Join(res.StepsCompleted, ", "))
	}
}

// Health prints the overall health line followed by a module table and any
// non-zero error statistics.
func (u *UI) Health(rep health.Report) error {
	fmt.Fprintf(u.Out, "Health: %s (score %s)\n\n", OverallColor(rep.OverallHealth), HealthColor(rep.HealthScore))

	names := make([]string, 0, len(rep.ModuleHealth))
	for name := range rep.ModuleHealth {
		names = append(names, name)
	}
	sort.Strings(names)

	table := u.Table([]string{"Module", "Available", "Recovery Attempts"})
	for _, name := range names {
		mh := rep.ModuleHealth[name]
		avail := green("yes")
		if !mh.Available {
			avail = red("no")
			if mh.GivenUp {
				avail = red("given up")
			}
		}
		table.Append([]string{name, avail, fmt.Sprintf("%d", mh.RecoveryAttempts)})
	}
	if err := table.Render(); err != nil {
		return err
	}

	stats := make([]string, 0, len(rep.ErrorStatistics))
	for k, v := range rep.ErrorStatistics {
		if v > 0 {
			stats = append(stats, fmt.Sprintf("%s=%d", k, v))
		}
	}
	if len(stats) > 0 {
		sort.Strings(stats)
		fmt.Fprintf(u.Out, "\nErrors: %s\n", strings.Join(stats, " "))
	}
	return nil
}

// Recovery prints the outcome of a recovery pass.
func (u *UI) Recovery(rep health.RecoveryReport) {
	if len(rep.Attempted) == 0 && len(rep.GivenUp) == 0 {
		u.Info("Nothing to recover")
		return
	}
	for _, m := range rep.Recovered {
		u.Success("%s recovered", m)
	}
	failed := make([]string, 0, len(rep.Failed))
	for m := range rep.Failed {
		failed = append(failed, m)
	}
	sort.Strings(failed)
	for _, m := range failed {
		u.Error("%s: %s", m, rep.Failed[m])
	}
	for _, m := range rep.GivenUp {
		u.Warning("%s: recovery attempts exhausted", m)
	}
}

// History prints executions as a table, in the order given.
func (u *UI) History(list []models.ExecutionSummary) error {
	if len(list) == 0 {
		u.Info("No executions recorded")
		return nil
	}
	table := u.Table([]string{"ID", "Started", "Mode", "Status", "Path", "Duration", "Command"})
	for _, e := range list {
		table.Append([]string{
			e.ExecutionID,
			e.StartedAt.Local().Format("15:04:05"),
			string(e.Mode),
			StatusColor(string(e.Status)),
			e.PathUsed,
			e.Duration.Round(time.Millisecond).String(),
			truncate(e.Command, 48),
		})
	}
	return table.Render()
}

// State prints the state snapshot and its validation result.
func (u *UI) State(s state.Snapshot, v state.Validation) {
	fmt.Fprintf(u.Out, "Mode:      %s\n", s.Mode)
	if s.WaitingForUserAction {
		fmt.Fprintf(u.Out, "Pending:   %s %q\n", s.DeferredActionType, s.PayloadPreview)
		fmt.Fprintf(u.Out, "Expires:   %s\n", s.DeferredTimeout.Local().Format(time.Kitchen))
		if s.DeferredExecuting {
			fmt.Fprintf(u.Out, "Executing: %s\n", yellow("yes"))
		}
	}
	if s.CurrentExecutionID != "" {
		fmt.Fprintf(u.Out, "Execution: %s\n", s.CurrentExecutionID)
	}
	switch {
	case v.Consistent:
		u.Success("State is consistent")
	case v.Repaired:
		u.Warning("State was inconsistent and has been reset")
	default:
		u.Error("State is inconsistent")
	}
	for _, viol := range v.Violations {
		u.VerboseLog("%s", viol)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
