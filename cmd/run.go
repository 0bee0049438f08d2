package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/orchestrator"
)

var (
	runJSON  bool
	runClick string
)

var runCmd = &cobra.Command{
	Use:   "run <command...>",
	Short: "Execute one command",
	Long: `Execute one natural-language command and print the result.

Deferred actions ("write a function that...") wait for a click. Pass
--click X,Y to place the content at those coordinates; without it the
pending action is cancelled when the command exits. Use 'deskpilot shell'
or the MCP server for interactive placement.

With --dry-run the command is classified but not executed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context(), strings.Join(args, " "))
	},
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the result as JSON")
	runCmd.Flags().StringVar(&runClick, "click", "", "Click position X,Y for a deferred action")
	rootCmd.AddCommand(runCmd)
}

func runRun(ctx context.Context, text string) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	var click *desktop.Point
	if runClick != "" {
		p, err := parsePoint(runClick)
		if err != nil {
			return err
		}
		click = &p
	}

	if !dryRun {
		release, err := acquireInstance()
		if err != nil {
			return err
		}
		defer release()
	}

	o := newEngine(ctx)
	defer func() { _ = o.Close() }()

	if dryRun {
		return previewCommand(ctx, o, text)
	}

	res := o.ExecuteCommand(ctx, text)
	if err := printResult(res); err != nil {
		return err
	}

	if res.Status == models.ResultStatusWaitingForUser && click != nil {
		if err := o.ReportClick(*click); err != nil {
			return fmt.Errorf("report click: %w", err)
		}
		rec, err := awaitDeferred(ctx, o, res.ExecutionID, viper.GetDuration("deferred.timeout"))
		if err != nil {
			return err
		}
		printDeferredOutcome(rec)
		if rec.TransitionType != models.TransitionDeferredDone {
			return fmt.Errorf("deferred action %s", rec.TransitionType)
		}
	}

	if !res.Success {
		return fmt.Errorf("command %s", res.Status)
	}
	return nil
}

func printResult(res *models.Result) error {
	if runJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Fprintln(ui.Out, string(data))
		return nil
	}
	ui.Result(res)
	return nil
}

func previewCommand(ctx context.Context, o *orchestrator.Orchestrator, text string) error {
	ir, err := o.Classify(ctx, text)
	if err != nil {
		return err
	}
	ui.DryRunMsg("Would route as %s (confidence %.2f)", ir.Intent, ir.Confidence)
	if ir.IsFallback {
		ui.Warning("Classification fell back: %s", ir.StringParam("reason", "unknown"))
	}
	for k, v := range ir.Parameters {
		ui.VerboseLog("%s = %v", k, v)
	}
	return nil
}

// parsePoint parses "X,Y" (or "X Y") screen coordinates.
func parsePoint(s string) (desktop.Point, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 2 {
		return desktop.Point{}, fmt.Errorf("invalid point %q: want X,Y", s)
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return desktop.Point{}, fmt.Errorf("invalid x coordinate %q: %w", fields[0], err)
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return desktop.Point{}, fmt.Errorf("invalid y coordinate %q: %w", fields[1], err)
	}
	if x < 0 || y < 0 {
		return desktop.Point{}, fmt.Errorf("invalid point %q: coordinates must be non-negative", s)
	}
	return desktop.Point{X: x, Y: y}, nil
}

// deferredOutcomes are the transitions that end a deferred action.
var deferredOutcomes = map[string]bool{
	models.TransitionDeferredDone: true,
	models.TransitionDeferredFail: true,
	models.TransitionTimedOut:     true,
	models.TransitionInterrupted:  true,
	models.TransitionReset:        true,
}

// transitionLister is the part of the orchestrator awaitDeferred polls.
type transitionLister interface {
	Transitions() []models.TransitionRecord
}

// awaitDeferred polls the transition history until the deferred action with
// the given execution ID reaches an outcome.
func awaitDeferred(ctx context.Context, o transitionLister, id string, timeout time.Duration) (models.TransitionRecord, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		hist := o.Transitions()
		for i := len(hist) - 1; i >= 0; i-- {
			if hist[i].ExecutionID == id && deferredOutcomes[hist[i].TransitionType] {
				return hist[i], nil
			}
		}
		select {
		case <-ctx.Done():
			return models.TransitionRecord{}, fmt.Errorf("wait for deferred action %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printDeferredOutcome(rec models.TransitionRecord) {
	switch rec.TransitionType {
	case models.TransitionDeferredDone:
		ui.Success("Content placed")
	case models.TransitionDeferredFail:
		ui.Error("Content placement failed: %v", rec.Context["error"])
	default:
		ui.Warning("Deferred action ended: %s", rec.TransitionType)
	}
}
