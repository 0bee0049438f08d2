package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
)

const shellUsage = `Start an interactive prompt. Each line is executed as a command.

Built-ins:
  click X Y        report a click (places pending deferred content)
  health           show module health
  recover [module] re-initialize unavailable modules
  state            show the current state and validate it
  history [N]      show the last N executions of this session
  help             show this list
  exit, quit       leave the prompt`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive command prompt",
	Long:  shellUsage,
	Args:  cobra.NoArgs,
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

		return runShell(ctx, o, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellEngine is the orchestrator surface the prompt drives.
type shellEngine interface {
	ExecuteCommand(ctx context.Context, text string) *models.Result
	ReportClick(p desktop.Point) error
	SystemHealth() health.Report
	AttemptRecovery(ctx context.Context, module string) health.RecoveryReport
	State() state.Snapshot
	ValidateState() state.Validation
	RecentExecutions(n int) []models.ExecutionSummary
}

type shellVerb int

const (
	shellExec shellVerb = iota
	shellSkip
	shellExit
	shellHelp
	shellClick
	shellHealth
	shellRecover
	shellState
	shellHistory
)

type shellInput struct {
	verb  shellVerb
	text  string
	point desktop.Point
	n     int
}

const defaultShellHistory = 10

// parseShellLine maps a prompt line to a built-in or a command to execute.
// A line that only looks like a built-in ("click the OK button") is executed.
func parseShellLine(line string) shellInput {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return shellInput{verb: shellSkip}
	}
	exec := shellInput{verb: shellExec, text: line}

	switch strings.ToLower(fields[0]) {
	case "exit", "quit":
		if len(fields) == 1 {
			return shellInput{verb: shellExit}
		}
	case "help", "?":
		if len(fields) == 1 {
			return shellInput{verb: shellHelp}
		}
	case "health":
		if len(fields) == 1 {
			return shellInput{verb: shellHealth}
		}
	case "state":
		if len(fields) == 1 {
			return shellInput{verb: shellState}
		}
	case "recover":
		if len(fields) == 1 {
			return shellInput{verb: shellRecover}
		}
		if len(fields) == 2 && isModule(fields[1]) {
			return shellInput{verb: shellRecover, text: fields[1]}
		}
	case "history":
		if len(fields) == 1 {
			return shellInput{verb: shellHistory, n: defaultShellHistory}
		}
		if n, err := strconv.Atoi(fields[1]); err == nil && len(fields) == 2 && n > 0 {
			return shellInput{verb: shellHistory, n: n}
		}
	case "click":
		if len(fields) == 3 {
			if p, err := parsePoint(fields[1] + "," + fields[2]); err == nil {
				return shellInput{verb: shellClick, point: p}
			}
		}
	}
	return exec
}

func isModule(name string) bool {
	for _, m := range desktop.Modules {
		if m == name {
			return true
		}
	}
	return false
}

// runShell reads lines from in until EOF, exit, or ctx is cancelled.
func runShell(ctx context.Context, e shellEngine, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	ui.Info("deskpilot ready. Type 'help' for built-ins, 'exit' to quit.")
	for {
		fmt.Fprint(ui.Out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(ui.Out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(ui.Out)
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}

		input := parseShellLine(line)
		switch input.verb {
		case shellSkip:
		case shellExit:
			return nil
		case shellHelp:
			fmt.Fprintln(ui.Out, shellUsage)
		case shellClick:
			if err := e.ReportClick(input.point); err != nil {
				ui.Error("Click not delivered: %v", err)
			} else {
				ui.VerboseLog("click at %s delivered", input.point)
			}
		case shellHealth:
			if err := ui.Health(e.SystemHealth()); err != nil {
				return err
			}
		case shellRecover:
			ui.Recovery(e.AttemptRecovery(ctx, input.text))
		case shellState:
			ui.State(e.State(), e.ValidateState())
		case shellHistory:
			recent := e.RecentExecutions(input.n)
			newestFirst := make([]models.ExecutionSummary, 0, len(recent))
			for i := len(recent) - 1; i >= 0; i-- {
				newestFirst = append(newestFirst, recent[i])
			}
			if err := ui.History(newestFirst); err != nil {
				return err
			}
		default:
			ui.Result(e.ExecuteCommand(ctx, input.text))
		}
	}
}
