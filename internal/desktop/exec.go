package desktop

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Runner runs an external program and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs programs with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// lookPath is replaceable in tests.
var lookPath = exec.LookPath

func requireTool(name string) error {
	if _, err := lookPath(name); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrUnavailable, name)
	}
	return nil
}

// ExecAutomation drives the pointer and keyboard through xdotool.
type ExecAutomation struct {
	tool string
	run  Runner
}

// NewExecAutomation checks that tool is installed and returns an automation backend.
func NewExecAutomation(tool string) (*ExecAutomation, error) {
	if tool == "" {
		tool = "xdotool"
	}
	if err := requireTool(tool); err != nil {
		return nil, err
	}
	return &ExecAutomation{tool: tool, run: ExecRunner}, nil
}

// NewExecAutomationWithRunner is used by tests and by callers that proxy commands.
func NewExecAutomationWithRunner(tool string, run Runner) *ExecAutomation {
	return &ExecAutomation{tool: tool, run: run}
}

func (a *ExecAutomation) Execute(ctx context.Context, action Action) ActionResult {
	args, err := xdotoolArgs(action)
	if err != nil {
		return ActionResult{Error: err.Error()}
	}
	if _, err := a.run(ctx, a.tool, args...); err != nil {
		return ActionResult{Error: err.Error()}
	}
	return ActionResult{Success: true}
}

func xdotoolArgs(action Action) ([]string, error) {
	var args []string
	if action.Point != nil {
		args = append(args, "mousemove", strconv.Itoa(action.Point.X), strconv.Itoa(action.Point.Y))
	}

	switch action.Kind {
	case ActionClick:
		return append(args, "click", "1"), nil
	case ActionDoubleClick:
		return append(args, "click", "--repeat", "2", "1"), nil
	case ActionType:
		if action.Text == "" {
			return nil, fmt.Errorf("type action requires text")
		}
		return append(args, "type", "--delay", "12", "--", action.Text), nil
	case ActionScroll:
		button, ok := scrollButtons[strings.ToLower(action.Direction)]
		if !ok {
			button = scrollButtons["down"]
		}
		amount := action.Amount
		if amount <= 0 {
			amount = 3
		}
		return append(args, "click", "--repeat", strconv.Itoa(amount), button), nil
	default:
		return nil, fmt.Errorf("unsupported action: %q", action.Kind)
	}
}

var scrollButtons = map[string]string{"up": "4", "down": "5", "left": "6", "right": "7"}

// SpeechFeedback speaks through a text-to-speech program and rings the
// terminal bell for sound cues.
type SpeechFeedback struct {
	tool string
	run  Runner
	bell io.Writer
}

// NewSpeechFeedback checks that tool (espeak, say, ...) is installed.
func NewSpeechFeedback(tool string) (*SpeechFeedback, error) {
	if tool == "" {
		tool = "espeak"
	}
	if err := requireTool(tool); err != nil {
		return nil, err
	}
	return &SpeechFeedback{tool: tool, run: ExecRunner, bell: os.Stderr}, nil
}

// NewSpeechFeedbackWithRunner is used by tests.
func NewSpeechFeedbackWithRunner(tool string, run Runner, bell io.Writer) *SpeechFeedback {
	return &SpeechFeedback{tool: tool, run: run, bell: bell}
}

func (f *SpeechFeedback) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	_, err := f.run(ctx, f.tool, text)
	return err
}

func (f *SpeechFeedback) Play(_ context.Context, cue string) error {
	switch cue {
	case CueFailure, CueCancel:
		_, err := io.WriteString(f.bell, "\a\a")
		return err
	default:
		_, err := io.WriteString(f.bell, "\a")
		return err
	}
}

// ExecScreenshotter captures the screen by running a command that writes a
// PNG image to stdout.
type ExecScreenshotter struct {
	argv []string
	run  Runner
}

// NewExecScreenshotter parses a command line such as "import -window root png:-".
func NewExecScreenshotter(cmdline string) (*ExecScreenshotter, error) {
	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty screenshot command", ErrUnavailable)
	}
	if err := requireTool(argv[0]); err != nil {
		return nil, err
	}
	return &ExecScreenshotter{argv: argv, run: ExecRunner}, nil
}

// Capture returns the PNG bytes of the current screen.
func (s *ExecScreenshotter) Capture(ctx context.Context) ([]byte, error) {
	out, err := s.run(ctx, s.argv[0], s.argv[1:]...)
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("capture screen: empty image")
	}
	return out, nil
}
