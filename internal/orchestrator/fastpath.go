package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/command"
	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
)

// Fast-path failure reasons.
const (
	ReasonFastPathDisabled     = "fast_path_disabled"
	ReasonAccessibilityNotInit = "accessibility_not_initialized"
	ReasonNotGUICommand        = "not_gui_command"
	ReasonMissingText          = "missing_text"
	ReasonElementNotFound      = "element_not_found"
	ReasonActionFailed         = "action_execution_failed"
)

// PathFast and PathVision name the execution paths reported in results.
const (
	PathFast   = "fast"
	PathVision = "vision"
)

// FastPathResult is the outcome of an accessibility-driven attempt.
type FastPathResult struct {
	Success       bool                  `json:"success"`
	PathUsed      string                `json:"path_used,omitempty"`
	FailureReason string                `json:"failure_reason,omitempty"`
	Error         string                `json:"error,omitempty"`
	ActionResult  *desktop.ActionResult `json:"action_result,omitempty"`
	ExecutionTime time.Duration         `json:"execution_time"`
	Attempts      int                   `json:"attempts"`
	Target        command.Target        `json:"target"`
	Element       *desktop.Element      `json:"element,omitempty"`
}

// RecoveryRequest describes a failed fast-path attempt.
type RecoveryRequest struct {
	Command       string
	Attempt       int
	FailureReason string
}

// RecoveryStrategy decides whether a failed fast-path attempt is retried.
type RecoveryStrategy func(ctx context.Context, req RecoveryRequest) bool

func retryable(reason string) bool {
	return reason == ReasonElementNotFound || reason == ReasonActionFailed
}

// attemptFastPath resolves the target through accessibility and acts on it
// directly, retrying once when the recovery strategy allows it.
func (o *Orchestrator) attemptFastPath(ctx context.Context, text string, kind command.Type, appName string) FastPathResult {
	start := time.Now()
	var res FastPathResult
	for attempt := 1; attempt <= o.cfg.MaxFastPathAttempts; attempt++ {
		res = o.fastPathOnce(ctx, text, kind, appName)
		res.Attempts = attempt
		if res.Success || !retryable(res.FailureReason) || o.recovery == nil || attempt == o.cfg.MaxFastPathAttempts {
			break
		}
		if !o.recovery(ctx, RecoveryRequest{Command: text, Attempt: attempt, FailureReason: res.FailureReason}) {
			break
		}
		o.logger.Debug("retrying fast path", zap.String("reason", res.FailureReason), zap.Int("attempt", attempt))
	}
	res.ExecutionTime = time.Since(start)
	return res
}

func (o *Orchestrator) fastPathOnce(ctx context.Context, text string, kind command.Type, appName string) FastPathResult {
	if !o.cfg.FastPathEnabled {
		return FastPathResult{FailureReason: ReasonFastPathDisabled}
	}
	c := o.collaborators()
	if c.Accessibility == nil || !c.Accessibility.Ready() {
		return FastPathResult{FailureReason: ReasonAccessibilityNotInit}
	}
	if !kind.IsGUI() {
		return FastPathResult{FailureReason: ReasonNotGUICommand}
	}

	target := command.ExtractTarget(text)
	target.AppName = appName
	res := FastPathResult{Target: target}
	if target.Action == string(desktop.ActionType) && strings.TrimSpace(target.Text) == "" {
		res.FailureReason = ReasonMissingText
		return res
	}

	var actions []desktop.Action
	if target.Focused {
		actions = append(actions, primitive(target, nil))
	} else {
		el, err := c.Accessibility.FindElement(ctx, target.Role, target.Label, target.AppName)
		if err != nil {
			res.FailureReason = ReasonElementNotFound
			res.Error = err.Error()
			return res
		}
		if el == nil {
			res.FailureReason = ReasonElementNotFound
			return res
		}
		res.Element = el
		center := el.Center
		if target.Action == string(desktop.ActionType) {
			actions = append(actions, desktop.Action{Kind: desktop.ActionClick, Point: &center})
		}
		actions = append(actions, primitive(target, &center))
	}

	if c.Automation == nil {
		res.FailureReason = ReasonActionFailed
		res.Error = fmt.Errorf("automation: %w", desktop.ErrUnavailable).Error()
		return res
	}
	for _, a := range actions {
		ar := c.Automation.Execute(ctx, a)
		res.ActionResult = &ar
		if !ar.Success {
			res.FailureReason = ReasonActionFailed
			res.Error = ar.Error
			return res
		}
	}

	res.Success = true
	res.PathUsed = PathFast
	return res
}

func primitive(t command.Target, at *desktop.Point) desktop.Action {
	a := desktop.Action{Kind: desktop.ActionKind(t.Action), Point: at}
	switch a.Kind {
	case desktop.ActionType:
		a.Text = t.Text
		// The preceding click focuses the element; typing needs no coordinates.
		a.Point = nil
	case desktop.ActionScroll:
		a.Direction = t.Direction
		a.Amount = t.Amount
	}
	return a
}

// handleGUI tries the fast path first and falls back to vision.
func (o *Orchestrator) handleGUI(ctx context.Context, ec *models.ExecutionContext) *models.Result {
	kind := command.DetectType(ec.Command)
	appName := ec.IntentResult.StringParam("app_name", "")

	fp := o.attemptFastPath(ctx, ec.Command, kind, appName)
	ec.Metadata["fast_path"] = map[string]any{
		"success":        fp.Success,
		"failure_reason": fp.FailureReason,
		"attempts":       fp.Attempts,
		"label":          fp.Target.Label,
		"execution_time": fp.ExecutionTime.Seconds(),
	}

	if fp.Success {
		ec.CompleteStep(models.StepFastPath)
		ec.CompleteStep(models.StepAction)
		o.play(ctx, desktop.CueSuccess)
		ec.CompleteStep(models.StepFeedback)
		res := o.result(ec, models.ResultStatusCompleted, true)
		res.PathUsed = PathFast
		res.Response = fmt.Sprintf("Done: %s %s", fp.Target.Action, fp.Target.Label)
		return res
	}

	switch fp.FailureReason {
	case ReasonFastPathDisabled, ReasonNotGUICommand, ReasonMissingText:
	default:
		o.monitor.RecordError(health.StatFastPathFailure)
	}
	ec.AddWarning("fast path unavailable: " + fp.FailureReason)
	o.logger.Debug("fast path failed, using vision",
		zap.String("execution_id", ec.ExecutionID),
		zap.String("reason", fp.FailureReason),
		zap.String("error", fp.Error))
	return o.executeVisionPath(ctx, ec)
}
