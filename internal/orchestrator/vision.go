package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
)

var errEmptyPlan = errors.New("plan has no actions")

// executeVisionPath describes the screen, asks for a plan and executes it.
// Each failing stage is recorded and omitted from the completed steps; the
// perception result survives in metadata even when later stages fail.
func (o *Orchestrator) executeVisionPath(ctx context.Context, ec *models.ExecutionContext) *models.Result {
	c := o.collaborators()
	fail := func(stage string, err error) *models.Result {
		o.monitor.RecordError(health.StatVisionFailure)
		ec.AddError(stage+" failed", err)
		o.logger.Info("vision path failed",
			zap.String("execution_id", ec.ExecutionID),
			zap.String("stage", stage),
			zap.Error(err))
		o.play(ctx, desktop.CueFailure)
		if o.speak(ctx, "Sorry, I couldn't complete that action.") {
			ec.CompleteStep(models.StepFeedback)
		}
		res := o.failure(ec, fmt.Sprintf("%s failed: %v", stage, err))
		res.PathUsed = PathVision
		return res
	}

	if c.Vision == nil {
		return fail("perception", desktop.ErrUnavailable)
	}
	screen, err := c.Vision.DescribeScreen(ctx, "full")
	if err != nil {
		return fail("perception", err)
	}
	if screen == nil {
		screen = &desktop.ScreenDescription{}
	}
	ec.CompleteStep(models.StepPerception)
	ec.Metadata["screen_description"] = screen.Description
	ec.Metadata["screen_elements"] = len(screen.Elements)

	if c.Reasoner == nil {
		return fail("reasoning", desktop.ErrUnavailable)
	}
	plan, err := c.Reasoner.GetActionPlan(ctx, ec.Command, screen)
	if err != nil {
		return fail("reasoning", err)
	}
	if plan == nil || len(plan.Actions) == 0 {
		return fail("reasoning", errEmptyPlan)
	}
	ec.CompleteStep(models.StepReasoning)
	ec.Metadata["planned_actions"] = len(plan.Actions)
	if plan.Explanation != "" {
		ec.Metadata["plan_explanation"] = plan.Explanation
	}

	if c.Automation == nil {
		return fail("action", desktop.ErrUnavailable)
	}
	for i, a := range plan.Actions {
		ar := c.Automation.Execute(ctx, a)
		ec.Metadata["actions_executed"] = i
		if !ar.Success {
			return fail("action", fmt.Errorf("step %d (%s): %s", i+1, a.Kind, ar.Error))
		}
	}
	ec.Metadata["actions_executed"] = len(plan.Actions)
	ec.CompleteStep(models.StepAction)

	msg := plan.Explanation
	if msg == "" {
		msg = "Done."
	}
	o.play(ctx, desktop.CueSuccess)
	if o.speak(ctx, msg) {
		ec.CompleteStep(models.StepFeedback)
	}

	res := o.result(ec, models.ResultStatusCompleted, true)
	res.PathUsed = PathVision
	res.Response = msg
	return res
}
