package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/state"
)

// route dispatches a classified command to exactly one handler. It runs with
// the execution lock held.
func (o *Orchestrator) route(ctx context.Context, ec *models.ExecutionContext) (res *models.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("handler panic", zap.String("execution_id", ec.ExecutionID), zap.Any("panic", r))
			ec.AddError(fmt.Sprintf("internal error: %v", r), nil)
			res = o.failure(ec, "internal error")
		}
	}()

	o.interruptPending(ctx, ec.ExecutionID)
	o.setProcessing(ctx, ec.ExecutionID)
	defer o.settleMode(ctx, ec.ExecutionID)

	switch ec.IntentResult.Intent {
	case models.IntentConversational:
		return o.handleConversation(ctx, ec)
	case models.IntentDeferredAction:
		return o.handleDeferredActionRequest(ctx, ec)
	case models.IntentQuestionAnswering:
		return o.handleQuestion(ctx, ec)
	default:
		return o.handleGUI(ctx, ec)
	}
}

// interruptPending cancels a deferred action that is still waiting for its
// click. A click that is already executing is left alone.
func (o *Orchestrator) interruptPending(ctx context.Context, executionID string) {
	var interrupted string
	err := o.state.WithDeferred(ctx, o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if !s.WaitingForUserAction || s.DeferredExecuting {
			return
		}
		interrupted = s.CurrentExecutionID
		s.ResetDeferred()
	})
	if err != nil {
		o.logger.Warn("interrupt check skipped", zap.Error(err))
		return
	}
	if interrupted == "" {
		return
	}

	o.state.RecordTransition(models.TransitionInterrupted, interrupted, map[string]any{
		"phase":         string(models.PhaseInterrupted),
		"superseded_by": executionID,
	})
	o.logger.Info("pending deferred action interrupted",
		zap.String("execution_id", interrupted),
		zap.String("superseded_by", executionID))
	if o.cfg.AnnounceInterruptions {
		o.play(ctx, desktop.CueCancel)
		o.speak(ctx, "Cancelled the pending action.")
	}
}

func (o *Orchestrator) setProcessing(ctx context.Context, executionID string) {
	changed := false
	err := o.state.WithDeferred(ctx, o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if s.WaitingForUserAction {
			return
		}
		s.Mode = models.ModeProcessing
		changed = true
	})
	if err != nil {
		o.logger.Warn("set processing mode", zap.Error(err))
		return
	}
	if changed {
		o.state.RecordTransition(models.TransitionProcessing, executionID, nil)
	}
}

// settleMode returns the mode to ready unless a deferred action is now waiting.
func (o *Orchestrator) settleMode(ctx context.Context, executionID string) {
	changed := false
	err := o.state.WithDeferred(context.WithoutCancel(ctx), o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if s.Mode == models.ModeProcessing && !s.WaitingForUserAction {
			s.Mode = models.ModeReady
			changed = true
		}
	})
	if err != nil {
		o.logger.Warn("settle mode", zap.Error(err))
		return
	}
	if changed {
		o.state.RecordTransition(models.TransitionReady, executionID, nil)
	}
}

// checkTimeoutConditions lazily expires a deferred action whose deadline has
// passed, in case the watchdog has not fired yet.
func (o *Orchestrator) checkTimeoutConditions() {
	var (
		id      string
		expired bool
	)
	o.state.Read(func(s state.SystemState) {
		if s.WaitingForUserAction && !s.DeferredExecuting && !s.DeferredTimeout.IsZero() &&
			time.Now().After(s.DeferredTimeout) {
			id = s.CurrentExecutionID
			expired = true
		}
	})
	if expired {
		o.handleDeferredTimeout(id)
	}
}
