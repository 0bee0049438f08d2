package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/health"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/reply"
	"github.com/joescharf/deskpilot/internal/state"
)

// DeferredActionType is the only deferred action currently supported.
const DeferredActionType = "type"

const previewLength = 120

// Spoken deferred-action feedback.
const (
	msgClickToPlace = "Content ready. Click where you want it placed."
	msgPlaced       = "Done. The content has been placed."
	msgPlaceFailed  = "Sorry, I couldn't place the content."
	msgTimedOut     = "The pending action timed out and was cancelled."
	msgBusy         = "System busy. The pending action was cancelled."
)

var errNoListener = errors.New("mouse listener unavailable: deferred actions need a click listener")

func buildContentPrompt(text, contentType, target, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n", text)
	if target != "" {
		fmt.Fprintf(&b, "Generate: %s\n", target)
	}
	fmt.Fprintf(&b, "Content type: %s\n", contentType)
	if language != "" {
		fmt.Fprintf(&b, "Language: %s\n", language)
	}
	return b.String()
}

// handleDeferredActionRequest generates content and arms the listener so the
// content is typed at the user's next click.
func (o *Orchestrator) handleDeferredActionRequest(ctx context.Context, ec *models.ExecutionContext) *models.Result {
	id := ec.ExecutionID
	c := o.collaborators()

	fail := func(msg string, err error) *models.Result {
		o.monitor.RecordError(health.StatDeferredFailure)
		ec.AddError(msg, err)
		o.play(ctx, desktop.CueFailure)
		if o.speak(ctx, "Sorry, I couldn't prepare that. "+msg+".") {
			ec.CompleteStep(models.StepFeedback)
		}
		text := msg
		if err != nil {
			text = msg + ": " + err.Error()
		}
		return o.failure(ec, text)
	}

	if c.Listener == nil {
		o.monitor.RecordError(health.StatDeferredFailure)
		ec.AddError(errNoListener.Error(), nil)
		o.speak(ctx, "I can't watch for clicks right now, so I can't place content.")
		return o.failure(ec, errNoListener.Error())
	}
	if c.Reasoner == nil {
		return fail("content generation failed", fmt.Errorf("reasoning: %w", desktop.ErrUnavailable))
	}

	contentType := ec.IntentResult.StringParam("content_type", "text")
	target := ec.IntentResult.StringParam("target", "")
	language := ec.IntentResult.StringParam("language", "")
	ec.Metadata["content_type"] = contentType
	if target != "" {
		ec.Metadata["target"] = target
	}

	o.state.RecordTransition(models.TransitionDeferredGen, id, map[string]any{"phase": string(models.PhaseGenerating)})
	raw, err := c.Reasoner.GenerateContent(ctx, buildContentPrompt(ec.Command, contentType, target, language))
	if err != nil {
		return fail("content generation failed", err)
	}
	text, err := reply.Text(raw)
	if err != nil {
		return fail("content generation failed", err)
	}
	fenceLang := reply.FenceLanguage(text)
	if language == "" {
		language = fenceLang
	}
	content := reply.StripFences(text)
	if contentType != "code" && fenceLang != "" {
		contentType = "code"
		ec.Metadata["content_type"] = contentType
	}
	if contentType == "code" {
		content = formatCode(content, language)
	}
	if strings.TrimSpace(content) == "" {
		return fail("content generation failed", reply.ErrNoContent)
	}
	if language != "" {
		ec.Metadata["language"] = language
	}
	ec.CompleteStep(models.StepGeneration)

	var (
		armErr     error
		superseded string
		now        = time.Now()
	)
	err = o.state.WithDeferred(ctx, o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if !s.Idle() || s.MouseListener != nil {
			superseded = s.CurrentExecutionID
			s.ResetDeferred()
		}

		clicks, err := c.Listener.Start()
		if err != nil {
			armErr = err
			return
		}
		waitCtx, stop := context.WithCancel(context.Background())
		payload := content

		s.PendingPayload = &payload
		s.DeferredActionType = DeferredActionType
		s.WaitingForUserAction = true
		s.Mode = models.ModeWaitingForUser
		s.DeferredStart = now
		s.DeferredTimeout = now.Add(o.cfg.DeferredTimeout)
		s.MouseListener = c.Listener
		s.MouseListenerActive = true
		s.CurrentExecutionID = id
		s.StopWaiting = stop
		s.Watchdog = time.AfterFunc(o.cfg.DeferredTimeout, func() { o.handleDeferredTimeout(id) })

		o.wg.Add(1)
		go o.awaitClick(waitCtx, id, c.Listener, clicks)
	})
	if superseded != "" {
		o.state.RecordTransition(models.TransitionInterrupted, superseded, map[string]any{
			"phase":         string(models.PhaseInterrupted),
			"superseded_by": id,
		})
	}
	if err != nil {
		return fail("could not arm the click listener", err)
	}
	if armErr != nil {
		return fail("could not arm the click listener", armErr)
	}
	ec.CompleteStep(models.StepArmed)

	o.state.RecordTransition(models.TransitionDeferredArm, id, map[string]any{
		"phase":   string(models.PhaseWaitingForClick),
		"timeout": o.cfg.DeferredTimeout.String(),
	})
	o.logger.Info("deferred action armed",
		zap.String("execution_id", id),
		zap.String("content_type", contentType),
		zap.Int("content_length", len(content)))

	o.play(ctx, desktop.CueListening)
	if o.speak(ctx, msgClickToPlace) {
		ec.CompleteStep(models.StepFeedback)
	}

	res := o.result(ec, models.ResultStatusWaitingForUser, true)
	res.ContentPreview = state.Preview(content, previewLength)
	res.Instructions = msgClickToPlace
	return res
}

// awaitClick hands the next click to the trigger. It exits when the wait is
// reset or the click arrives.
func (o *Orchestrator) awaitClick(ctx context.Context, id string, l desktop.MouseListener, clicks <-chan desktop.Point) {
	defer o.wg.Done()
	select {
	case <-ctx.Done():
	case p, ok := <-clicks:
		if !ok {
			return
		}
		o.onDeferredTrigger(context.Background(), id, l, p)
	}
}

// onDeferredTrigger types the pending payload at the clicked position. It is
// idempotent: a stale execution id or a trigger that is already executing
// makes it a no-op.
func (o *Orchestrator) onDeferredTrigger(ctx context.Context, id string, l desktop.MouseListener, clicked desktop.Point) {
	log := o.logger.With(zap.String("execution_id", id))

	lock := o.state.ExecutionLock()
	if err := lock.Acquire(ctx, o.cfg.TriggerLockTimeout); err != nil {
		o.monitor.RecordError(health.StatLockTimeout)
		log.Warn("deferred trigger could not acquire execution lock", zap.Error(err))
		defer o.resetIfCurrent(id, models.TransitionDeferredFail, map[string]any{
			"phase":  string(models.PhaseFailed),
			"reason": "execution lock timeout",
		})
		o.speak(ctx, msgBusy)
		return
	}
	defer lock.Release()

	var (
		payload string
		claimed bool
	)
	err := o.state.WithDeferred(ctx, o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if s.CurrentExecutionID != id || s.PendingPayload == nil || s.DeferredExecuting {
			return
		}
		s.DeferredExecuting = true
		s.MouseListenerActive = false
		if s.Watchdog != nil {
			s.Watchdog.Stop()
		}
		payload = *s.PendingPayload
		claimed = true
	})
	if err != nil {
		log.Warn("deferred trigger could not acquire state lock", zap.Error(err))
		return
	}
	if !claimed {
		log.Debug("ignoring stale or duplicate click")
		return
	}
	o.state.RecordTransition(models.TransitionDeferredExec, id, map[string]any{"phase": string(models.PhaseExecuting)})

	var failure error
	defer func() {
		if failure != nil {
			o.monitor.RecordError(health.StatDeferredFailure)
			log.Warn("deferred action failed", zap.Error(failure))
			o.resetIfCurrent(id, models.TransitionDeferredFail, map[string]any{
				"phase": string(models.PhaseFailed),
				"error": failure.Error(),
			})
			o.play(ctx, desktop.CueFailure)
			o.speak(ctx, msgPlaceFailed)
			return
		}
		log.Info("deferred action completed")
		o.resetIfCurrent(id, models.TransitionDeferredDone, map[string]any{"phase": string(models.PhaseCompleted)})
		o.play(ctx, desktop.CueSuccess)
		o.speak(ctx, msgPlaced)
	}()

	at, ok := l.LastClick()
	if !ok {
		at = clicked
	}
	auto := o.collaborators().Automation
	if auto == nil {
		failure = fmt.Errorf("automation: %w", desktop.ErrUnavailable)
		return
	}
	if r := auto.Execute(ctx, desktop.Action{Kind: desktop.ActionClick, Point: &at}); !r.Success {
		failure = fmt.Errorf("click at %s: %s", at, r.Error)
		return
	}
	if r := auto.Execute(ctx, desktop.Action{Kind: desktop.ActionType, Text: payload}); !r.Success {
		failure = fmt.Errorf("type payload: %s", r.Error)
	}
}

// handleDeferredTimeout cancels a wait whose deadline passed, unless its
// click is already executing.
func (o *Orchestrator) handleDeferredTimeout(id string) {
	ctx := context.Background()
	cancelled := false
	err := o.state.WithDeferred(ctx, o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if s.CurrentExecutionID != id || !s.WaitingForUserAction || s.DeferredExecuting {
			return
		}
		s.ResetDeferred()
		cancelled = true
	})
	if err != nil {
		o.logger.Warn("deferred timeout could not acquire state lock", zap.String("execution_id", id), zap.Error(err))
		return
	}
	if !cancelled {
		return
	}
	o.state.RecordTransition(models.TransitionTimedOut, id, map[string]any{"phase": string(models.PhaseTimedOut)})
	o.logger.Info("deferred action timed out", zap.String("execution_id", id))
	o.play(ctx, desktop.CueCancel)
	o.speak(ctx, msgTimedOut)
}

// resetIfCurrent resets the deferred state if it still belongs to id.
func (o *Orchestrator) resetIfCurrent(id, transition string, detail map[string]any) bool {
	reset := false
	err := o.state.WithDeferred(context.Background(), o.cfg.StateLockTimeout, func(s *state.SystemState) {
		if s.CurrentExecutionID != id {
			return
		}
		s.ResetDeferred()
		reset = true
	})
	if err != nil {
		o.logger.Warn("deferred reset could not acquire state lock", zap.String("execution_id", id), zap.Error(err))
		return false
	}
	if reset {
		o.state.RecordTransition(transition, id, detail)
	}
	return reset
}
