package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/models"
	"github.com/joescharf/deskpilot/internal/reply"
)

const persona = `You are DeskPilot, a friendly desktop assistant that is spoken to by voice.
Answer in one to three short sentences that read well aloud. Do not use markdown.`

// Apology is spoken when no reply can be produced.
const Apology = "Sorry, I can't come up with an answer right now. Please try again in a moment."

const (
	fallbackCanned = "canned_apology"
)

// buildChatPrompt renders the persona, prior turns, optional screen context
// and the new message.
func buildChatPrompt(history []models.ConversationTurn, screen, text string) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.User, t.Assistant)
		}
		b.WriteString("\n")
	}
	if screen != "" {
		fmt.Fprintf(&b, "The user's screen currently shows:\n%s\n\n", screen)
	}
	fmt.Fprintf(&b, "User: %s\nAssistant:", text)
	return b.String()
}

// handleConversation answers chit-chat through the reasoning collaborator.
func (o *Orchestrator) handleConversation(ctx context.Context, ec *models.ExecutionContext) *models.Result {
	return o.converse(ctx, ec, "", models.StepConversation)
}

// handleQuestion answers a question about the screen. Without vision the
// question is answered conversationally.
func (o *Orchestrator) handleQuestion(ctx context.Context, ec *models.ExecutionContext) *models.Result {
	vis := o.collaborators().Vision
	if vis == nil {
		ec.AddWarning("vision unavailable, answering without screen context")
		return o.converse(ctx, ec, "", models.StepConversation)
	}

	screen, err := vis.DescribeScreen(ctx, "question")
	if err != nil || screen == nil {
		if err == nil {
			err = fmt.Errorf("empty screen description")
		}
		ec.AddWarning("screen description failed: " + err.Error())
		return o.converse(ctx, ec, "", models.StepConversation)
	}
	ec.CompleteStep(models.StepPerception)
	ec.Metadata["screen_description"] = screen.Description
	return o.converse(ctx, ec, screen.Description, models.StepAnswer)
}

func (o *Orchestrator) converse(ctx context.Context, ec *models.ExecutionContext, screen, step string) *models.Result {
	r := o.collaborators().Reasoner
	if r == nil {
		return o.apologize(ctx, ec, fmt.Errorf("reasoning: %w", desktop.ErrUnavailable))
	}

	// The conversation lock is not held across the call.
	prompt := buildChatPrompt(o.state.Conversation(), screen, ec.Command)
	raw, err := r.Chat(ctx, prompt)
	if err != nil {
		return o.apologize(ctx, ec, err)
	}
	answer, err := reply.Text(raw)
	if err != nil {
		return o.apologize(ctx, ec, fmt.Errorf("parse reply: %w", err))
	}
	ec.CompleteStep(step)

	o.state.AppendConversation(ec.Command, answer)
	if o.speak(ctx, answer) {
		ec.CompleteStep(models.StepFeedback)
	}

	res := o.result(ec, models.ResultStatusCompleted, true)
	res.Response = answer
	return res
}

// apologize reports a soft failure: the user hears an apology and the
// command still counts as handled.
func (o *Orchestrator) apologize(ctx context.Context, ec *models.ExecutionContext, cause error) *models.Result {
	o.logger.Info("conversation fell back",
		zap.String("execution_id", ec.ExecutionID),
		zap.Error(cause))
	ec.AddWarning("reply unavailable: " + cause.Error())
	ec.Metadata["fallback_strategy"] = fallbackCanned
	ec.Metadata["fallback_reason"] = cause.Error()
	if o.speak(ctx, Apology) {
		ec.CompleteStep(models.StepFeedback)
	}
	res := o.result(ec, models.ResultStatusCompleted, true)
	res.Response = Apology
	return res
}
