// Package llm implements the reasoning and screen-description collaborators
// on top of the Anthropic Messages API.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/reply"
)

// Client wraps the Anthropic API for intent classification, content
// generation, chat, and action planning.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

func (c *Client) complete(ctx context.Context, system string, maxTokens int64, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text, nil
}

// ClassifyIntent asks the model for an intent label, confidence and parameters.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (json.RawMessage, error) {
	out, err := c.complete(ctx, intentSystemPrompt, 512, anthropic.NewTextBlock(text))
	if err != nil {
		return nil, err
	}
	return reply.Flat(out), nil
}

// GenerateContent produces code or prose for a deferred action.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (json.RawMessage, error) {
	out, err := c.complete(ctx, contentSystemPrompt, 4096, anthropic.NewTextBlock(prompt))
	if err != nil {
		return nil, err
	}
	return reply.Flat(out), nil
}

// Chat produces a conversational reply for a fully assembled prompt.
func (c *Client) Chat(ctx context.Context, prompt string) (json.RawMessage, error) {
	out, err := c.complete(ctx, chatSystemPrompt, 1024, anthropic.NewTextBlock(prompt))
	if err != nil {
		return nil, err
	}
	return reply.Flat(out), nil
}

// GetActionPlan turns a command and a screen description into primitive actions.
func (c *Client) GetActionPlan(ctx context.Context, command string, screen *desktop.ScreenDescription) (*desktop.Plan, error) {
	out, err := c.complete(ctx, planSystemPrompt, 2048, anthropic.NewTextBlock(buildPlanPrompt(command, screen)))
	if err != nil {
		return nil, err
	}
	return parsePlan(out)
}

// Capturer returns PNG screenshots.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// ScreenDescriber implements desktop.Vision with a screenshot and a vision-capable model.
type ScreenDescriber struct {
	client   *Client
	capturer Capturer
}

// NewScreenDescriber pairs a client with a screen capturer.
func NewScreenDescriber(client *Client, capturer Capturer) *ScreenDescriber {
	return &ScreenDescriber{client: client, capturer: capturer}
}

func (d *ScreenDescriber) DescribeScreen(ctx context.Context, analysisType string) (*desktop.ScreenDescription, error) {
	img, err := d.capturer.Capture(ctx)
	if err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(img)
	out, err := d.client.complete(ctx, screenSystemPrompt, 2048,
		anthropic.NewImageBlockBase64("image/png", encoded),
		anthropic.NewTextBlock(buildScreenPrompt(analysisType)),
	)
	if err != nil {
		return nil, err
	}

	desc, err := parseScreen(out)
	if err != nil {
		return nil, err
	}
	desc.Metadata["analysis_type"] = analysisType
	desc.Metadata["image_bytes"] = len(img)
	return desc, nil
}

func parsePlan(text string) (*desktop.Plan, error) {
	text = reply.StripFences(text)
	var plan desktop.Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if len(plan.Actions) == 0 {
		return nil, fmt.Errorf("action plan is empty")
	}
	return &plan, nil
}

func parseScreen(text string) (*desktop.ScreenDescription, error) {
	text = reply.StripFences(text)
	var desc desktop.ScreenDescription
	if err := json.Unmarshal([]byte(text), &desc); err != nil {
		// A prose answer is still a usable description.
		desc = desktop.ScreenDescription{Description: strings.TrimSpace(text)}
	}
	if desc.Description == "" && len(desc.Elements) == 0 {
		return nil, fmt.Errorf("empty screen description")
	}
	if desc.Metadata == nil {
		desc.Metadata = make(map[string]any)
	}
	return &desc, nil
}
