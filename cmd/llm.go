package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/joescharf/deskpilot/internal/desktop"
	"github.com/joescharf/deskpilot/internal/llm"
)

// newLLMClient creates an LLM client from config/env, or returns nil if no API key is configured.
func newLLMClient() *llm.Client {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model"))
}

// newScreenDescriber pairs the LLM client with the configured screenshot command.
func newScreenDescriber(client *llm.Client) (*llm.ScreenDescriber, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: no Anthropic API key configured", desktop.ErrUnavailable)
	}
	shot, err := desktop.NewExecScreenshotter(viper.GetString("vision.screenshot_cmd"))
	if err != nil {
		return nil, err
	}
	return llm.NewScreenDescriber(client, shot), nil
}
