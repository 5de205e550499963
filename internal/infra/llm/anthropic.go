// Package llm provides the LLM cascade provider implementations. Each
// provider shapes the neutral prompt into its wire format, extracts the text
// output, and classifies failures so the cascade can tell retryable from
// terminal.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"marketbrief/internal/resilience/retry"
	"marketbrief/internal/usecase/digest"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates the provider with the given API key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// ID implements digest.Provider.
func (p *AnthropicProvider) ID() string { return "anthropic" }

// Generate implements digest.Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt digest.Prompt, attempt digest.Attempt) (digest.Result, error) {
	maxTokens := attempt.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(attempt.ModelID),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: prompt.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	})
	if err != nil {
		return digest.Result{}, classifyAnthropicError(err)
	}

	var text string
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	if text == "" {
		return digest.Result{}, fmt.Errorf("anthropic returned no text content")
	}

	return digest.Result{
		Text:      text,
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
	}, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &retry.HTTPError{
			StatusCode: apiErr.StatusCode,
			Message:    "anthropic api error",
		}
	}
	return fmt.Errorf("anthropic api: %w", err)
}
