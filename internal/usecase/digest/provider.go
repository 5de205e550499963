package digest

import "context"

// Attempt is one configured stage of the cascade.
type Attempt struct {
	// ProviderID selects the provider implementation ("openai", "anthropic").
	ProviderID string `yaml:"provider"`

	// ModelID is the provider's model identifier. OpenAI models whose ID
	// carries a responses-shape prefix are sent through the responses API.
	ModelID string `yaml:"model"`

	// ReasoningEffort is passed to responses-shape models when set.
	ReasoningEffort string `yaml:"reasoning_effort,omitempty"`

	// MaxOutputTokens bounds the generated report.
	MaxOutputTokens int `yaml:"max_output_tokens,omitempty"`
}

// Result is a successful generation.
type Result struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Provider executes one attempt. Implementations shape the request, parse
// the response and classify failures (retry.HTTPError for status-bearing
// errors, so the cascade can distinguish retryable from terminal).
type Provider interface {
	// ID matches Attempt.ProviderID.
	ID() string

	// Generate runs one model call and extracts its text output. Empty or
	// whitespace-only output is an error.
	Generate(ctx context.Context, prompt Prompt, attempt Attempt) (Result, error)
}
