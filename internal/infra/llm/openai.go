package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"marketbrief/internal/resilience/retry"
	"marketbrief/internal/usecase/digest"
)

// DefaultResponsesPrefixes are the model-ID prefixes routed through the
// responses request shape instead of chat completions.
var DefaultResponsesPrefixes = []string{"gpt-5", "o3", "o4"}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey string

	// BaseURL overrides the API endpoint (tests, proxies). Defaults to the
	// public API.
	BaseURL string

	// ResponsesPrefixes selects which model IDs use the responses shape.
	ResponsesPrefixes []string
}

// OpenAIProvider supports both request shapes: chat completions through the
// go-openai client, and the responses API as a typed JSON POST (the SDK has
// no surface for it).
type OpenAIProvider struct {
	cfg    OpenAIConfig
	chat   *openai.Client
	http   *http.Client
	apiURL string
}

// NewOpenAIProvider creates the provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if len(cfg.ResponsesPrefixes) == 0 {
		cfg.ResponsesPrefixes = DefaultResponsesPrefixes
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &OpenAIProvider{
		cfg:    cfg,
		chat:   openai.NewClientWithConfig(clientCfg),
		http:   &http.Client{},
		apiURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

// ID implements digest.Provider.
func (p *OpenAIProvider) ID() string { return "openai" }

// Generate implements digest.Provider, picking the request shape by model ID
// prefix.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt digest.Prompt, attempt digest.Attempt) (digest.Result, error) {
	if p.usesResponsesShape(attempt.ModelID) {
		return p.generateResponses(ctx, prompt, attempt)
	}
	return p.generateChat(ctx, prompt, attempt)
}

func (p *OpenAIProvider) usesResponsesShape(modelID string) bool {
	for _, prefix := range p.cfg.ResponsesPrefixes {
		if strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) generateChat(ctx context.Context, prompt digest.Prompt, attempt digest.Attempt) (digest.Result, error) {
	req := openai.ChatCompletionRequest{
		Model:       attempt.ModelID,
		Temperature: 0.4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
	}
	if attempt.MaxOutputTokens > 0 {
		req.MaxTokens = attempt.MaxOutputTokens
	}

	resp, err := p.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return digest.Result{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return digest.Result{}, fmt.Errorf("openai chat returned no choices")
	}

	return digest.Result{
		Text:      resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

// responsesRequest is the responses-shape wire format: one instruction plus
// the input text, with optional reasoning effort.
type responsesRequest struct {
	Model           string            `json:"model"`
	Instructions    string            `json:"instructions"`
	Input           string            `json:"input"`
	MaxOutputTokens int               `json:"max_output_tokens,omitempty"`
	Reasoning       *reasoningOptions `json:"reasoning,omitempty"`
}

type reasoningOptions struct {
	Effort string `json:"effort"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) generateResponses(ctx context.Context, prompt digest.Prompt, attempt digest.Attempt) (digest.Result, error) {
	reqBody := responsesRequest{
		Model:           attempt.ModelID,
		Instructions:    prompt.System,
		Input:           prompt.User,
		MaxOutputTokens: attempt.MaxOutputTokens,
	}
	if attempt.ReasoningEffort != "" {
		reqBody.Reasoning = &reasoningOptions{Effort: attempt.ReasoningEffort}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return digest.Result{}, fmt.Errorf("marshal responses request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return digest.Result{}, fmt.Errorf("create responses request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return digest.Result{}, fmt.Errorf("execute responses request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return digest.Result{}, fmt.Errorf("read responses body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return digest.Result{}, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    "openai responses api error",
		}
	}

	var parsed responsesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return digest.Result{}, fmt.Errorf("decode responses body: %w", err)
	}

	text := parsed.OutputText
	if strings.TrimSpace(text) == "" {
		var b strings.Builder
		for _, out := range parsed.Output {
			for _, content := range out.Content {
				b.WriteString(content.Text)
			}
		}
		text = b.String()
	}
	if strings.TrimSpace(text) == "" {
		return digest.Result{}, fmt.Errorf("openai responses returned empty output")
	}

	return digest.Result{
		Text:      text,
		TokensIn:  parsed.Usage.InputTokens,
		TokensOut: parsed.Usage.OutputTokens,
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: "openai api error"}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: "openai request error"}
	}
	return fmt.Errorf("openai api: %w", err)
}
