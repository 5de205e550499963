package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketbrief/internal/observability/metrics"
	"marketbrief/internal/resilience/retry"
	"marketbrief/internal/usecase/selection"
)

const errorSnippetLimit = 500

// EventLogger receives the structured cascade events. The pipeline feeds
// them into the per-run log.
type EventLogger interface {
	Event(level, event string, fields map[string]any)
}

// Outcome is what the cascade hands back to the pipeline: either a provider
// report or the deterministic headlines document.
type Outcome struct {
	Markdown      string
	ProviderLabel string
	TokensIn      int
	TokensOut     int
	Degenerate    bool
}

// Cascade walks an ordered list of provider attempts.
type Cascade struct {
	providers      map[string]Provider
	attempts       []Attempt
	attemptTimeout time.Duration
	retryCfg       retry.Config
}

// NewCascade builds a cascade over the given providers and configured
// attempts. Attempts referencing an unregistered provider fail at run time
// and advance the cascade like any other provider failure.
func NewCascade(providers []Provider, attempts []Attempt, attemptTimeout time.Duration) *Cascade {
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.ID()] = p
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 60 * time.Second
	}
	return &Cascade{
		providers:      byID,
		attempts:       attempts,
		attemptTimeout: attemptTimeout,
		retryCfg:       retry.AIAPIConfig(),
	}
}

// Generate runs the cascade: each attempt gets up to three tries with
// exponential backoff, failures advance to the next provider, and an
// exhausted pipeline degrades to the headlines-only document. The returned
// error is non-nil only for cancellation.
func (c *Cascade) Generate(ctx context.Context, prompt Prompt, items []selection.Scored, events EventLogger) (Outcome, error) {
	for _, attempt := range c.attempts {
		// A run may be cancelled between providers.
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		result, err := c.tryAttempt(ctx, prompt, attempt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return Outcome{}, err
			}
			metrics.RecordCascadeAttempt(attempt.ProviderID, false)
			events.Event("warn", "ai.failed", aiFailedFields(attempt, err))
			continue
		}

		metrics.RecordCascadeAttempt(attempt.ProviderID, true)
		metrics.RecordAITokens(attempt.ProviderID, result.TokensIn, result.TokensOut)
		events.Event("info", "ai.result", map[string]any{
			"provider_id": attempt.ProviderID,
			"model_id":    attempt.ModelID,
			"tokens_in":   result.TokensIn,
			"tokens_out":  result.TokensOut,
		})
		return Outcome{
			Markdown:      result.Text,
			ProviderLabel: attempt.ProviderID + "/" + attempt.ModelID,
			TokensIn:      result.TokensIn,
			TokensOut:     result.TokensOut,
		}, nil
	}

	// The configured pipeline is exhausted: go straight to headlines, no
	// extra model attempts.
	events.Event("warn", "ai.exhausted", map[string]any{
		"attempts": len(c.attempts),
	})
	return Outcome{
		Markdown:      HeadlinesFallback(items),
		ProviderLabel: FallbackProviderLabel,
		Degenerate:    true,
	}, nil
}

func (c *Cascade) tryAttempt(ctx context.Context, prompt Prompt, attempt Attempt) (Result, error) {
	provider, ok := c.providers[attempt.ProviderID]
	if !ok {
		return Result{}, fmt.Errorf("provider %q not registered", attempt.ProviderID)
	}

	var result Result
	err := retry.WithBackoff(ctx, c.retryCfg, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		r, err := provider.Generate(attemptCtx, prompt, attempt)
		if err != nil {
			return err
		}
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("provider %s returned empty output", attempt.ProviderID)
		}
		result = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func aiFailedFields(attempt Attempt, err error) map[string]any {
	fields := map[string]any{
		"provider_id":   attempt.ProviderID,
		"model_id":      attempt.ModelID,
		"error_snippet": snippet(err.Error()),
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		fields["status"] = httpErr.StatusCode
	}
	return fields
}

func snippet(msg string) string {
	if len(msg) > errorSnippetLimit {
		return msg[:errorSnippetLimit]
	}
	return msg
}

// slogEvents adapts EventLogger onto the process logger for callers without
// a run context (the admin feed probe, tests).
type slogEvents struct{}

// SlogEvents returns an EventLogger writing to the default slog logger.
func SlogEvents() EventLogger { return slogEvents{} }

func (slogEvents) Event(level, event string, fields map[string]any) {
	args := make([]any, 0, len(fields)*2+2)
	args = append(args, slog.String("event", event))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	switch level {
	case "error":
		slog.Error(event, args...)
	case "warn":
		slog.Warn(event, args...)
	default:
		slog.Info(event, args...)
	}
}
