package digest

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/resilience/retry"
	"marketbrief/internal/usecase/selection"
)

// fakeProvider scripts per-call outcomes.
type fakeProvider struct {
	id    string
	calls int
	fn    func(call int) (Result, error)
}

func (f *fakeProvider) ID() string { return f.id }
func (f *fakeProvider) Generate(_ context.Context, _ Prompt, _ Attempt) (Result, error) {
	f.calls++
	return f.fn(f.calls)
}

// recordingEvents captures cascade events for assertions.
type recordingEvents struct {
	events []string
	fields []map[string]any
}

func (r *recordingEvents) Event(_ string, event string, fields map[string]any) {
	r.events = append(r.events, event)
	r.fields = append(r.fields, fields)
}

func fastCascade(providers []Provider, attempts []Attempt) *Cascade {
	c := NewCascade(providers, attempts, time.Second)
	c.retryCfg = retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	return c
}

func someItems(n int) []selection.Scored {
	items := make([]selection.Scored, n)
	for i := range items {
		items[i] = selection.Scored{Item: selection.Item{
			Title:        "Headline",
			Source:       "example.com",
			CanonicalURL: "https://example.com/a",
		}}
	}
	return items
}

func TestCascadeFirstProviderSucceeds(t *testing.T) {
	primary := &fakeProvider{id: "openai", fn: func(int) (Result, error) {
		return Result{Text: "report", TokensIn: 10, TokensOut: 5}, nil
	}}
	secondary := &fakeProvider{id: "anthropic", fn: func(int) (Result, error) {
		t.Fatal("secondary must not be called")
		return Result{}, nil
	}}

	events := &recordingEvents{}
	c := fastCascade([]Provider{primary, secondary}, []Attempt{
		{ProviderID: "openai", ModelID: "gpt-5-mini"},
		{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"},
	})

	out, err := c.Generate(context.Background(), Prompt{}, someItems(3), events)
	require.NoError(t, err)
	assert.Equal(t, "report", out.Markdown)
	assert.Equal(t, "openai/gpt-5-mini", out.ProviderLabel)
	assert.False(t, out.Degenerate)
	assert.Equal(t, []string{"ai.result"}, events.events)
}

// Primary 429s through every backoff attempt, secondary succeeds on first
// try: one ai.failed carrying the status, one ai.result from the secondary.
func TestCascadeFallsBackOn429(t *testing.T) {
	primary := &fakeProvider{id: "openai", fn: func(int) (Result, error) {
		return Result{}, &retry.HTTPError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	}}
	secondary := &fakeProvider{id: "anthropic", fn: func(int) (Result, error) {
		return Result{Text: "secondary report", TokensIn: 20, TokensOut: 8}, nil
	}}

	events := &recordingEvents{}
	c := fastCascade([]Provider{primary, secondary}, []Attempt{
		{ProviderID: "openai", ModelID: "gpt-5-mini"},
		{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"},
	})

	out, err := c.Generate(context.Background(), Prompt{}, someItems(3), events)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.calls, "429 is retried to exhaustion")
	assert.Equal(t, 1, secondary.calls)
	assert.Equal(t, "secondary report", out.Markdown)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", out.ProviderLabel)

	require.Equal(t, []string{"ai.failed", "ai.result"}, events.events)
	assert.Equal(t, http.StatusTooManyRequests, events.fields[0]["status"])
}

// A 400 is terminal for the provider: no retries, straight to the next stage.
func TestCascade400NotRetried(t *testing.T) {
	primary := &fakeProvider{id: "openai", fn: func(int) (Result, error) {
		return Result{}, &retry.HTTPError{StatusCode: http.StatusBadRequest, Message: "bad request"}
	}}
	secondary := &fakeProvider{id: "anthropic", fn: func(int) (Result, error) {
		return Result{Text: "ok"}, nil
	}}

	c := fastCascade([]Provider{primary, secondary}, []Attempt{
		{ProviderID: "openai", ModelID: "gpt-5-mini"},
		{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"},
	})

	_, err := c.Generate(context.Background(), Prompt{}, someItems(1), &recordingEvents{})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
}

// All providers exhausted: the deterministic headlines document, capped at
// 12 entries, with the fallback provider label.
func TestCascadeDegenerateFallback(t *testing.T) {
	failing := &fakeProvider{id: "openai", fn: func(int) (Result, error) {
		return Result{}, &retry.HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	}}

	events := &recordingEvents{}
	c := fastCascade([]Provider{failing}, []Attempt{{ProviderID: "openai", ModelID: "gpt-5-mini"}})

	out, err := c.Generate(context.Background(), Prompt{}, someItems(15), events)
	require.NoError(t, err)
	assert.True(t, out.Degenerate)
	assert.Equal(t, FallbackProviderLabel, out.ProviderLabel)
	assert.Zero(t, out.TokensIn)
	assert.Zero(t, out.TokensOut)
	assert.Contains(t, out.Markdown, "### Headlines")
	assert.Equal(t, 12, strings.Count(out.Markdown, "- **"))
	assert.Equal(t, []string{"ai.failed", "ai.exhausted"}, events.events)
}

func TestCascadeEmptyOutputIsFailure(t *testing.T) {
	empty := &fakeProvider{id: "openai", fn: func(int) (Result, error) {
		return Result{Text: "   \n"}, nil
	}}
	c := fastCascade([]Provider{empty}, []Attempt{{ProviderID: "openai", ModelID: "gpt-5-mini"}})

	out, err := c.Generate(context.Background(), Prompt{}, someItems(2), &recordingEvents{})
	require.NoError(t, err)
	assert.True(t, out.Degenerate, "whitespace output must not count as success")
}

func TestCascadeCancelledBetweenProviders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeProvider{id: "openai", fn: func(int) (Result, error) {
		cancel()
		return Result{}, &retry.HTTPError{StatusCode: 500, Message: "boom"}
	}}
	secondary := &fakeProvider{id: "anthropic", fn: func(int) (Result, error) {
		t.Fatal("cancelled run must not advance to the next provider")
		return Result{}, nil
	}}

	c := fastCascade([]Provider{primary, secondary}, []Attempt{
		{ProviderID: "openai", ModelID: "gpt-5-mini"},
		{ProviderID: "anthropic", ModelID: "claude-sonnet-4-5"},
	})

	_, err := c.Generate(ctx, Prompt{}, someItems(1), &recordingEvents{})
	require.Error(t, err)
}

func TestPromptBuilder(t *testing.T) {
	n := &entity.Newsletter{
		Name:         "Daily Market",
		Timezone:     "America/New_York",
		Verbosity:    entity.VerbosityHigh,
		CustomPrompt: "Focus on semiconductors.",
	}
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	items := []selection.Scored{
		{Item: selection.Item{Title: "Chips rally", CanonicalURL: "https://a.example/chips", Source: "a.example", Description: "Semis up across the board."}},
		{Item: selection.Item{Title: "Yields drift", CanonicalURL: "https://b.example/yields", Source: "b.example"}},
	}
	quotes := []*entity.MarketQuote{
		{Symbol: "NVDA", Price: 131.20, ChangeAmount: -2.10, ChangePercent: -1.57},
	}

	prompt := BuildPrompt(PromptInput{
		Newsletter: n,
		Items:      items,
		Quotes:     quotes,
		Symbols:    []string{"NVDA"},
		Now:        now,
	})

	assert.Contains(t, prompt.System, "## SECTION 1 - MARKET PERFORMANCE")
	assert.Contains(t, prompt.System, "### LOOKING AHEAD (Tomorrow)")
	assert.Contains(t, prompt.System, "never emit placeholder tokens")

	assert.Contains(t, prompt.User, "Wednesday, March 12, 2025")
	assert.Contains(t, prompt.User, "US market status today: open")
	assert.Contains(t, prompt.User, "Tracked tickers: NVDA")
	assert.Contains(t, prompt.User, "| NVDA | 131.20 | -2.10 | -1.57% |")
	assert.Contains(t, prompt.User, "Focus on semiconductors.")
	assert.Contains(t, prompt.User, "1. Chips rally [https://a.example/chips]")
	assert.Contains(t, prompt.User, "2. Yields drift [https://b.example/yields]")
	assert.Contains(t, prompt.User, "a.example:")
	assert.Contains(t, prompt.User, "Semis up across the board.")
}

func TestTrimSnippet(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := trimSnippet(long)
	if len([]rune(got)) > 220 {
		t.Errorf("snippet length = %d runes, want <= 220", len([]rune(got)))
	}
	if trimSnippet("short one") != "short one" {
		t.Error("short snippets must pass through")
	}
}

func TestPipelineFromSettings(t *testing.T) {
	cfg := PipelineFromSettings(settingsFixture())
	require.Len(t, cfg.Pipeline, 2)
	assert.Equal(t, "openai", cfg.Pipeline[0].ProviderID)
	assert.Equal(t, "anthropic", cfg.Pipeline[1].ProviderID)
}
