// Package digest asks the LLM cascade for the analyst report: it shapes the
// prompt, walks the configured provider pipeline with retries and fallback,
// and synthesizes the deterministic headlines document when every provider
// fails.
package digest

import (
	"fmt"
	"strings"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/usecase/selection"
)

// Prompt is the provider-neutral request content. Providers shape it into
// their own wire format.
type Prompt struct {
	// System is the analyst role instruction.
	System string

	// User carries the context block and the headlines.
	User string
}

// PromptInput collects everything the builder needs for one run.
type PromptInput struct {
	Newsletter *entity.Newsletter
	Items      []selection.Scored
	Quotes     []*entity.MarketQuote
	Symbols    []string
	Now        time.Time
}

const snippetLimit = 220

const systemInstruction = `You are a seasoned financial analyst writing a daily newsletter briefing.
Produce a Markdown report with exactly these headings, in this order:

## SECTION 1 - MARKET PERFORMANCE
## SECTION 2 - TOP MARKET & ECONOMY STORIES (5 stories)
## SECTION 3 - GENERAL NEWS STORIES (10 stories)
### LOOKING AHEAD (Tomorrow)

Write concise, factual analysis grounded in the supplied headlines and quotes.
Always write literal calendar dates: never emit placeholder tokens such as [Today] or [Tomorrow's Date].`

// BuildPrompt assembles the three-part prompt: system instruction, context
// block and numbered headlines with per-source snippets.
func BuildPrompt(in PromptInput) Prompt {
	loc, err := time.LoadLocation(in.Newsletter.Timezone)
	if err != nil {
		loc = time.UTC
	}
	localNow := in.Now.In(loc)

	var b strings.Builder

	b.WriteString("## Context\n")
	fmt.Fprintf(&b, "Date: %s\n", localNow.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "US market status today: %s\n", MarketStatusFor(localNow))
	if len(in.Symbols) > 0 {
		fmt.Fprintf(&b, "Tracked tickers: %s\n", strings.Join(in.Symbols, ", "))
	}
	if len(in.Quotes) > 0 {
		b.WriteString("\nLatest quotes:\n")
		b.WriteString("| Symbol | Price | Change | % |\n")
		for _, q := range in.Quotes {
			fmt.Fprintf(&b, "| %s | %.2f | %+.2f | %+.2f%% |\n",
				q.Symbol, q.Price, q.ChangeAmount, q.ChangePercent)
		}
	}
	switch in.Newsletter.Verbosity {
	case entity.VerbosityLow:
		b.WriteString("\nKeep each story to a single tight sentence.\n")
	case entity.VerbosityHigh:
		b.WriteString("\nGive each story two to three sentences of analysis.\n")
	}
	if custom := strings.TrimSpace(in.Newsletter.CustomPrompt); custom != "" {
		b.WriteString("\nAdditional editorial guidance:\n")
		b.WriteString(custom)
		b.WriteString("\n")
	}

	b.WriteString("\n## Headlines\n")
	for i, s := range in.Items {
		fmt.Fprintf(&b, "%d. %s [%s]\n", i+1, s.Item.Title, s.Item.CanonicalURL)
	}

	b.WriteString("\n## By source\n")
	bySource := make(map[string][]selection.Scored)
	order := make([]string, 0, 8)
	for _, s := range in.Items {
		if _, ok := bySource[s.Item.Source]; !ok {
			order = append(order, s.Item.Source)
		}
		bySource[s.Item.Source] = append(bySource[s.Item.Source], s)
	}
	for _, source := range order {
		fmt.Fprintf(&b, "\n%s:\n", source)
		for _, s := range bySource[source] {
			fmt.Fprintf(&b, "- %s", s.Item.Title)
			if snippet := trimSnippet(s.Item.Description); snippet != "" {
				fmt.Fprintf(&b, " — %s", snippet)
			}
			b.WriteString("\n")
		}
	}

	return Prompt{System: systemInstruction, User: b.String()}
}

// trimSnippet bounds a description to the snippet limit on a rune boundary.
func trimSnippet(description string) string {
	s := strings.Join(strings.Fields(description), " ")
	runes := []rune(s)
	if len(runes) <= snippetLimit {
		return s
	}
	return string(runes[:snippetLimit-1]) + "…"
}

// HeadlinesFallback synthesizes the deterministic headlines-only Markdown
// document used when the cascade is exhausted.
func HeadlinesFallback(items []selection.Scored) string {
	const maxHeadlines = 12

	var b strings.Builder
	b.WriteString("### Headlines\n\n")
	for i, s := range items {
		if i == maxHeadlines {
			break
		}
		fmt.Fprintf(&b, "- **%s** — [%s](%s)\n", s.Item.Title, s.Item.Source, s.Item.CanonicalURL)
	}
	return b.String()
}

// FallbackProviderLabel is recorded on the run when the headlines fallback
// produced the digest.
const FallbackProviderLabel = "headlines-only"
