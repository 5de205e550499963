package render

import (
	"strings"
	"testing"
	"time"

	"marketbrief/internal/domain/entity"
)

func TestMarkdownHeadings(t *testing.T) {
	got := Markdown("## SECTION 1 - MARKET PERFORMANCE\n\n### LOOKING AHEAD (Tomorrow)")
	if !strings.Contains(got, "<h2>SECTION 1 - MARKET PERFORMANCE</h2>") {
		t.Errorf("missing h2, got %q", got)
	}
	if !strings.Contains(got, "<h3>LOOKING AHEAD (Tomorrow)</h3>") {
		t.Errorf("missing h3, got %q", got)
	}
}

func TestMarkdownLists(t *testing.T) {
	got := Markdown("- first\n- second\n\n1. one\n2. two\n")
	if strings.Count(got, "<li>") != 4 {
		t.Errorf("want 4 list items, got %q", got)
	}
	if !strings.Contains(got, "<ul>") || !strings.Contains(got, "</ul>") {
		t.Errorf("unordered list not closed, got %q", got)
	}
	if !strings.Contains(got, "<ol>") || !strings.Contains(got, "</ol>") {
		t.Errorf("ordered list not closed, got %q", got)
	}
	// The ordered list must be its own element, not merged into the ul.
	if strings.Index(got, "</ul>") > strings.Index(got, "<ol>") {
		t.Errorf("list state machine failed to switch, got %q", got)
	}
}

func TestMarkdownEmphasis(t *testing.T) {
	got := Markdown("**bold** and *italic* words")
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Errorf("bold missing, got %q", got)
	}
	if !strings.Contains(got, "<em>italic</em>") {
		t.Errorf("italic missing, got %q", got)
	}
}

func TestMarkdownLinks(t *testing.T) {
	got := Markdown("see [the story](https://example.com/a?x=1&y=2) here")
	if !strings.Contains(got, `href="https://example.com/a?x=1&amp;y=2"`) {
		t.Errorf("escaped href missing, got %q", got)
	}
	if !strings.Contains(got, `target="_blank" rel="noopener noreferrer"`) {
		t.Errorf("anchor attributes missing, got %q", got)
	}
	if !strings.Contains(got, ">the story</a>") {
		t.Errorf("link text missing, got %q", got)
	}
}

func TestMarkdownBracketedAndBareURLs(t *testing.T) {
	got := Markdown("ref [https://example.com/b] and bare https://example.com/c end")
	if strings.Count(got, `target="_blank"`) != 2 {
		t.Errorf("want 2 anchors, got %q", got)
	}
	if !strings.Contains(got, ">https://example.com/b</a>") {
		t.Errorf("bracketed URL text missing, got %q", got)
	}
}

// Escaping happens before substitution: raw HTML in model output must never
// reach the digest unescaped.
func TestMarkdownEscapesHTML(t *testing.T) {
	got := Markdown(`<script>alert("x")</script> & <img onerror=1>`)
	if strings.Contains(got, "<script>") || strings.Contains(got, "<img") {
		t.Fatalf("raw HTML leaked: %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Errorf("escaped entities missing, got %q", got)
	}
}

func TestMarkdownUnknownConstructs(t *testing.T) {
	got := Markdown("> blockquote is not supported\n| nor | tables |")
	if strings.Count(got, "<p>") != 2 {
		t.Errorf("unknown constructs must become paragraphs, got %q", got)
	}
}

func TestStripTags(t *testing.T) {
	text := StripTags(Markdown("## Heading\n\n- **bold** item with [link](https://example.com/a)\n"))
	if strings.Contains(text, "<") {
		t.Errorf("tags survived: %q", text)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "- bold item") {
		t.Errorf("content lost: %q", text)
	}
}

func TestSubject(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	localNow := time.Date(2025, 3, 12, 6, 30, 0, 0, loc)
	got := Subject("Daily Market", localNow)
	want := "Daily Market — Wednesday, Mar 12"
	if got != want {
		t.Errorf("Subject() = %q, want %q", got, want)
	}
}

func TestEmail(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	in := EmailInput{
		NewsletterName: "Daily Market",
		LocalNow:       time.Date(2025, 3, 12, 6, 30, 0, 0, loc),
		MarketDay:      true,
		Quotes: []*entity.MarketQuote{
			{Symbol: "AAPL", Price: 211.50, ChangeAmount: 1.25, ChangePercent: 0.59},
			{Symbol: "NVDA", Price: 131.20, ChangeAmount: -2.10, ChangePercent: -1.57},
		},
		SummaryMarkdown: "## SECTION 1 - MARKET PERFORMANCE\n\n- steady day",
		Symbols:         []string{"AAPL", "NVDA"},
	}

	html := Email(in)

	for _, want := range []string{
		"max-width:720px",
		"Market Day",
		"Daily Market",
		"<h2>SECTION 1 - MARKET PERFORMANCE</h2>",
		"Tracking: AAPL, NVDA",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Email() missing %q", want)
		}
	}
	if strings.Contains(html, "<style") {
		t.Error("template must not use style blocks")
	}
	// Gains green, losses red.
	if !strings.Contains(html, `color:#1a7f37;font-weight:400;">+1.25<`) {
		t.Errorf("gain not colored green: %s", html)
	}
	if !strings.Contains(html, `color:#cf222e;font-weight:400;">-2.10<`) {
		t.Errorf("loss not colored red: %s", html)
	}
}

func TestText(t *testing.T) {
	in := EmailInput{
		NewsletterName: "Daily Market",
		LocalNow:       time.Date(2025, 3, 12, 6, 30, 0, 0, time.UTC),
		Quotes: []*entity.MarketQuote{
			{Symbol: "AAPL", Price: 211.50, ChangeAmount: 1.25, ChangePercent: 0.59},
		},
		SummaryMarkdown: "## Heading\n\n- item one",
		Symbols:         []string{"AAPL"},
	}

	text := Text(in)
	for _, want := range []string{
		"- AAPL: 211.50 (+1.25, +0.59%)",
		"Heading",
		"- item one",
		"Tracking: AAPL",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q in %q", want, text)
		}
	}
	if strings.Contains(text, "<") {
		t.Errorf("Text() contains markup: %q", text)
	}
}
