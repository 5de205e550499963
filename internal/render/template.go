package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"marketbrief/internal/domain/entity"
)

// EmailInput collects everything the template needs for one digest.
type EmailInput struct {
	NewsletterName string
	// LocalNow is the run time in the newsletter's timezone.
	LocalNow time.Time
	// MarketDay selects the header badge.
	MarketDay bool
	Quotes    []*entity.MarketQuote
	// SummaryMarkdown is the model's (or fallback's) report.
	SummaryMarkdown string
	Symbols         []string
}

// Subject builds the email subject line: name, weekday, short month and day
// in the newsletter's timezone.
func Subject(newsletterName string, localNow time.Time) string {
	return fmt.Sprintf("%s — %s, %s %d",
		newsletterName, localNow.Format("Monday"), localNow.Format("Jan"), localNow.Day())
}

const (
	colorUp   = "#1a7f37"
	colorDown = "#cf222e"
	colorText = "#1f2328"
	colorDim  = "#57606a"
)

// Email renders the full HTML body: a single centered column of at most
// 720px, inline styles only, header badge, color-coded quote table, the
// rendered summary and a footer with the tracked symbols.
func Email(in EmailInput) string {
	badge := "Market Closed"
	badgeColor := colorDim
	if in.MarketDay {
		badge = "Market Day"
		badgeColor = colorUp
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body style="margin:0;padding:0;background:#f6f8fa;">`)
	b.WriteString(`<div style="max-width:720px;margin:0 auto;padding:24px 16px;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif;color:` + colorText + `;">`)

	// Header
	b.WriteString(`<div style="background:#ffffff;border:1px solid #d0d7de;border-radius:8px;padding:20px 24px;margin-bottom:16px;">`)
	fmt.Fprintf(&b, `<h1 style="margin:0 0 4px 0;font-size:22px;">%s</h1>`, html.EscapeString(in.NewsletterName))
	fmt.Fprintf(&b, `<span style="font-size:13px;color:%s;font-weight:600;">%s</span>`, badgeColor, badge)
	fmt.Fprintf(&b, `<span style="font-size:13px;color:%s;"> · %s</span>`, colorDim, in.LocalNow.Format("Monday, January 2, 2006"))
	b.WriteString(`</div>`)

	// Market performance table
	if len(in.Quotes) > 0 {
		b.WriteString(`<div style="background:#ffffff;border:1px solid #d0d7de;border-radius:8px;padding:16px 24px;margin-bottom:16px;">`)
		b.WriteString(`<table style="width:100%;border-collapse:collapse;font-size:14px;">`)
		b.WriteString(`<tr>` +
			th("Symbol") + th("Price") + th("Change") + th("%") + `</tr>`)
		for _, q := range in.Quotes {
			color := colorUp
			if q.ChangeAmount < 0 {
				color = colorDown
			}
			b.WriteString(`<tr>`)
			b.WriteString(td(html.EscapeString(q.Symbol), colorText, true))
			b.WriteString(td(fmt.Sprintf("%.2f", q.Price), colorText, false))
			b.WriteString(td(fmt.Sprintf("%+.2f", q.ChangeAmount), color, false))
			b.WriteString(td(fmt.Sprintf("%+.2f%%", q.ChangePercent), color, false))
			b.WriteString(`</tr>`)
		}
		b.WriteString(`</table></div>`)
	}

	// Summary
	b.WriteString(`<div style="background:#ffffff;border:1px solid #d0d7de;border-radius:8px;padding:20px 24px;margin-bottom:16px;font-size:15px;line-height:1.55;">`)
	b.WriteString(Markdown(in.SummaryMarkdown))
	b.WriteString(`</div>`)

	// Footer
	b.WriteString(`<div style="text-align:center;font-size:12px;color:` + colorDim + `;padding:8px 0 24px 0;">`)
	if len(in.Symbols) > 0 {
		fmt.Fprintf(&b, `Tracking: %s`, html.EscapeString(strings.Join(in.Symbols, ", ")))
	}
	b.WriteString(`</div>`)

	b.WriteString(`</div></body></html>`)
	return b.String()
}

func th(label string) string {
	return fmt.Sprintf(`<th style="text-align:left;padding:6px 8px;border-bottom:1px solid #d0d7de;font-size:12px;color:%s;">%s</th>`, colorDim, label)
}

func td(value, color string, bold bool) string {
	weight := "400"
	if bold {
		weight = "600"
	}
	return fmt.Sprintf(`<td style="padding:6px 8px;border-bottom:1px solid #f0f3f6;color:%s;font-weight:%s;">%s</td>`, color, weight, value)
}

// Text renders the plain-text alternative: the market table bulletized, then
// the summary with tags stripped.
func Text(in EmailInput) string {
	var b strings.Builder
	b.WriteString(in.NewsletterName + "\n")
	b.WriteString(in.LocalNow.Format("Monday, January 2, 2006") + "\n\n")

	if len(in.Quotes) > 0 {
		b.WriteString("Market performance:\n")
		for _, q := range in.Quotes {
			fmt.Fprintf(&b, "- %s: %.2f (%+.2f, %+.2f%%)\n", q.Symbol, q.Price, q.ChangeAmount, q.ChangePercent)
		}
		b.WriteString("\n")
	}

	b.WriteString(StripTags(Markdown(in.SummaryMarkdown)))

	if len(in.Symbols) > 0 {
		b.WriteString("\n\nTracking: " + strings.Join(in.Symbols, ", ") + "\n")
	}
	return b.String()
}
