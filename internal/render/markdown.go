// Package render produces the digest artifacts: safe HTML from the model's
// Markdown and the inline-styled email template. The Markdown support is a
// deliberate subset driven by a line-wise state machine; everything outside
// it renders as an escaped paragraph.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	mdLinkPattern      = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	bracketURLPattern  = regexp.MustCompile(`\[(https?://[^\]\s]+)\]`)
	bareURLPattern     = regexp.MustCompile(`https?://[^\s<>"']+`)
	boldPattern        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern      = regexp.MustCompile(`\*([^*\s][^*]*)\*`)
	orderedItemPattern = regexp.MustCompile(`^\d+\.\s+(.*)$`)
)

type listState int

const (
	listNone listState = iota
	listUnordered
	listOrdered
)

// Markdown converts the supported subset to HTML. Input is HTML-escaped
// before any emphasis or link substitution; every generated anchor opens in
// a new tab with rel="noopener noreferrer".
func Markdown(src string) string {
	var b strings.Builder
	state := listNone

	closeList := func() {
		switch state {
		case listUnordered:
			b.WriteString("</ul>\n")
		case listOrdered:
			b.WriteString("</ol>\n")
		}
		state = listNone
	}

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			closeList()

		case strings.HasPrefix(trimmed, "### "):
			closeList()
			b.WriteString("<h3>" + inline(strings.TrimPrefix(trimmed, "### ")) + "</h3>\n")

		case strings.HasPrefix(trimmed, "## "):
			closeList()
			b.WriteString("<h2>" + inline(strings.TrimPrefix(trimmed, "## ")) + "</h2>\n")

		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			if state != listUnordered {
				closeList()
				b.WriteString("<ul>\n")
				state = listUnordered
			}
			b.WriteString("<li>" + inline(trimmed[2:]) + "</li>\n")

		case orderedItemPattern.MatchString(trimmed):
			if state != listOrdered {
				closeList()
				b.WriteString("<ol>\n")
				state = listOrdered
			}
			b.WriteString("<li>" + inline(orderedItemPattern.FindStringSubmatch(trimmed)[1]) + "</li>\n")

		default:
			closeList()
			b.WriteString("<p>" + inline(trimmed) + "</p>\n")
		}
	}
	closeList()

	return b.String()
}

// inline escapes a line and applies emphasis and link substitution. Links are
// lifted into placeholders first so the bare-URL pass cannot rewrite an href
// that is already an anchor.
func inline(s string) string {
	s = html.EscapeString(s)

	var anchors []string
	hold := func(a string) string {
		anchors = append(anchors, a)
		return fmt.Sprintf("\x00%d\x00", len(anchors)-1)
	}

	s = mdLinkPattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := mdLinkPattern.FindStringSubmatch(m)
		return hold(anchor(parts[2], parts[1]))
	})
	s = bracketURLPattern.ReplaceAllStringFunc(s, func(m string) string {
		u := bracketURLPattern.FindStringSubmatch(m)[1]
		return hold(anchor(u, u))
	})

	s = boldPattern.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicPattern.ReplaceAllString(s, "<em>$1</em>")

	s = bareURLPattern.ReplaceAllStringFunc(s, func(u string) string {
		return anchor(u, u)
	})

	for i, a := range anchors {
		s = strings.Replace(s, fmt.Sprintf("\x00%d\x00", i), a, 1)
	}
	return s
}

func anchor(href, text string) string {
	return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`, href, text)
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags removes markup for the plain-text alternative, unescaping the
// entities the renderer introduced.
func StripTags(htmlSrc string) string {
	text := htmlSrc
	text = strings.ReplaceAll(text, "</h2>", "\n\n")
	text = strings.ReplaceAll(text, "</h3>", "\n\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</li>", "\n")
	text = strings.ReplaceAll(text, "<li>", "- ")
	text = tagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}
