// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Newsletter, Feed, Article and Run,
// along with their validation rules and domain-specific errors.
package entity

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// NewsletterType identifies the editorial flavour of a newsletter.
type NewsletterType string

const (
	NewsletterTypeMarket  NewsletterType = "market"
	NewsletterTypeGeneral NewsletterType = "general"
)

// Verbosity controls how much detail the analyst report is asked to carry.
type Verbosity string

const (
	VerbosityLow    Verbosity = "low"
	VerbosityMedium Verbosity = "medium"
	VerbosityHigh   Verbosity = "high"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Newsletter is a configured publication: its feeds, watchlist, schedule and
// prompt settings. Newsletters are created and mutated through the admin
// surface; the pipeline only reads them.
type Newsletter struct {
	ID               int64
	Slug             string
	Name             string
	Timezone         string // IANA name, e.g. "America/New_York"
	ScheduleTimes    []string // ordered "HH:MM" in the newsletter's timezone
	Active           bool
	IncludeWatchlist bool
	Type             NewsletterType
	Verbosity        Verbosity
	CustomPrompt     string
	Recipients       []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate checks the Newsletter fields against the domain rules.
// Invalid timezones and malformed schedule times are rejected here so the
// scheduler never has to deal with them.
func (n *Newsletter) Validate() error {
	if n.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrValidation)
	}
	if !slugPattern.MatchString(n.Slug) {
		return fmt.Errorf("%w: slug must match [a-z0-9-]+", ErrValidation)
	}
	if n.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if n.Timezone == "" {
		return fmt.Errorf("%w: timezone is required", ErrValidation)
	}
	if _, err := time.LoadLocation(n.Timezone); err != nil {
		return fmt.Errorf("%w: invalid timezone %q", ErrValidation, n.Timezone)
	}
	for _, hhmm := range n.ScheduleTimes {
		if err := ValidateScheduleTime(hhmm); err != nil {
			return err
		}
	}
	switch n.Type {
	case NewsletterTypeMarket, NewsletterTypeGeneral:
	case "":
		n.Type = NewsletterTypeMarket
	default:
		return fmt.Errorf("%w: invalid newsletter type %q", ErrValidation, n.Type)
	}
	switch n.Verbosity {
	case VerbosityLow, VerbosityMedium, VerbosityHigh:
	case "":
		n.Verbosity = VerbosityMedium
	default:
		return fmt.Errorf("%w: invalid verbosity %q", ErrValidation, n.Verbosity)
	}
	return nil
}

// ValidateScheduleTime checks a 24h "HH:MM" schedule entry.
func ValidateScheduleTime(hhmm string) error {
	t, err := time.Parse("15:04", hhmm)
	if err != nil || t.Format("15:04") != hhmm {
		return fmt.Errorf("%w: schedule time %q must be HH:MM (24h)", ErrValidation, hhmm)
	}
	return nil
}

// Feed is a single RSS/Atom source attached to a newsletter.
// (newsletter_id, url) is unique; disabled feeds are skipped by the fetcher
// but retained for the admin surface.
type Feed struct {
	ID           int64
	NewsletterID int64
	URL          string
	Title        string
	Category     string
	Enabled      bool
	OrderIndex   int
}

// Validate checks the Feed fields.
func (f *Feed) Validate() error {
	if f.NewsletterID == 0 {
		return fmt.Errorf("%w: feed newsletter_id is required", ErrValidation)
	}
	u := strings.TrimSpace(f.URL)
	if u == "" {
		return fmt.Errorf("%w: feed url is required", ErrValidation)
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("%w: feed url must be http(s)", ErrValidation)
	}
	return nil
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.]+$`)

// WatchlistSymbol is an equity ticker tracked by a newsletter.
type WatchlistSymbol struct {
	NewsletterID int64
	Symbol       string
}

// NormalizeSymbol uppercases and validates a watchlist ticker.
func NormalizeSymbol(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if sym == "" || !symbolPattern.MatchString(sym) {
		return "", fmt.Errorf("%w: invalid symbol %q", ErrValidation, raw)
	}
	return sym, nil
}
