// Package market looks up equity quotes for watchlist symbols. Lookups are
// sequential and rate limited to respect vendor quotas; a failed symbol is
// skipped and never fails the run.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"marketbrief/internal/observability/metrics"
	"marketbrief/internal/resilience/retry"
)

// Quote is a vendor-neutral equity quote.
type Quote struct {
	Symbol        string
	Price         float64
	ChangeAmount  float64
	ChangePercent float64
}

// Config holds the vendor endpoint configuration.
type Config struct {
	// BaseURL is the quote endpoint; the symbol is appended as ?symbol=X.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestsPerSecond caps the vendor call rate.
	RequestsPerSecond float64
}

// DefaultConfig returns conservative client settings.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		RequestsPerSecond: 2,
	}
}

// Client fetches quotes over plain HTTP JSON.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a quote client. A zero BaseURL disables lookups; Lookup
// then returns no quotes.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Enabled reports whether a vendor endpoint is configured.
func (c *Client) Enabled() bool {
	return c.cfg.BaseURL != ""
}

// Lookup fetches quotes for the given symbols sequentially. Symbols whose
// response is missing or carries non-finite numbers are skipped.
func (c *Client) Lookup(ctx context.Context, symbols []string) []Quote {
	if !c.Enabled() || len(symbols) == 0 {
		return nil
	}

	quotes := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		if err := c.limiter.Wait(ctx); err != nil {
			return quotes
		}
		q, err := c.fetchQuote(ctx, symbol)
		if err != nil {
			metrics.RecordQuoteLookup(false)
			continue
		}
		metrics.RecordQuoteLookup(true)
		quotes = append(quotes, q)
	}
	return quotes
}

// vendorQuote accepts the field names seen across quote vendors; the first
// non-nil alias wins.
type vendorQuote struct {
	Price         *float64 `json:"price"`
	Last          *float64 `json:"last"`
	C             *float64 `json:"c"`
	Change        *float64 `json:"change"`
	ChangeAmount  *float64 `json:"change_amount"`
	D             *float64 `json:"d"`
	ChangePercent *float64 `json:"change_percent"`
	ChangePct     *float64 `json:"changesPercentage"`
	DP            *float64 `json:"dp"`
}

func (c *Client) fetchQuote(ctx context.Context, symbol string) (Quote, error) {
	endpoint := c.cfg.BaseURL + "?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("create quote request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("execute quote request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Quote{}, fmt.Errorf("read quote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Quote{}, &retry.HTTPError{StatusCode: resp.StatusCode, Message: "quote lookup failed"}
	}

	var v vendorQuote
	if err := json.Unmarshal(body, &v); err != nil {
		return Quote{}, fmt.Errorf("decode quote response: %w", err)
	}

	price, ok := firstFinite(v.Price, v.Last, v.C)
	if !ok {
		return Quote{}, fmt.Errorf("quote for %s missing price", symbol)
	}
	change, ok := firstFinite(v.Change, v.ChangeAmount, v.D)
	if !ok {
		return Quote{}, fmt.Errorf("quote for %s missing change", symbol)
	}
	pct, ok := firstFinite(v.ChangePercent, v.ChangePct, v.DP)
	if !ok {
		return Quote{}, fmt.Errorf("quote for %s missing change percent", symbol)
	}

	return Quote{Symbol: symbol, Price: price, ChangeAmount: change, ChangePercent: pct}, nil
}

func firstFinite(candidates ...*float64) (float64, bool) {
	for _, c := range candidates {
		if c != nil && !math.IsNaN(*c) && !math.IsInf(*c, 0) {
			return *c, true
		}
	}
	return 0, false
}
