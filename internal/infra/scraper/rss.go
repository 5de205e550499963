// Package scraper provides implementations for fetching RSS/Atom feeds.
// It uses the gofeed library to parse feed content with reliability patterns:
// retry with backoff and a circuit breaker per feed hostname.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"marketbrief/internal/resilience/circuitbreaker"
	"marketbrief/internal/resilience/retry"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9"

// FeedItem is a single normalized item from an RSS/Atom feed.
// Items missing a title or link are dropped during parsing.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	PublishedAt *time.Time
}

// RSSFetcher fetches and parses one feed URL at a time. The per-request
// timeout and redirect following come from the injected HTTP client.
type RSSFetcher struct {
	client   *http.Client
	breakers *circuitbreaker.Registry
	retryCfg retry.Config
}

// NewRSSFetcher creates a new RSSFetcher with the given HTTP client.
// Hostnames get independent circuit breakers so one flapping publisher does
// not reject fetches for the rest.
func NewRSSFetcher(client *http.Client) *RSSFetcher {
	return &RSSFetcher{
		client:   client,
		breakers: circuitbreaker.NewRegistry(circuitbreaker.FeedHostConfig),
		retryCfg: retry.FeedFetchConfig(),
	}
}

// Fetch retrieves and parses an RSS/Atom feed from the given URL.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]FeedItem, error) {
	host := hostOf(feedURL)
	breaker := f.breakers.Get(host)

	var items []FeedItem
	retryErr := retry.WithBackoff(ctx, f.retryCfg, func() error {
		cbResult, err := breaker.Execute(func() (interface{}, error) {
			return f.doFetch(ctx, feedURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("host", host),
					slog.String("url", feedURL),
					slog.String("state", breaker.State().String()))
				return err
			}
			return err
		}
		items = cbResult.([]FeedItem)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return items, nil
}

// doFetch performs the actual feed fetch without retry or circuit breaker.
func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) ([]FeedItem, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "marketbrief-bot"
	fp.Client = &http.Client{
		Timeout:       f.client.Timeout,
		Transport:     &acceptHeaderTransport{inner: transportOf(f.client)},
		CheckRedirect: f.client.CheckRedirect,
	}

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		link := it.Link
		if link == "" && it.GUID != "" {
			link = it.GUID
		}
		// Title-less or link-less entries carry nothing to rank or cite.
		if it.Title == "" || link == "" {
			continue
		}

		var publishedAt *time.Time
		if it.PublishedParsed != nil {
			publishedAt = it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			publishedAt = it.UpdatedParsed
		}

		description := it.Description
		if description == "" {
			description = it.Content
		}

		items = append(items, FeedItem{
			Title:       it.Title,
			Link:        link,
			Description: description,
			PublishedAt: publishedAt,
		})
	}

	return items, nil
}

// acceptHeaderTransport advertises the feed media types on every request.
type acceptHeaderTransport struct {
	inner http.RoundTripper
}

func (t *acceptHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", feedAccept)
	return t.inner.RoundTrip(req)
}

func transportOf(client *http.Client) http.RoundTripper {
	if client.Transport != nil {
		return client.Transport
	}
	return http.DefaultTransport
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Hostname()
}
