package scraper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/observability/metrics"
)

// FeedResult is the all-settled outcome of fetching one feed. A failing feed
// never fails another; the error travels alongside the items instead.
type FeedResult struct {
	Feed  *entity.Feed
	Items []FeedItem
	OK    bool
	Err   error
}

// Fetcher is the single-feed capability FetchAll fans out over.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]FeedItem, error)
}

// FetchAll fetches every feed with at most maxInFlight requests running
// concurrently and waits for all of them. Results keep the input order.
func FetchAll(ctx context.Context, fetcher Fetcher, feeds []*entity.Feed, maxInFlight int) []FeedResult {
	if maxInFlight <= 0 {
		maxInFlight = 6
	}

	results := make([]FeedResult, len(feeds))
	eg := &errgroup.Group{}
	eg.SetLimit(maxInFlight)

	for i, feed := range feeds {
		i, feed := i, feed
		eg.Go(func() error {
			start := time.Now()
			items, err := fetcher.Fetch(ctx, feed.URL)
			metrics.RecordFeedFetch(err == nil, time.Since(start))

			if err != nil {
				results[i] = FeedResult{Feed: feed, OK: false, Err: err}
				return nil // all-settled: errors are data here
			}
			results[i] = FeedResult{Feed: feed, Items: items, OK: true}
			return nil
		})
	}

	_ = eg.Wait()
	return results
}
