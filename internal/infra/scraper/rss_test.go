package scraper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/scraper"
)

func TestRSSFetcher_Fetch_RSS(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <item>
      <title>Fed holds rates steady</title>
      <link>https://example.com/article1</link>
      <description>Description 1</description>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Oil rallies</title>
      <link>https://example.com/article2</link>
      <description>Description 2</description>
      <pubDate>Tue, 02 Jan 2024 00:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Link-less item is dropped</title>
      <description>no link at all</description>
    </item>
  </channel>
</rss>`
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rss))
	}))
	defer server.Close()

	fetcher := scraper.NewRSSFetcher(&http.Client{Timeout: 10 * time.Second})

	items, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("items length = %d, want 2", len(items))
	}
	if items[0].Title != "Fed holds rates steady" {
		t.Errorf("items[0].Title = %q", items[0].Title)
	}
	if items[0].Link != "https://example.com/article1" {
		t.Errorf("items[0].Link = %q", items[0].Link)
	}
	if items[0].PublishedAt == nil {
		t.Error("items[0].PublishedAt should be parsed")
	}
	if gotAccept == "" || gotAccept == "*/*" {
		t.Errorf("Accept header = %q, want feed media types", gotAccept)
	}
}

func TestRSSFetcher_Fetch_Atom(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atom := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <link href="https://example.com"/>
  <updated>2024-01-01T00:00:00Z</updated>
  <entry>
    <title>Atom headline</title>
    <link rel="alternate" href="https://example.com/atom1"/>
    <id>atom1</id>
    <updated>2024-01-01T00:00:00Z</updated>
    <summary>Atom Summary 1</summary>
  </entry>
</feed>`
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atom))
	}))
	defer server.Close()

	fetcher := scraper.NewRSSFetcher(&http.Client{Timeout: 10 * time.Second})

	items, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items length = %d, want 1", len(items))
	}
	if items[0].Title != "Atom headline" {
		t.Errorf("items[0].Title = %q", items[0].Title)
	}
	if items[0].Link != "https://example.com/atom1" {
		t.Errorf("items[0].Link = %q", items[0].Link)
	}
	if items[0].Description != "Atom Summary 1" {
		t.Errorf("items[0].Description = %q", items[0].Description)
	}
}

func TestRSSFetcher_Fetch_InvalidXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not xml"))
	}))
	defer server.Close()

	fetcher := scraper.NewRSSFetcher(&http.Client{Timeout: 10 * time.Second})
	if _, err := fetcher.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("Fetch() expected parse error")
	}
}

// stubFetcher lets pool tests control latency and failure per URL.
type stubFetcher struct {
	mu       sync.Mutex
	inflight int
	maxSeen  int
	fail     map[string]bool
}

func (s *stubFetcher) Fetch(_ context.Context, url string) ([]scraper.FeedItem, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxSeen {
		s.maxSeen = s.inflight
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()

	if s.fail[url] {
		return nil, errors.New("connection refused")
	}
	return []scraper.FeedItem{{Title: "t", Link: url}}, nil
}

func TestFetchAll_AllSettled(t *testing.T) {
	feeds := []*entity.Feed{
		{ID: 1, URL: "https://a.example/rss"},
		{ID: 2, URL: "https://b.example/rss"},
		{ID: 3, URL: "https://c.example/rss"},
	}
	stub := &stubFetcher{fail: map[string]bool{"https://b.example/rss": true}}

	results := scraper.FetchAll(context.Background(), stub, feeds, 2)

	if len(results) != 3 {
		t.Fatalf("results length = %d, want 3", len(results))
	}
	if !results[0].OK || results[1].OK || !results[2].OK {
		t.Errorf("OK flags = %v/%v/%v, want true/false/true", results[0].OK, results[1].OK, results[2].OK)
	}
	if results[1].Err == nil {
		t.Error("failing feed must carry its error")
	}
	if results[0].Feed.ID != 1 || results[2].Feed.ID != 3 {
		t.Error("results must keep input order")
	}
}

func TestFetchAll_BoundedConcurrency(t *testing.T) {
	feeds := make([]*entity.Feed, 12)
	for i := range feeds {
		feeds[i] = &entity.Feed{ID: int64(i), URL: "https://x.example/rss"}
	}
	stub := &stubFetcher{}

	scraper.FetchAll(context.Background(), stub, feeds, 3)

	if stub.maxSeen > 3 {
		t.Errorf("max in-flight = %d, want <= 3", stub.maxSeen)
	}
}
