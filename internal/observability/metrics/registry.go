// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track newsletter run outcomes and stage performance.
var (
	// RunsTotal counts pipeline runs by newsletter slug and terminal status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsletter_runs_total",
			Help: "Total number of newsletter pipeline runs",
		},
		[]string{"newsletter", "status"},
	)

	// RunDuration measures whole-run duration in seconds.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsletter_run_duration_seconds",
			Help:    "Newsletter pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"newsletter"},
	)

	// FeedFetchesTotal counts individual feed fetches by result.
	FeedFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetches_total",
			Help: "Total number of feed fetch attempts",
		},
		[]string{"result"},
	)

	// FeedFetchDuration measures per-feed fetch duration in seconds.
	FeedFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_duration_seconds",
			Help:    "Per-feed fetch and parse duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ArticlesSelected counts articles accepted by the selector per run.
	ArticlesSelected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "articles_selected_per_run",
			Help:    "Number of articles selected for the AI prompt per run",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		},
	)

	// CascadeAttemptsTotal counts LLM provider attempts by provider and result.
	CascadeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cascade_attempts_total",
			Help: "Total number of LLM cascade provider attempts",
		},
		[]string{"provider", "result"},
	)

	// AITokensTotal counts tokens reported by providers by direction.
	AITokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total LLM tokens by provider and direction (in/out)",
		},
		[]string{"provider", "direction"},
	)

	// EmailSendsTotal counts delivery attempts by transport and result.
	EmailSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_sends_total",
			Help: "Total number of digest email delivery attempts",
		},
		[]string{"transport", "result"},
	)

	// QuoteLookupsTotal counts market-data lookups by result.
	QuoteLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_quote_lookups_total",
			Help: "Total number of market quote lookups",
		},
		[]string{"result"},
	)
)
