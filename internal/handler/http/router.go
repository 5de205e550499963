// Package http provides the HTTP surface: the admin API consumed by the UI,
// the unauthenticated public digest URLs, health probes and Prometheus
// metrics. Authentication is delegated to an identity proxy in front of the
// admin routes.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketbrief/internal/infra/scraper"
	"marketbrief/internal/observability/logging"
	"marketbrief/internal/pkg/settings"
	"marketbrief/internal/repository"
	"marketbrief/internal/usecase/pipeline"
)

// PipelineRunner is the slice of the pipeline service the handlers need.
type PipelineRunner interface {
	Run(ctx context.Context, newsletterID int64) (pipeline.RunResult, error)
	Cancel(runID string) bool
}

// Server bundles the handler dependencies.
type Server struct {
	Newsletters repository.NewsletterRepository
	Articles    repository.ArticleRepository
	Runs        repository.RunRepository
	Settings    *settings.Service
	Pipeline    PipelineRunner
	Fetcher     scraper.Fetcher
	Ring        *logging.Ring
	Logger      *slog.Logger

	// ReloadSchedule is invoked after newsletter mutations; nil disables it.
	ReloadSchedule func() error

	ready atomic.Bool
}

// SetReady flips the readiness probe once the scheduler is running.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Router builds the chi router with CORS for the admin origin.
func (s *Server) Router(allowedOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if allowedOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{allowedOrigin},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Public, unauthenticated.
	r.Get("/health", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/latest", s.handleLatestDigest)
	r.Get("/runs/{runID}/digest", s.handlePublicDigest)
	r.Handle("/metrics", promhttp.Handler())

	// Admin (identity proxy in front).
	r.Route("/admin", func(r chi.Router) {
		r.Get("/newsletters", s.handleListNewsletters)
		r.Post("/newsletters", s.handleCreateNewsletter)
		r.Get("/newsletters/{id}", s.handleGetNewsletter)
		r.Put("/newsletters/{id}", s.handleUpdateNewsletter)
		r.Delete("/newsletters/{id}", s.handleDeleteNewsletter)

		r.Get("/newsletters/{id}/feeds", s.handleListFeeds)
		r.Post("/newsletters/{id}/feeds", s.handleCreateFeed)
		r.Put("/feeds/{feedID}", s.handleUpdateFeed)
		r.Delete("/feeds/{feedID}", s.handleDeleteFeed)
		r.Post("/feeds/probe", s.handleProbeFeed)

		r.Get("/newsletters/{id}/watchlist", s.handleGetWatchlist)
		r.Put("/newsletters/{id}/watchlist", s.handlePutWatchlist)

		r.Post("/newsletters/{id}/run", s.handleManualRun)
		r.Post("/newsletters/{id}/reset-seen", s.handleResetSeen)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/logs", s.handleRunLogs)
		r.Post("/runs/{runID}/cancel", s.handleCancelRun)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)

		r.Get("/logs", s.handleRingLogs)
	})

	return r
}
