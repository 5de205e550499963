package repository

import (
	"context"
	"time"

	"marketbrief/internal/domain/entity"
)

// RunRepository records run lifecycles, selections, quotes, digests and
// per-run logs. The status transition written by Finish is the last write of
// a run.
type RunRepository interface {
	// CreateStarted inserts the run row with status "started". It must be
	// committed before any run log row referencing the run.
	CreateStarted(ctx context.Context, run *entity.Run) error
	// Finish atomically writes the terminal status and counters.
	Finish(ctx context.Context, run *entity.Run) error

	Get(ctx context.Context, runID string) (*entity.Run, error)
	List(ctx context.Context, newsletterID int64, limit int) ([]*entity.Run, error)

	AddRunArticles(ctx context.Context, runID string, selections []entity.RunArticle) error

	// UpsertQuote persists one captured quote, keyed on (run_id, symbol).
	UpsertQuote(ctx context.Context, q *entity.MarketQuote) error
	ListQuotes(ctx context.Context, runID string) ([]*entity.MarketQuote, error)

	SaveDigest(ctx context.Context, d *entity.Digest) error
	GetDigest(ctx context.Context, runID string) (*entity.Digest, error)
	// LatestDigest returns the digest of the most recently started run that
	// produced one, optionally scoped to a newsletter (0 = any).
	LatestDigest(ctx context.Context, newsletterID int64) (*entity.Digest, error)

	AppendLog(ctx context.Context, e *entity.RunLogEntry) error
	ListLogs(ctx context.Context, runID string) ([]*entity.RunLogEntry, error)

	// DeleteRunsBefore removes runs started before the cutoff along with their
	// dependent rows. Retention is driven by a maintenance cron entry.
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
