package repository

import (
	"context"
	"time"

	"marketbrief/internal/domain/entity"
)

// ArticleWithRank pairs a selected article with its rank and score in a run.
type ArticleWithRank struct {
	Article *entity.Article
	Rank    int
	Score   float64
}

// ArticleRepository manages the global article table and the per-newsletter
// seen set. The two are written together: marking an item seen and creating
// its article row happen in one short transaction per batch.
type ArticleRepository interface {
	// FilterSeen returns, for each content hash, whether it already exists in
	// the newsletter's seen set. Batch form of the dedupe check.
	FilterSeen(ctx context.Context, newsletterID int64, hashes []string) (map[string]bool, error)

	// MarkSeen inserts seen-hash rows and article rows (insert-ignore on
	// content_hash, first-seen-wins) in a single transaction and returns the
	// article ID for each hash.
	MarkSeen(ctx context.Context, newsletterID int64, articles []*entity.Article) (map[string]int64, error)

	// ResetSeenWindow deletes seen-hash rows for the newsletter whose
	// first_seen_at falls within the past window. Returns the in-window row
	// counts before and after deletion plus the number deleted.
	ResetSeenWindow(ctx context.Context, newsletterID int64, window time.Duration) (before, deleted, after int64, err error)

	Get(ctx context.Context, id int64) (*entity.Article, error)
	ListByRun(ctx context.Context, runID string) ([]ArticleWithRank, error)
}
