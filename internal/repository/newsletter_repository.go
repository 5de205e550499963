// Package repository defines the persistence interfaces consumed by the use
// case layer. Implementations live under internal/infra/adapter/persistence.
package repository

import (
	"context"

	"marketbrief/internal/domain/entity"
)

// NewsletterRepository manages newsletter definitions and their owned feeds
// and watchlist symbols.
type NewsletterRepository interface {
	Create(ctx context.Context, n *entity.Newsletter) error
	Update(ctx context.Context, n *entity.Newsletter) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*entity.Newsletter, error)
	GetBySlug(ctx context.Context, slug string) (*entity.Newsletter, error)
	List(ctx context.Context) ([]*entity.Newsletter, error)
	// ListActive returns newsletters with Active == true, the set the
	// scheduler materializes trigger jobs for.
	ListActive(ctx context.Context) ([]*entity.Newsletter, error)

	ListFeeds(ctx context.Context, newsletterID int64) ([]*entity.Feed, error)
	// ListEnabledFeeds returns enabled feeds ordered by order_index; the
	// pipeline fetches exactly this set.
	ListEnabledFeeds(ctx context.Context, newsletterID int64) ([]*entity.Feed, error)
	CreateFeed(ctx context.Context, f *entity.Feed) error
	UpdateFeed(ctx context.Context, f *entity.Feed) error
	DeleteFeed(ctx context.Context, id int64) error

	ListSymbols(ctx context.Context, newsletterID int64) ([]string, error)
	// ReplaceSymbols swaps the watchlist atomically.
	ReplaceSymbols(ctx context.Context, newsletterID int64, symbols []string) error
}
