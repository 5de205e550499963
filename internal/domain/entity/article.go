package entity

import "time"

// Article is a deduplicated news item. Rows are created on first sighting,
// keyed by content hash, and never mutated afterwards.
type Article struct {
	ID           int64
	ContentHash  string
	Source       string // hostname of the canonical URL
	Title        string
	CanonicalURL string
	PublishedAt  *time.Time
	CreatedAt    time.Time
}

// SeenHash marks a content hash as already processed for a newsletter.
// Rows are eligible for windowed deletion via the reset-seen operation.
type SeenHash struct {
	ContentHash  string
	NewsletterID int64
	FirstSeenAt  time.Time
}
