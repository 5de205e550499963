package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/db"
	"marketbrief/internal/repository"
)

// NewsletterRepo implements repository.NewsletterRepository over database/sql.
type NewsletterRepo struct {
	db     *sql.DB
	driver db.Driver
}

// NewNewsletterRepo creates a new SQL-backed newsletter repository.
func NewNewsletterRepo(database *sql.DB, driver db.Driver) repository.NewsletterRepository {
	return &NewsletterRepo{db: database, driver: driver}
}

const newsletterColumns = `id, slug, name, timezone, schedule_times, active, include_watchlist,
newsletter_type, verbosity, custom_prompt, recipients, created_at, updated_at`

func (repo *NewsletterRepo) Create(ctx context.Context, n *entity.Newsletter) error {
	times, err := json.Marshal(emptyIfNil(n.ScheduleTimes))
	if err != nil {
		return fmt.Errorf("Create: marshal schedule_times: %w", err)
	}
	recipients, err := json.Marshal(emptyIfNil(n.Recipients))
	if err != nil {
		return fmt.Errorf("Create: marshal recipients: %w", err)
	}

	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	query := rebind(repo.driver, `
INSERT INTO newsletters
(slug, name, timezone, schedule_times, active, include_watchlist, newsletter_type, verbosity, custom_prompt, recipients, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	res, err := repo.db.ExecContext(ctx, query,
		n.Slug, n.Name, n.Timezone, string(times), n.Active, n.IncludeWatchlist,
		string(n.Type), string(n.Verbosity), n.CustomPrompt, string(recipients),
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: slug %q: %w", n.Slug, entity.ErrConflict)
		}
		return fmt.Errorf("Create: ExecContext: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		n.ID = id
	}
	return nil
}

func (repo *NewsletterRepo) Update(ctx context.Context, n *entity.Newsletter) error {
	times, err := json.Marshal(emptyIfNil(n.ScheduleTimes))
	if err != nil {
		return fmt.Errorf("Update: marshal schedule_times: %w", err)
	}
	recipients, err := json.Marshal(emptyIfNil(n.Recipients))
	if err != nil {
		return fmt.Errorf("Update: marshal recipients: %w", err)
	}
	n.UpdatedAt = time.Now().UTC()

	query := rebind(repo.driver, `
UPDATE newsletters SET
	slug = ?, name = ?, timezone = ?, schedule_times = ?, active = ?,
	include_watchlist = ?, newsletter_type = ?, verbosity = ?, custom_prompt = ?,
	recipients = ?, updated_at = ?
WHERE id = ?
`)
	res, err := repo.db.ExecContext(ctx, query,
		n.Slug, n.Name, n.Timezone, string(times), n.Active, n.IncludeWatchlist,
		string(n.Type), string(n.Verbosity), n.CustomPrompt, string(recipients),
		n.UpdatedAt, n.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Update: slug %q: %w", n.Slug, entity.ErrConflict)
		}
		return fmt.Errorf("Update: ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("Update: newsletter %d: %w", n.ID, entity.ErrNotFound)
	}
	return nil
}

func (repo *NewsletterRepo) Delete(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, rebind(repo.driver, `DELETE FROM newsletters WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("Delete: ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("Delete: newsletter %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (repo *NewsletterRepo) Get(ctx context.Context, id int64) (*entity.Newsletter, error) {
	query := rebind(repo.driver, `SELECT `+newsletterColumns+` FROM newsletters WHERE id = ? LIMIT 1`)
	return repo.scanOne(repo.db.QueryRowContext(ctx, query, id))
}

func (repo *NewsletterRepo) GetBySlug(ctx context.Context, slug string) (*entity.Newsletter, error) {
	query := rebind(repo.driver, `SELECT `+newsletterColumns+` FROM newsletters WHERE slug = ? LIMIT 1`)
	return repo.scanOne(repo.db.QueryRowContext(ctx, query, slug))
}

func (repo *NewsletterRepo) List(ctx context.Context) ([]*entity.Newsletter, error) {
	return repo.list(ctx, `SELECT `+newsletterColumns+` FROM newsletters ORDER BY slug`)
}

func (repo *NewsletterRepo) ListActive(ctx context.Context) ([]*entity.Newsletter, error) {
	return repo.list(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE active = TRUE ORDER BY slug`)
}

func (repo *NewsletterRepo) list(ctx context.Context, query string) ([]*entity.Newsletter, error) {
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*entity.Newsletter, 0, 8)
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows.Err: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (repo *NewsletterRepo) scanOne(row rowScanner) (*entity.Newsletter, error) {
	n, err := scanNewsletter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func scanNewsletter(row rowScanner) (*entity.Newsletter, error) {
	var n entity.Newsletter
	var times, recipients, ntype, verbosity string
	err := row.Scan(&n.ID, &n.Slug, &n.Name, &n.Timezone, &times, &n.Active,
		&n.IncludeWatchlist, &ntype, &verbosity, &n.CustomPrompt, &recipients,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(times), &n.ScheduleTimes); err != nil {
		return nil, fmt.Errorf("unmarshal schedule_times: %w", err)
	}
	if err := json.Unmarshal([]byte(recipients), &n.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	n.Type = entity.NewsletterType(ntype)
	n.Verbosity = entity.Verbosity(verbosity)
	return &n, nil
}

func (repo *NewsletterRepo) ListFeeds(ctx context.Context, newsletterID int64) ([]*entity.Feed, error) {
	return repo.listFeeds(ctx, `
SELECT id, newsletter_id, url, title, category, enabled, order_index
FROM feeds WHERE newsletter_id = ? ORDER BY order_index, id`, newsletterID)
}

func (repo *NewsletterRepo) ListEnabledFeeds(ctx context.Context, newsletterID int64) ([]*entity.Feed, error) {
	return repo.listFeeds(ctx, `
SELECT id, newsletter_id, url, title, category, enabled, order_index
FROM feeds WHERE newsletter_id = ? AND enabled = TRUE ORDER BY order_index, id`, newsletterID)
}

func (repo *NewsletterRepo) listFeeds(ctx context.Context, query string, newsletterID int64) ([]*entity.Feed, error) {
	rows, err := repo.db.QueryContext(ctx, rebind(repo.driver, query), newsletterID)
	if err != nil {
		return nil, fmt.Errorf("listFeeds: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 16)
	for rows.Next() {
		var f entity.Feed
		if err := rows.Scan(&f.ID, &f.NewsletterID, &f.URL, &f.Title, &f.Category, &f.Enabled, &f.OrderIndex); err != nil {
			return nil, fmt.Errorf("listFeeds: Scan: %w", err)
		}
		feeds = append(feeds, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listFeeds: rows.Err: %w", err)
	}
	return feeds, nil
}

func (repo *NewsletterRepo) CreateFeed(ctx context.Context, f *entity.Feed) error {
	query := rebind(repo.driver, `
INSERT INTO feeds (newsletter_id, url, title, category, enabled, order_index)
VALUES (?, ?, ?, ?, ?, ?)
`)
	res, err := repo.db.ExecContext(ctx, query, f.NewsletterID, f.URL, f.Title, f.Category, f.Enabled, f.OrderIndex)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateFeed: url %q: %w", f.URL, entity.ErrConflict)
		}
		return fmt.Errorf("CreateFeed: ExecContext: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return nil
}

func (repo *NewsletterRepo) UpdateFeed(ctx context.Context, f *entity.Feed) error {
	query := rebind(repo.driver, `
UPDATE feeds SET url = ?, title = ?, category = ?, enabled = ?, order_index = ?
WHERE id = ?
`)
	res, err := repo.db.ExecContext(ctx, query, f.URL, f.Title, f.Category, f.Enabled, f.OrderIndex, f.ID)
	if err != nil {
		return fmt.Errorf("UpdateFeed: ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateFeed: RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdateFeed: feed %d: %w", f.ID, entity.ErrNotFound)
	}
	return nil
}

func (repo *NewsletterRepo) DeleteFeed(ctx context.Context, id int64) error {
	res, err := repo.db.ExecContext(ctx, rebind(repo.driver, `DELETE FROM feeds WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("DeleteFeed: ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteFeed: RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteFeed: feed %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (repo *NewsletterRepo) ListSymbols(ctx context.Context, newsletterID int64) ([]string, error) {
	query := rebind(repo.driver, `SELECT symbol FROM watchlist_symbols WHERE newsletter_id = ? ORDER BY symbol`)
	rows, err := repo.db.QueryContext(ctx, query, newsletterID)
	if err != nil {
		return nil, fmt.Errorf("ListSymbols: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	symbols := make([]string, 0, 8)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("ListSymbols: Scan: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListSymbols: rows.Err: %w", err)
	}
	return symbols, nil
}

func (repo *NewsletterRepo) ReplaceSymbols(ctx context.Context, newsletterID int64, symbols []string) error {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ReplaceSymbols: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, rebind(repo.driver, `DELETE FROM watchlist_symbols WHERE newsletter_id = ?`), newsletterID); err != nil {
		return fmt.Errorf("ReplaceSymbols: delete: %w", err)
	}
	insert := rebind(repo.driver, `INSERT INTO watchlist_symbols (newsletter_id, symbol) VALUES (?, ?)`)
	for _, sym := range symbols {
		if _, err := tx.ExecContext(ctx, insert, newsletterID, sym); err != nil {
			return fmt.Errorf("ReplaceSymbols: insert %q: %w", sym, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ReplaceSymbols: Commit: %w", err)
	}
	return nil
}

// isUniqueViolation detects uniqueness-constraint failures across both
// drivers without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
