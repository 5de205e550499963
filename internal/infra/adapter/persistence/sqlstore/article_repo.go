package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/db"
	"marketbrief/internal/repository"
)

// ArticleRepo implements repository.ArticleRepository: the global article
// table plus the per-newsletter seen set.
type ArticleRepo struct {
	db     *sql.DB
	driver db.Driver
}

// NewArticleRepo creates a new SQL-backed article repository.
func NewArticleRepo(database *sql.DB, driver db.Driver) repository.ArticleRepository {
	return &ArticleRepo{db: database, driver: driver}
}

// SQLite's placeholder ceiling; batches are chunked below it.
// https://www.sqlite.org/limits.html#max_variable_number
const maxPlaceholders = 900

func (repo *ArticleRepo) FilterSeen(ctx context.Context, newsletterID int64, hashes []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return seen, nil
	}

	for start := 0; start < len(hashes); start += maxPlaceholders {
		end := min(start+maxPlaceholders, len(hashes))
		chunk := hashes[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		query := rebind(repo.driver, fmt.Sprintf(
			`SELECT content_hash FROM seen_hashes WHERE newsletter_id = ? AND content_hash IN (%s)`,
			placeholders))

		args := make([]any, 0, len(chunk)+1)
		args = append(args, newsletterID)
		for _, h := range chunk {
			args = append(args, h)
		}

		rows, err := repo.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("FilterSeen: QueryContext: %w", err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("FilterSeen: Scan: %w", err)
			}
			seen[h] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("FilterSeen: rows.Err: %w", err)
		}
		_ = rows.Close()
	}

	return seen, nil
}

// MarkSeen inserts seen-hash and article rows in one transaction. Article
// inserts are first-seen-wins: a hash already present (from another
// newsletter) keeps its original row and the existing ID is returned.
func (repo *ArticleRepo) MarkSeen(ctx context.Context, newsletterID int64, articles []*entity.Article) (map[string]int64, error) {
	ids := make(map[string]int64, len(articles))
	if len(articles) == 0 {
		return ids, nil
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("MarkSeen: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	verb, suffix := insertIgnore(repo.driver)
	insertSeen := rebind(repo.driver, verb+` INTO seen_hashes (newsletter_id, content_hash, first_seen_at) VALUES (?, ?, ?)`+suffix)
	insertArticle := rebind(repo.driver, verb+` INTO articles (content_hash, source, title, canonical_url, published_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`+suffix)
	selectID := rebind(repo.driver, `SELECT id FROM articles WHERE content_hash = ?`)

	now := time.Now().UTC()
	for _, art := range articles {
		if _, err := tx.ExecContext(ctx, insertSeen, newsletterID, art.ContentHash, now); err != nil {
			return nil, fmt.Errorf("MarkSeen: insert seen_hash: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertArticle,
			art.ContentHash, art.Source, art.Title, art.CanonicalURL, art.PublishedAt, now); err != nil {
			return nil, fmt.Errorf("MarkSeen: insert article: %w", err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, selectID, art.ContentHash).Scan(&id); err != nil {
			return nil, fmt.Errorf("MarkSeen: select article id: %w", err)
		}
		art.ID = id
		ids[art.ContentHash] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("MarkSeen: Commit: %w", err)
	}
	return ids, nil
}

func (repo *ArticleRepo) ResetSeenWindow(ctx context.Context, newsletterID int64, window time.Duration) (before, deleted, after int64, err error) {
	cutoff := time.Now().UTC().Add(-window)

	countQuery := rebind(repo.driver, `SELECT COUNT(*) FROM seen_hashes WHERE newsletter_id = ? AND first_seen_at >= ?`)
	if err = repo.db.QueryRowContext(ctx, countQuery, newsletterID, cutoff).Scan(&before); err != nil {
		return 0, 0, 0, fmt.Errorf("ResetSeenWindow: count before: %w", err)
	}

	res, err := repo.db.ExecContext(ctx,
		rebind(repo.driver, `DELETE FROM seen_hashes WHERE newsletter_id = ? AND first_seen_at >= ?`),
		newsletterID, cutoff)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ResetSeenWindow: delete: %w", err)
	}
	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ResetSeenWindow: RowsAffected: %w", err)
	}

	if err = repo.db.QueryRowContext(ctx, countQuery, newsletterID, cutoff).Scan(&after); err != nil {
		return 0, 0, 0, fmt.Errorf("ResetSeenWindow: count after: %w", err)
	}
	return before, deleted, after, nil
}

func (repo *ArticleRepo) Get(ctx context.Context, id int64) (*entity.Article, error) {
	query := rebind(repo.driver, `
SELECT id, content_hash, source, title, canonical_url, published_at, created_at
FROM articles WHERE id = ? LIMIT 1`)

	var art entity.Article
	err := repo.db.QueryRowContext(ctx, query, id).Scan(
		&art.ID, &art.ContentHash, &art.Source, &art.Title, &art.CanonicalURL,
		&art.PublishedAt, &art.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	return &art, nil
}

func (repo *ArticleRepo) ListByRun(ctx context.Context, runID string) ([]repository.ArticleWithRank, error) {
	query := rebind(repo.driver, `
SELECT a.id, a.content_hash, a.source, a.title, a.canonical_url, a.published_at, a.created_at,
       ra.rank, ra.score
FROM run_articles ra
INNER JOIN articles a ON a.id = ra.article_id
WHERE ra.run_id = ?
ORDER BY ra.rank`)

	rows, err := repo.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("ListByRun: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]repository.ArticleWithRank, 0, 25)
	for rows.Next() {
		var art entity.Article
		var rec repository.ArticleWithRank
		if err := rows.Scan(&art.ID, &art.ContentHash, &art.Source, &art.Title,
			&art.CanonicalURL, &art.PublishedAt, &art.CreatedAt, &rec.Rank, &rec.Score); err != nil {
			return nil, fmt.Errorf("ListByRun: Scan: %w", err)
		}
		rec.Article = &art
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByRun: rows.Err: %w", err)
	}
	return out, nil
}
