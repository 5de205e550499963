package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/db"
	"marketbrief/internal/repository"
)

// RunRepo implements repository.RunRepository.
type RunRepo struct {
	db     *sql.DB
	driver db.Driver
}

// NewRunRepo creates a new SQL-backed run repository.
func NewRunRepo(database *sql.DB, driver db.Driver) repository.RunRepository {
	return &RunRepo{db: database, driver: driver}
}

func (repo *RunRepo) CreateStarted(ctx context.Context, run *entity.Run) error {
	query := rebind(repo.driver, `
INSERT INTO runs (run_id, newsletter_id, started_at, status)
VALUES (?, ?, ?, ?)
`)
	_, err := repo.db.ExecContext(ctx, query, run.RunID, run.NewsletterID, run.StartedAt, string(entity.RunStatusStarted))
	if err != nil {
		return fmt.Errorf("CreateStarted: ExecContext: %w", err)
	}
	run.Status = entity.RunStatusStarted
	return nil
}

// Finish writes the terminal status and all counters in a single statement;
// this is the last write of the run.
func (repo *RunRepo) Finish(ctx context.Context, run *entity.Run) error {
	query := rebind(repo.driver, `
UPDATE runs SET
	finished_at = ?, status = ?, feeds_total = ?, feeds_ok = ?,
	articles_seen = ?, articles_used = ?, ai_tokens_in = ?, ai_tokens_out = ?,
	ai_provider_label = ?, email_sent = ?, error = ?
WHERE run_id = ?
`)
	res, err := repo.db.ExecContext(ctx, query,
		run.FinishedAt, string(run.Status), run.FeedsTotal, run.FeedsOK,
		run.ArticlesSeen, run.ArticlesUsed, run.AITokensIn, run.AITokensOut,
		run.AIProviderLabel, run.EmailSent, run.Error, run.RunID)
	if err != nil {
		return fmt.Errorf("Finish: ExecContext: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Finish: RowsAffected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("Finish: run %s: %w", run.RunID, entity.ErrNotFound)
	}
	return nil
}

const runColumns = `run_id, newsletter_id, started_at, finished_at, status, feeds_total, feeds_ok,
articles_seen, articles_used, ai_tokens_in, ai_tokens_out, ai_provider_label, email_sent, error`

func (repo *RunRepo) Get(ctx context.Context, runID string) (*entity.Run, error) {
	query := rebind(repo.driver, `SELECT `+runColumns+` FROM runs WHERE run_id = ? LIMIT 1`)

	var run entity.Run
	var status string
	err := repo.db.QueryRowContext(ctx, query, runID).Scan(
		&run.RunID, &run.NewsletterID, &run.StartedAt, &run.FinishedAt, &status,
		&run.FeedsTotal, &run.FeedsOK, &run.ArticlesSeen, &run.ArticlesUsed,
		&run.AITokensIn, &run.AITokensOut, &run.AIProviderLabel, &run.EmailSent, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	run.Status = entity.RunStatus(status)
	return &run, nil
}

func (repo *RunRepo) List(ctx context.Context, newsletterID int64, limit int) ([]*entity.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if newsletterID != 0 {
		query += ` WHERE newsletter_id = ?`
		args = append(args, newsletterID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := repo.db.QueryContext(ctx, rebind(repo.driver, query), args...)
	if err != nil {
		return nil, fmt.Errorf("List: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*entity.Run, 0, limit)
	for rows.Next() {
		var run entity.Run
		var status string
		if err := rows.Scan(&run.RunID, &run.NewsletterID, &run.StartedAt, &run.FinishedAt, &status,
			&run.FeedsTotal, &run.FeedsOK, &run.ArticlesSeen, &run.ArticlesUsed,
			&run.AITokensIn, &run.AITokensOut, &run.AIProviderLabel, &run.EmailSent, &run.Error); err != nil {
			return nil, fmt.Errorf("List: Scan: %w", err)
		}
		run.Status = entity.RunStatus(status)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows.Err: %w", err)
	}
	return runs, nil
}

func (repo *RunRepo) AddRunArticles(ctx context.Context, runID string, selections []entity.RunArticle) error {
	if len(selections) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("AddRunArticles: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := rebind(repo.driver, `INSERT INTO run_articles (run_id, article_id, rank, score) VALUES (?, ?, ?, ?)`)
	for _, sel := range selections {
		if _, err := tx.ExecContext(ctx, insert, runID, sel.ArticleID, sel.Rank, sel.Score); err != nil {
			return fmt.Errorf("AddRunArticles: insert rank %d: %w", sel.Rank, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("AddRunArticles: Commit: %w", err)
	}
	return nil
}

func (repo *RunRepo) UpsertQuote(ctx context.Context, q *entity.MarketQuote) error {
	var query string
	if repo.driver == db.DriverPostgres {
		query = `
INSERT INTO market_quotes (run_id, symbol, price, change_amount, change_percent, captured_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, symbol) DO UPDATE SET
	price = EXCLUDED.price, change_amount = EXCLUDED.change_amount,
	change_percent = EXCLUDED.change_percent, captured_at = EXCLUDED.captured_at`
	} else {
		query = `
INSERT INTO market_quotes (run_id, symbol, price, change_amount, change_percent, captured_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, symbol) DO UPDATE SET
	price = excluded.price, change_amount = excluded.change_amount,
	change_percent = excluded.change_percent, captured_at = excluded.captured_at`
	}
	_, err := repo.db.ExecContext(ctx, rebind(repo.driver, query),
		q.RunID, q.Symbol, q.Price, q.ChangeAmount, q.ChangePercent, q.CapturedAt)
	if err != nil {
		return fmt.Errorf("UpsertQuote: ExecContext: %w", err)
	}
	return nil
}

func (repo *RunRepo) ListQuotes(ctx context.Context, runID string) ([]*entity.MarketQuote, error) {
	query := rebind(repo.driver, `
SELECT run_id, symbol, price, change_amount, change_percent, captured_at
FROM market_quotes WHERE run_id = ? ORDER BY symbol`)

	rows, err := repo.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("ListQuotes: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	quotes := make([]*entity.MarketQuote, 0, 8)
	for rows.Next() {
		var q entity.MarketQuote
		if err := rows.Scan(&q.RunID, &q.Symbol, &q.Price, &q.ChangeAmount, &q.ChangePercent, &q.CapturedAt); err != nil {
			return nil, fmt.Errorf("ListQuotes: Scan: %w", err)
		}
		quotes = append(quotes, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListQuotes: rows.Err: %w", err)
	}
	return quotes, nil
}

func (repo *RunRepo) SaveDigest(ctx context.Context, d *entity.Digest) error {
	var query string
	if repo.driver == db.DriverPostgres {
		query = `
INSERT INTO digests (run_id, subject, html, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET subject = EXCLUDED.subject, html = EXCLUDED.html`
	} else {
		query = `
INSERT INTO digests (run_id, subject, html, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET subject = excluded.subject, html = excluded.html`
	}
	if _, err := repo.db.ExecContext(ctx, rebind(repo.driver, query), d.RunID, d.Subject, d.HTML, d.CreatedAt); err != nil {
		return fmt.Errorf("SaveDigest: ExecContext: %w", err)
	}
	return nil
}

func (repo *RunRepo) GetDigest(ctx context.Context, runID string) (*entity.Digest, error) {
	query := rebind(repo.driver, `SELECT run_id, subject, html, created_at FROM digests WHERE run_id = ? LIMIT 1`)

	var d entity.Digest
	err := repo.db.QueryRowContext(ctx, query, runID).Scan(&d.RunID, &d.Subject, &d.HTML, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("GetDigest: QueryRowContext: %w", err)
	}
	return &d, nil
}

func (repo *RunRepo) LatestDigest(ctx context.Context, newsletterID int64) (*entity.Digest, error) {
	query := `
SELECT d.run_id, d.subject, d.html, d.created_at
FROM digests d
INNER JOIN runs r ON r.run_id = d.run_id`
	args := []any{}
	if newsletterID != 0 {
		query += ` WHERE r.newsletter_id = ?`
		args = append(args, newsletterID)
	}
	query += ` ORDER BY r.started_at DESC LIMIT 1`

	var d entity.Digest
	err := repo.db.QueryRowContext(ctx, rebind(repo.driver, query), args...).Scan(&d.RunID, &d.Subject, &d.HTML, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("LatestDigest: QueryRowContext: %w", err)
	}
	return &d, nil
}

func (repo *RunRepo) AppendLog(ctx context.Context, e *entity.RunLogEntry) error {
	query := rebind(repo.driver, `
INSERT INTO run_logs (run_id, ts, level, message, context_json) VALUES (?, ?, ?, ?, ?)`)
	if _, err := repo.db.ExecContext(ctx, query, e.RunID, e.TS, string(e.Level), e.Message, e.ContextJSON); err != nil {
		return fmt.Errorf("AppendLog: ExecContext: %w", err)
	}
	return nil
}

func (repo *RunRepo) ListLogs(ctx context.Context, runID string) ([]*entity.RunLogEntry, error) {
	query := rebind(repo.driver, `
SELECT run_id, ts, level, message, context_json
FROM run_logs WHERE run_id = ? ORDER BY ts, rowid`)
	if repo.driver == db.DriverPostgres {
		query = rebind(repo.driver, `
SELECT run_id, ts, level, message, context_json
FROM run_logs WHERE run_id = ? ORDER BY ts, ctid`)
	}

	rows, err := repo.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("ListLogs: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*entity.RunLogEntry, 0, 64)
	for rows.Next() {
		var e entity.RunLogEntry
		var level string
		if err := rows.Scan(&e.RunID, &e.TS, &level, &e.Message, &e.ContextJSON); err != nil {
			return nil, fmt.Errorf("ListLogs: Scan: %w", err)
		}
		e.Level = entity.LogLevel(level)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListLogs: rows.Err: %w", err)
	}
	return entries, nil
}

func (repo *RunRepo) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx,
		rebind(repo.driver, `DELETE FROM runs WHERE started_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("DeleteRunsBefore: ExecContext: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteRunsBefore: RowsAffected: %w", err)
	}
	return deleted, nil
}
