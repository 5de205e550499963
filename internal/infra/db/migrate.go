package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// MigrateUp creates the schema if it does not exist. Statements are written
// for SQLite and rewritten for PostgreSQL where the dialects differ.
func MigrateUp(database *sql.DB, driver Driver) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS newsletters (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    slug              TEXT NOT NULL UNIQUE,
    name              TEXT NOT NULL,
    timezone          TEXT NOT NULL,
    schedule_times    TEXT NOT NULL DEFAULT '[]',
    active            BOOLEAN NOT NULL DEFAULT TRUE,
    include_watchlist BOOLEAN NOT NULL DEFAULT FALSE,
    newsletter_type   TEXT NOT NULL DEFAULT 'market',
    verbosity         TEXT NOT NULL DEFAULT 'medium',
    custom_prompt     TEXT NOT NULL DEFAULT '',
    recipients        TEXT NOT NULL DEFAULT '[]',
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS feeds (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    newsletter_id INTEGER NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    url           TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    category      TEXT NOT NULL DEFAULT '',
    enabled       BOOLEAN NOT NULL DEFAULT TRUE,
    order_index   INTEGER NOT NULL DEFAULT 0,
    UNIQUE (newsletter_id, url)
)`,
		`CREATE TABLE IF NOT EXISTS watchlist_symbols (
    newsletter_id INTEGER NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    symbol        TEXT NOT NULL,
    PRIMARY KEY (newsletter_id, symbol)
)`,
		`CREATE TABLE IF NOT EXISTS articles (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    content_hash  TEXT NOT NULL UNIQUE,
    source        TEXT NOT NULL,
    title         TEXT NOT NULL,
    canonical_url TEXT NOT NULL,
    published_at  TIMESTAMP,
    created_at    TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS seen_hashes (
    content_hash  TEXT NOT NULL,
    newsletter_id INTEGER NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    first_seen_at TIMESTAMP NOT NULL,
    PRIMARY KEY (newsletter_id, content_hash)
)`,
		`CREATE TABLE IF NOT EXISTS runs (
    run_id            TEXT PRIMARY KEY,
    newsletter_id     INTEGER NOT NULL REFERENCES newsletters(id) ON DELETE CASCADE,
    started_at        TIMESTAMP NOT NULL,
    finished_at       TIMESTAMP,
    status            TEXT NOT NULL DEFAULT 'started',
    feeds_total       INTEGER NOT NULL DEFAULT 0,
    feeds_ok          INTEGER NOT NULL DEFAULT 0,
    articles_seen     INTEGER NOT NULL DEFAULT 0,
    articles_used     INTEGER NOT NULL DEFAULT 0,
    ai_tokens_in      INTEGER NOT NULL DEFAULT 0,
    ai_tokens_out     INTEGER NOT NULL DEFAULT 0,
    ai_provider_label TEXT NOT NULL DEFAULT '',
    email_sent        BOOLEAN NOT NULL DEFAULT FALSE,
    error             TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS run_articles (
    run_id     TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    article_id INTEGER NOT NULL REFERENCES articles(id),
    rank       INTEGER NOT NULL,
    score      REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, rank)
)`,
		`CREATE TABLE IF NOT EXISTS market_quotes (
    run_id         TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    symbol         TEXT NOT NULL,
    price          REAL NOT NULL,
    change_amount  REAL NOT NULL,
    change_percent REAL NOT NULL,
    captured_at    TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, symbol)
)`,
		`CREATE TABLE IF NOT EXISTS digests (
    run_id     TEXT PRIMARY KEY REFERENCES runs(run_id) ON DELETE CASCADE,
    subject    TEXT NOT NULL,
    html       TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS run_logs (
    run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    ts           TIMESTAMP NOT NULL,
    level        TEXT NOT NULL,
    message      TEXT NOT NULL,
    context_json TEXT NOT NULL DEFAULT ''
)`,
		`CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_market_quotes_run_id ON market_quotes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_hashes_first_seen_at ON seen_hashes(first_seen_at)`,
	}

	for _, stmt := range append(statements, indexes...) {
		if _, err := database.Exec(rewriteForDriver(stmt, driver)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rewriteForDriver adapts the SQLite DDL to PostgreSQL.
func rewriteForDriver(stmt string, driver Driver) string {
	if driver != DriverPostgres {
		return stmt
	}
	stmt = strings.ReplaceAll(stmt, "INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY")
	stmt = strings.ReplaceAll(stmt, "TIMESTAMP", "TIMESTAMPTZ")
	stmt = strings.ReplaceAll(stmt, "REAL", "DOUBLE PRECISION")
	return stmt
}
