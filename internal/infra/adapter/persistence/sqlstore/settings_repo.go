package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketbrief/internal/infra/db"
	"marketbrief/internal/repository"
)

// SettingsRepo implements repository.SettingsRepository over a (key, value)
// table.
type SettingsRepo struct {
	db     *sql.DB
	driver db.Driver
}

// NewSettingsRepo creates a new SQL-backed settings repository.
func NewSettingsRepo(database *sql.DB, driver db.Driver) repository.SettingsRepository {
	return &SettingsRepo{db: database, driver: driver}
}

func (repo *SettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	query := rebind(repo.driver, `SELECT value FROM settings WHERE key = ? LIMIT 1`)
	var value string
	err := repo.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	return value, true, nil
}

func (repo *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("All: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string, 16)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("All: Scan: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("All: rows.Err: %w", err)
	}
	return out, nil
}

func (repo *SettingsRepo) Set(ctx context.Context, key, value string) error {
	var query string
	if repo.driver == db.DriverPostgres {
		query = `INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	} else {
		query = `INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	}
	if _, err := repo.db.ExecContext(ctx, rebind(repo.driver, query), key, value); err != nil {
		return fmt.Errorf("Set: ExecContext: %w", err)
	}
	return nil
}
