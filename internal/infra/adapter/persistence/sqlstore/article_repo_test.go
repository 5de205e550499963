package sqlstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/infra/db"
)

func newArticleRepo(t *testing.T) (*ArticleRepo, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.WithQueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return &ArticleRepo{db: database, driver: db.DriverSQLite}, mock
}

func TestFilterSeen(t *testing.T) {
	repo, mock := newArticleRepo(t)

	mock.ExpectQuery(`SELECT content_hash FROM seen_hashes`).
		WithArgs(int64(7), "h1", "h2", "h3").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}).AddRow("h2"))

	seen, err := repo.FilterSeen(context.Background(), 7, []string{"h1", "h2", "h3"})
	if err != nil {
		t.Fatalf("FilterSeen() error = %v", err)
	}
	if seen["h1"] || !seen["h2"] || seen["h3"] {
		t.Errorf("FilterSeen() = %v, want only h2 seen", seen)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFilterSeenEmpty(t *testing.T) {
	repo, _ := newArticleRepo(t)
	seen, err := repo.FilterSeen(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("FilterSeen() error = %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("FilterSeen(nil) = %v, want empty", seen)
	}
}

func TestMarkSeen(t *testing.T) {
	repo, mock := newArticleRepo(t)

	published := time.Date(2025, 5, 2, 12, 0, 0, 0, time.UTC)
	art := &entity.Article{
		ContentHash:  "abc",
		Source:       "example.com",
		Title:        "Fed holds rates",
		CanonicalURL: "https://example.com/a",
		PublishedAt:  &published,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT OR IGNORE INTO seen_hashes`).
		WithArgs(int64(7), "abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT OR IGNORE INTO articles`).
		WithArgs("abc", "example.com", "Fed holds rates", "https://example.com/a", &published, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(`SELECT id FROM articles WHERE content_hash`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	ids, err := repo.MarkSeen(context.Background(), 7, []*entity.Article{art})
	if err != nil {
		t.Fatalf("MarkSeen() error = %v", err)
	}
	if ids["abc"] != 42 {
		t.Errorf("MarkSeen() id = %d, want 42", ids["abc"])
	}
	if art.ID != 42 {
		t.Errorf("article ID not backfilled, got %d", art.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkSeenRollsBackOnError(t *testing.T) {
	repo, mock := newArticleRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT OR IGNORE INTO seen_hashes`).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := repo.MarkSeen(context.Background(), 7, []*entity.Article{{ContentHash: "x"}})
	if err == nil {
		t.Fatal("MarkSeen() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestResetSeenWindow(t *testing.T) {
	repo, mock := newArticleRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seen_hashes`).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
	mock.ExpectExec(`DELETE FROM seen_hashes`).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM seen_hashes`).
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))

	before, deleted, after, err := repo.ResetSeenWindow(context.Background(), 7, 24*time.Hour)
	if err != nil {
		t.Fatalf("ResetSeenWindow() error = %v", err)
	}
	if before != 12 || deleted != 12 || after != 0 {
		t.Errorf("ResetSeenWindow() = %d/%d/%d, want 12/12/0", before, deleted, after)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
