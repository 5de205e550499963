package sqlstore

import (
	"testing"

	"marketbrief/internal/infra/db"
)

func TestRebind(t *testing.T) {
	query := `INSERT INTO t (a, b, c) VALUES (?, ?, ?)`

	if got := rebind(db.DriverSQLite, query); got != query {
		t.Errorf("sqlite rebind changed query: %q", got)
	}

	want := `INSERT INTO t (a, b, c) VALUES ($1, $2, $3)`
	if got := rebind(db.DriverPostgres, query); got != want {
		t.Errorf("pgx rebind = %q, want %q", got, want)
	}
}

func TestInsertIgnore(t *testing.T) {
	verb, suffix := insertIgnore(db.DriverSQLite)
	if verb != "INSERT OR IGNORE" || suffix != "" {
		t.Errorf("sqlite insertIgnore = %q/%q", verb, suffix)
	}
	verb, suffix = insertIgnore(db.DriverPostgres)
	if verb != "INSERT" || suffix != " ON CONFLICT DO NOTHING" {
		t.Errorf("pgx insertIgnore = %q/%q", verb, suffix)
	}
}
