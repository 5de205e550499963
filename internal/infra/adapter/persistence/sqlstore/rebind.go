// Package sqlstore provides database/sql implementations of the repository
// interfaces. Queries are written with ? placeholders and rebound to $N when
// the PostgreSQL backend is active, so a single adapter serves both drivers.
package sqlstore

import (
	"strconv"
	"strings"

	"marketbrief/internal/infra/db"
)

// rebind converts ? placeholders to $N for the pgx driver. SQLite queries
// pass through untouched. Queries never embed literal question marks.
func rebind(driver db.Driver, query string) string {
	if driver != db.DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// insertIgnore returns the driver's insert-or-skip-on-conflict prefix/suffix
// pair for first-seen-wins semantics.
func insertIgnore(driver db.Driver) (verb, suffix string) {
	if driver == db.DriverPostgres {
		return "INSERT", " ON CONFLICT DO NOTHING"
	}
	return "INSERT OR IGNORE", ""
}
