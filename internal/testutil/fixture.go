// Package testutil provides SQLite target and vault fixtures shared by the
// engine, service, API and harness tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/1001054/Data-Disguise/internal/store"
	"github.com/1001054/Data-Disguise/internal/target"
)

// ReviewSchema is a two-table target: contact_info owns review rows through
// review.contact_id. Contact 0 is the placeholder identity.
var ReviewSchema = []string{
	`CREATE TABLE contact_info (
		contact_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email VARCHAR(255),
		last_login DATETIME
	)`,
	`CREATE TABLE review (
		review_id INTEGER PRIMARY KEY,
		contact_id INTEGER REFERENCES contact_info(contact_id),
		body TEXT
	)`,
}

// ReviewSeed populates ReviewSchema.
//
// Contacts 19 and 21 last logged in during 2015 and 2016; contact 20 in 2026.
// Contact 19 wrote reviews 7 and 8, contact 20 wrote review 9, contact 21
// wrote nothing.
var ReviewSeed = []string{
	`INSERT INTO contact_info (contact_id, name, email, last_login) VALUES
		(0, 'anonymous', NULL, NULL),
		(19, 'bea', 'bea@example.com', '2015-06-01 10:00:00'),
		(20, 'cal', 'cal@example.com', '2026-01-01 00:00:00'),
		(21, 'dee', NULL, '2016-03-01 08:30:00')`,
	`INSERT INTO review (review_id, contact_id, body) VALUES
		(7, 19, 'great'),
		(8, 19, 'meh, it''s fine'),
		(9, 20, 'would buy again')`,
}

// OpenTarget opens a SQLite target in a temp dir and runs stmts against it.
func OpenTarget(t testing.TB, stmts ...string) *target.SQLStore {
	t.Helper()

	s, err := target.Open("sqlite3", filepath.Join(t.TempDir(), "target.db"))
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, stmt := range stmts {
		if _, err := s.DB().Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return s
}

// OpenReviewTarget opens a target with ReviewSchema and ReviewSeed applied.
func OpenReviewTarget(t testing.TB) *target.SQLStore {
	t.Helper()
	return OpenTarget(t, append(append([]string{}, ReviewSchema...), ReviewSeed...)...)
}

// OpenVault opens an empty SQLite vault in a temp dir.
func OpenVault(t testing.TB) *store.Store {
	t.Helper()

	v, err := store.Open("sqlite3", filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

// Count returns the number of rows in table matching predicate.
func Count(t testing.TB, s *target.SQLStore, table, predicate string) int {
	t.Helper()

	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM " + table + " WHERE " + predicate).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// Dump returns every row of table ordered by its first column, one string per row.
func Dump(t testing.TB, s *target.SQLStore, table string) []string {
	t.Helper()

	rows, err := s.DB().Query("SELECT * FROM " + table + " ORDER BY 1")
	if err != nil {
		t.Fatalf("dump %s: %v", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		t.Fatalf("dump %s: %v", table, err)
	}
	var out []string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			t.Fatalf("dump %s: %v", table, err)
		}
		out = append(out, formatRow(vals))
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("dump %s: %v", table, err)
	}
	return out
}
