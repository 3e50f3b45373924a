package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// createTestStore creates a new SQLite vault in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func row(pk int, fields ...ir.Field) ir.Target {
	return ir.Target{Fields: fields, PrimaryKey: pk}
}

func intField(name, v string) ir.Field  { return ir.Field{Name: name, Type: ir.Integer, Value: v} }
func textField(name, v string) ir.Field { return ir.Field{Name: name, Type: ir.Text, Value: v} }

// scrubEntry is a userscrub of contact 19: two reviews decorrelated, then the contact removed.
func scrubEntry(id string, appliedAt time.Time) Entry {
	return Entry{
		ID:         id,
		PolicyName: "userscrub",
		VaultID:    "19",
		AppliedAt:  appliedAt,
		Transformations: []ir.Transformation{
			{Kind: ir.Decorrelation, Table: "review", Predicate: "contact_id=19", ForeignKey: "contact_id"},
			{Kind: ir.Removal, Table: "contact_info", Predicate: "contact_id=19"},
		},
		Originals: [][]ir.Target{
			{
				row(0, intField("review_id", "7"), intField("contact_id", "19"), textField("body", "great")),
				row(0, intField("review_id", "8"), intField("contact_id", "19"), textField("body", "meh, fine")),
			},
			{
				row(0, intField("contact_id", "19"), textField("name", "bea")),
			},
		},
		Changes: []string{"contact_id=0", ""},
	}
}

// recordingDeleter is a RowDeleter that records calls.
type recordingDeleter struct {
	calls    []string
	affected int64
	err      error
}

func (d *recordingDeleter) DeleteRows(_ context.Context, table, predicate string) (int64, error) {
	d.calls = append(d.calls, table+" WHERE "+predicate)
	return d.affected, d.err
}
