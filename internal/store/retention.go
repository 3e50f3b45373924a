package store

import (
	"context"
	"fmt"
	"time"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// RowDeleter hard-deletes target rows. target.Store satisfies it.
type RowDeleter interface {
	DeleteRows(ctx context.Context, table, predicate string) (int64, error)
}

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	Disguises  int   `json:"disguises"`
	PurgedRows int64 `json:"purged_rows"`
}

// RetentionSweep permanently retires the disguises matching criterion.
//
// For each matching disguise, the target rows behind its Decorrelation
// Functions are deleted first, then the ledger records. After a sweep the
// disguise can no longer be recovered. Functions already restored by a
// partial recovery are left alone in the target.
func (s *Store) RetentionSweep(ctx context.Context, target RowDeleter, criterion ir.RetentionCriterion, now time.Time) (SweepResult, error) {
	var result SweepResult
	if err := criterion.Validate(); err != nil {
		return result, err
	}

	headers, err := s.matchRetention(ctx, criterion, now)
	if err != nil {
		return result, err
	}

	for _, h := range headers {
		functions, err := s.Functions(ctx, h.ID)
		if err != nil {
			return result, err
		}
		for _, fn := range functions {
			if fn.Type != ir.Decorrelation || fn.Restored {
				continue
			}
			n, err := target.DeleteRows(ctx, fn.Table, fn.Predicate)
			if err != nil {
				return result, fmt.Errorf("purge %s/%d: %w", h.ID, fn.Seq, err)
			}
			result.PurgedRows += n
		}

		if err := s.Delete(ctx, h.ID); err != nil {
			return result, err
		}
		result.Disguises++
	}

	return result, nil
}

func (s *Store) matchRetention(ctx context.Context, c ir.RetentionCriterion, now time.Time) ([]disguiseRow, error) {
	query := `SELECT ` + disguiseColumns + ` FROM disguise WHERE `
	var args []any
	if c.ByAge {
		query += `applied_at < ?`
		args = append(args, now.Add(-c.MaxAge).UnixNano())
	} else {
		query += `vault_id = ? AND disguise_type = ?`
		args = append(args, c.VaultID, c.PolicyName)
	}
	query += ` ORDER BY applied_at ASC, disguise_id ASC`

	var rows []disguiseRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query retention candidates: %w", err)
	}
	return rows, nil
}
