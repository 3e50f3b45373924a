package store

import (
	"context"
	"fmt"
	"time"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Entry is everything the ledger needs to record one applied policy.
//
// Originals[i] holds the rows Transformations[i] touched, snapshotted before
// the write, and Changes[i] is the change string the executor recorded.
type Entry struct {
	ID              string
	PolicyName      string
	VaultID         string
	AppliedAt       time.Time
	Transformations []ir.Transformation
	Originals       [][]ir.Target
	Changes         []string
}

// Append records a disguise header and one Function per affected row.
//
// Each Function's predicate is the affected row's own primary-key predicate,
// never the transformation's selection predicate. The header and its
// Functions are written in one vault transaction.
func (s *Store) Append(ctx context.Context, e Entry) (*ir.Disguise, error) {
	if e.ID == "" {
		return nil, ir.NewInvalidInput("disguise id is required")
	}
	if len(e.Originals) != len(e.Transformations) || len(e.Changes) != len(e.Transformations) {
		return nil, ir.NewInvalidInput(fmt.Sprintf(
			"append disguise: %d transformations, %d snapshots, %d change records",
			len(e.Transformations), len(e.Originals), len(e.Changes)))
	}

	var functions []ir.Function
	for i, t := range e.Transformations {
		for _, row := range e.Originals[i] {
			original, err := ir.EncodeValues(row.Fields)
			if err != nil {
				return nil, fmt.Errorf("append disguise: %w", err)
			}
			predicate, err := row.Predicate()
			if err != nil {
				return nil, err
			}
			functions = append(functions, ir.Function{
				DisguiseID:     e.ID,
				Seq:            int64(len(functions) + 1),
				Type:           t.Kind,
				Table:          t.Table,
				Predicate:      predicate,
				OriginalValues: original,
				UpdatedValues:  e.Changes[i],
			})
		}
	}

	digest, err := ir.DisguiseDigest(e.ID, functions)
	if err != nil {
		return nil, fmt.Errorf("append disguise: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO disguise (disguise_id, applied_at, vault_id, disguise_type, digest)
		VALUES (?, ?, ?, ?, ?)
	`), e.ID, e.AppliedAt.UnixNano(), e.VaultID, e.PolicyName, digest)
	if err != nil {
		return nil, fmt.Errorf("write disguise: %w", err)
	}

	for _, fn := range functions {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO disguise_function
			(disguise_id, seq, function_type, table_name, predicate, original, updated, restored)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		`), fn.DisguiseID, fn.Seq, string(fn.Type), fn.Table, fn.Predicate, fn.OriginalValues, fn.UpdatedValues)
		if err != nil {
			return nil, fmt.Errorf("write function %d: %w", fn.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &ir.Disguise{
		ID:         e.ID,
		AppliedAt:  time.Unix(0, e.AppliedAt.UnixNano()).UTC(),
		VaultID:    e.VaultID,
		PolicyName: e.PolicyName,
		Digest:     digest,
		Functions:  functions,
	}, nil
}

// MarkRestored flags one Function as undone so a retried recovery skips it.
func (s *Store) MarkRestored(ctx context.Context, disguiseID string, seq int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE disguise_function SET restored = 1 WHERE disguise_id = ? AND seq = ?
	`), disguiseID, seq)
	if err != nil {
		return fmt.Errorf("mark restored: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ir.NewNotFound(fmt.Sprintf("function %s/%d not found", disguiseID, seq))
	}
	return nil
}

// Delete removes a disguise header and all its Functions.
func (s *Store) Delete(ctx context.Context, disguiseID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM disguise_function WHERE disguise_id = ?`), disguiseID); err != nil {
		return fmt.Errorf("delete functions: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM disguise WHERE disguise_id = ?`), disguiseID)
	if err != nil {
		return fmt.Errorf("delete disguise: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ir.NewNotFound(fmt.Sprintf("disguise %s not found", disguiseID))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateVault records a subject's vault identity.
// A vault id that already exists is rejected with InvalidInput.
func (s *Store) CreateVault(ctx context.Context, v ir.VaultIdentity) error {
	if v.VaultID == "" || v.Email == "" {
		return ir.NewInvalidInput("vault id and email are required")
	}
	placeholder, err := marshalPlaceholder(v.Placeholder)
	if err != nil {
		return fmt.Errorf("write vault: %w", err)
	}

	if _, err := s.GetVault(ctx, v.VaultID); err == nil {
		return ir.NewInvalidInput(fmt.Sprintf("vault %s already exists", v.VaultID))
	} else if !ir.IsNotFound(err) {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO vault (vault_id, email, placeholder_info) VALUES (?, ?, ?)
	`), v.VaultID, v.Email, placeholder)
	if err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return nil
}
