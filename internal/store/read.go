package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/1001054/Data-Disguise/internal/ir"
)

type disguiseRow struct {
	ID         string `db:"disguise_id"`
	AppliedAt  int64  `db:"applied_at"`
	VaultID    string `db:"vault_id"`
	PolicyName string `db:"disguise_type"`
	Digest     string `db:"digest"`
}

func (r disguiseRow) header() ir.Disguise {
	return ir.Disguise{
		ID:         r.ID,
		AppliedAt:  time.Unix(0, r.AppliedAt).UTC(),
		VaultID:    r.VaultID,
		PolicyName: r.PolicyName,
		Digest:     r.Digest,
	}
}

type vaultRow struct {
	VaultID     string `db:"vault_id"`
	Email       string `db:"email"`
	Placeholder string `db:"placeholder_info"`
}

const disguiseColumns = `disguise_id, applied_at, vault_id, disguise_type, digest`

// Lookup returns the most recent disguise applied by policyName to vaultID,
// with its Functions in insertion order.
func (s *Store) Lookup(ctx context.Context, policyName, vaultID string) (*ir.Disguise, error) {
	var row disguiseRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+disguiseColumns+`
		FROM disguise
		WHERE disguise_type = ? AND vault_id = ?
		ORDER BY applied_at DESC, disguise_id DESC
		LIMIT 1
	`), policyName, vaultID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.NewNotFound(fmt.Sprintf("no %s disguise recorded for vault %s", policyName, vaultID))
	}
	if err != nil {
		return nil, fmt.Errorf("query disguise: %w", err)
	}
	return s.withFunctions(ctx, row)
}

// Get returns a disguise by id with its Functions.
func (s *Store) Get(ctx context.Context, disguiseID string) (*ir.Disguise, error) {
	var row disguiseRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+disguiseColumns+` FROM disguise WHERE disguise_id = ?
	`), disguiseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.NewNotFound(fmt.Sprintf("disguise %s not found", disguiseID))
	}
	if err != nil {
		return nil, fmt.Errorf("query disguise: %w", err)
	}
	return s.withFunctions(ctx, row)
}

// List returns the headers recorded for vaultID, oldest first, without Functions.
// An empty vaultID lists every disguise.
//
// Returns an empty slice (not nil) if nothing is recorded.
func (s *Store) List(ctx context.Context, vaultID string) ([]ir.Disguise, error) {
	query := `SELECT ` + disguiseColumns + ` FROM disguise`
	var args []any
	if vaultID != "" {
		query += ` WHERE vault_id = ?`
		args = append(args, vaultID)
	}
	query += ` ORDER BY applied_at ASC, disguise_id ASC`

	var rows []disguiseRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query disguises: %w", err)
	}

	disguises := make([]ir.Disguise, 0, len(rows))
	for _, r := range rows {
		disguises = append(disguises, r.header())
	}
	return disguises, nil
}

// Functions returns a disguise's Functions ordered by seq.
func (s *Store) Functions(ctx context.Context, disguiseID string) ([]ir.Function, error) {
	functions := []ir.Function{}
	err := s.db.SelectContext(ctx, &functions, s.db.Rebind(`
		SELECT disguise_id, seq, function_type, table_name, predicate, original, updated, restored
		FROM disguise_function
		WHERE disguise_id = ?
		ORDER BY seq ASC
	`), disguiseID)
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	return functions, nil
}

func (s *Store) withFunctions(ctx context.Context, row disguiseRow) (*ir.Disguise, error) {
	d := row.header()
	functions, err := s.Functions(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Functions = functions
	return &d, nil
}

// GetVault returns a subject's vault identity.
func (s *Store) GetVault(ctx context.Context, vaultID string) (*ir.VaultIdentity, error) {
	return s.getVault(ctx, `SELECT vault_id, email, placeholder_info FROM vault WHERE vault_id = ?`, vaultID)
}

// GetVaultByEmail returns the vault identity registered for email.
func (s *Store) GetVaultByEmail(ctx context.Context, email string) (*ir.VaultIdentity, error) {
	return s.getVault(ctx, `
		SELECT vault_id, email, placeholder_info FROM vault WHERE email = ? ORDER BY vault_id LIMIT 1
	`, email)
}

func (s *Store) getVault(ctx context.Context, query, key string) (*ir.VaultIdentity, error) {
	var row vaultRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.NewNotFound(fmt.Sprintf("vault %s not found", key))
	}
	if err != nil {
		return nil, fmt.Errorf("query vault: %w", err)
	}

	placeholder, err := unmarshalPlaceholder(row.Placeholder)
	if err != nil {
		return nil, fmt.Errorf("read vault %s: %w", row.VaultID, err)
	}
	return &ir.VaultIdentity{VaultID: row.VaultID, Email: row.Email, Placeholder: placeholder}, nil
}
