package target

import (
	"context"
	"fmt"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Accessor turns target rows into typed snapshots.
type Accessor struct {
	store Store
}

// NewAccessor creates an Accessor over store.
func NewAccessor(store Store) *Accessor {
	return &Accessor{store: store}
}

// Store returns the underlying target store.
func (a *Accessor) Store() Store {
	return a.store
}

// DescribeSchema returns the table's columns in ordinal order.
// Tables without exactly one primary-key column are rejected, since every
// undo step is addressed by a single-column key predicate.
func (a *Accessor) DescribeSchema(ctx context.Context, table string) ([]ir.Column, error) {
	columns, err := a.store.DescribeSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, err := primaryKeyIndex(table, columns); err != nil {
		return nil, err
	}
	return columns, nil
}

// SelectRows snapshots every row of table matching predicate.
//
// Zero selected rows fail with NoMatch. A predicate the database rejects
// surfaces as the driver's error instead, so the two cases stay distinct.
func (a *Accessor) SelectRows(ctx context.Context, table, predicate string) ([]ir.Target, error) {
	columns, err := a.DescribeSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	pk, _ := primaryKeyIndex(table, columns)

	for _, c := range columns {
		if c.Type == ir.Unsupported {
			return nil, ir.NewUnsupportedType(table, c.Name, c.DeclaredType)
		}
	}

	rows, err := a.store.SelectRows(ctx, table, ColumnNames(columns), predicate)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ir.NewNoMatch(table, predicate)
	}

	targets := make([]ir.Target, 0, len(rows))
	for _, raw := range rows {
		fields := make([]ir.Field, len(columns))
		for i, col := range columns {
			f, err := formatValue(col, raw[i])
			if err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", table, err)
			}
			fields[i] = f
		}
		targets = append(targets, ir.Target{Fields: fields, PrimaryKey: pk})
	}
	return targets, nil
}

// ColumnNames returns the names of columns in order.
func ColumnNames(columns []ir.Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

func primaryKeyIndex(table string, columns []ir.Column) (int, error) {
	idx := -1
	for i, c := range columns {
		if !c.PrimaryKey {
			continue
		}
		if idx >= 0 {
			return 0, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: "composite primary keys are not supported", Table: table}
		}
		idx = i
	}
	if idx < 0 {
		return 0, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: "table has no primary key", Table: table}
	}
	return idx, nil
}
