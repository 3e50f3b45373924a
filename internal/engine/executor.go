package engine

import (
	"context"
	"fmt"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/target"
)

// Executor applies concrete transformations to the target store.
type Executor struct {
	store target.Store
}

// NewExecutor creates an Executor writing to store.
func NewExecutor(store target.Store) *Executor {
	return &Executor{store: store}
}

// Execute applies transformations in order and returns one change record per
// transformation: "" for Removal, the assignment for Modification, and
// placeholderAssignment for Decorrelation.
//
// Every write must affect at least one row. The first failure aborts the
// batch; the change records of the transformations already committed are
// returned alongside the error and their writes are not rolled back.
func (x *Executor) Execute(ctx context.Context, transformations []ir.Transformation, placeholderAssignment string) ([]string, error) {
	changes := make([]string, 0, len(transformations))
	for i, t := range transformations {
		change, err := x.executeOne(ctx, t, placeholderAssignment)
		if err != nil {
			return changes, fmt.Errorf("transformation %d: %w", i, err)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (x *Executor) executeOne(ctx context.Context, t ir.Transformation, placeholderAssignment string) (string, error) {
	var (
		n      int64
		err    error
		change string
	)

	switch t.Kind {
	case ir.Removal:
		n, err = x.store.DeleteRows(ctx, t.Table, t.Predicate)
	case ir.Modification:
		if t.Changes == "" {
			return "", &ir.Error{Code: ir.ErrCodeInvalidInput, Message: "modification without changes", Table: t.Table}
		}
		change = t.Changes
		n, err = x.store.UpdateRows(ctx, t.Table, t.Changes, t.Predicate)
	case ir.Decorrelation:
		if placeholderAssignment == "" {
			return "", &ir.Error{Code: ir.ErrCodeInvalidInput, Message: "decorrelation without a placeholder assignment", Table: t.Table}
		}
		change = placeholderAssignment
		n, err = x.store.UpdateRows(ctx, t.Table, placeholderAssignment, t.Predicate)
	default:
		return "", ir.NewInvalidInput(fmt.Sprintf("unsupported transformation kind %q", t.Kind))
	}

	if err != nil {
		return "", err
	}
	if n < 1 {
		return "", ir.NewNothingMatched(t.Table, t.Predicate)
	}
	return change, nil
}
