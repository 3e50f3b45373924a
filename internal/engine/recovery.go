package engine

import (
	"context"
	"fmt"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/target"
)

// RestoreMarker records that one Function has been undone.
type RestoreMarker interface {
	MarkRestored(ctx context.Context, disguiseID string, seq int64) error
}

// Recovery replays undo logs against the target store.
type Recovery struct {
	accessor *target.Accessor
	marker   RestoreMarker
}

// NewRecovery creates a Recovery. marker may be nil, in which case Functions
// are not flagged as they are restored.
func NewRecovery(accessor *target.Accessor, marker RestoreMarker) *Recovery {
	return &Recovery{accessor: accessor, marker: marker}
}

// Recover replays d's Functions in reverse stored order, so owner rows are
// back before the dependent rows that reference them. Functions already
// flagged restored are skipped. It returns the number of Functions replayed.
//
// On error the remaining Functions are left untouched; the caller keeps the
// disguise in the vault so the recovery can be retried.
func (r *Recovery) Recover(ctx context.Context, d *ir.Disguise) (int, error) {
	replayed := 0
	for i := len(d.Functions) - 1; i >= 0; i-- {
		fn := d.Functions[i]
		if fn.Restored {
			continue
		}
		if err := r.replayFunction(ctx, fn); err != nil {
			return replayed, fmt.Errorf("restore %s step %d: %w", d.ID, fn.Seq, err)
		}
		if r.marker != nil {
			if err := r.marker.MarkRestored(ctx, d.ID, fn.Seq); err != nil {
				return replayed, err
			}
		}
		replayed++
	}
	return replayed, nil
}

// replayFunction undoes one Function.
func (r *Recovery) replayFunction(ctx context.Context, fn ir.Function) error {
	columns, err := r.accessor.DescribeSchema(ctx, fn.Table)
	if err != nil {
		return err
	}
	values, err := ir.DecodeValues(fn.OriginalValues)
	if err != nil {
		return err
	}
	if len(values) != len(columns) {
		return &ir.Error{
			Code:    ir.ErrCodeInvalidInput,
			Message: fmt.Sprintf("schema changed since capture: %d columns, %d stored values", len(columns), len(values)),
			Table:   fn.Table,
		}
	}

	args := make([]any, len(columns))
	for i, col := range columns {
		if args[i], err = ir.ParseValue(col, values[i]); err != nil {
			return err
		}
	}
	names := target.ColumnNames(columns)
	store := r.accessor.Store()

	switch fn.Type {
	case ir.Removal:
		_, err := store.InsertRow(ctx, fn.Table, names, args)
		return err
	case ir.Modification, ir.Decorrelation:
		n, err := store.UpdateColumns(ctx, fn.Table, names, args, fn.Predicate)
		if err != nil {
			return err
		}
		if n < 1 {
			return ir.NewNothingMatched(fn.Table, fn.Predicate)
		}
		return nil
	default:
		return ir.NewInvalidInput(fmt.Sprintf("unsupported function type %q", fn.Type))
	}
}
