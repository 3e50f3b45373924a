package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/1001054/Data-Disguise/internal/ir"
	"github.com/1001054/Data-Disguise/internal/target"
)

// Planner expands age-based policies into concrete transformations.
type Planner struct {
	accessor *target.Accessor
	clock    Clock
}

// NewPlanner creates a Planner reading owner rows through accessor.
func NewPlanner(accessor *target.Accessor, clock Clock) *Planner {
	if clock == nil {
		clock = RealClock{}
	}
	return &Planner{accessor: accessor, clock: clock}
}

// Cutoff returns the instant before which owner rows are eligible: ageYears
// 365-day years before now.
func (p *Planner) Cutoff(ageYears int) time.Time {
	return p.clock.Now().AddDate(0, 0, -365*ageYears)
}

// Expand turns templates into concrete transformations.
//
// Exactly one template is the owner: its Predicate holds a bare timestamp
// column name. Every other template is a dependent carrying the foreign-key
// column that references the owner row. For each owner row older than the
// cutoff, Expand emits one transformation per dependent template, addressed
// by the owner's foreign-key value, and one owner transformation addressed by
// the owner's primary key.
//
// The result lists all dependent transformations, for all owner rows,
// followed by all owner transformations.
func (p *Planner) Expand(ctx context.Context, templates []ir.Transformation, ageYears int) ([]ir.Transformation, error) {
	if err := ir.CheckAgeYears(ageYears); err != nil {
		return nil, err
	}
	owner, dependents, err := splitTemplates(templates)
	if err != nil {
		return nil, err
	}

	cutoff := p.accessor.Store().TimestampLiteral(p.Cutoff(ageYears))
	ownerPredicate := owner.Predicate + " < " + cutoff

	rows, err := p.accessor.SelectRows(ctx, owner.Table, ownerPredicate)
	if err != nil {
		return nil, err
	}

	var planned, owners []ir.Transformation
	for _, r := range rows {
		for _, d := range dependents {
			fk, ok := r.Field(d.ForeignKey)
			if !ok {
				return nil, &ir.Error{
					Code:    ir.ErrCodeInvalidInput,
					Message: fmt.Sprintf("owner row has no column %s", d.ForeignKey),
					Table:   owner.Table,
				}
			}
			// A NULL key cannot be referenced by any dependent row.
			if fk.Null {
				continue
			}
			planned = append(planned, ir.Transformation{
				Kind:       d.Kind,
				Table:      d.Table,
				Predicate:  ir.EqualityPredicate(fk),
				ForeignKey: d.ForeignKey,
				Changes:    d.Changes,
			})
		}
		predicate, err := r.Predicate()
		if err != nil {
			return nil, err
		}
		owners = append(owners, ir.Transformation{
			Kind:      owner.Kind,
			Table:     owner.Table,
			Predicate: predicate,
			Changes:   owner.Changes,
		})
	}

	return append(planned, owners...), nil
}

// splitTemplates separates the owner template from the dependents.
func splitTemplates(templates []ir.Transformation) (ir.Transformation, []ir.Transformation, error) {
	var (
		owner      ir.Transformation
		found      bool
		dependents []ir.Transformation
	)
	for _, t := range templates {
		if _, err := ir.ParseTransformationKind(string(t.Kind)); err != nil {
			return owner, nil, err
		}
		if t.Table == "" {
			return owner, nil, ir.NewInvalidInput("template table is required")
		}
		if t.Predicate != "" {
			if found {
				return owner, nil, ir.NewInvalidInput("expansion takes exactly one owner template")
			}
			owner, found = t, true
			continue
		}
		if t.ForeignKey == "" {
			return owner, nil, &ir.Error{Code: ir.ErrCodeInvalidInput, Message: "dependent template needs a foreign key", Table: t.Table}
		}
		dependents = append(dependents, t)
	}
	if !found {
		return owner, nil, ir.NewInvalidInput("expansion needs an owner template naming the age column")
	}
	return owner, dependents, nil
}
