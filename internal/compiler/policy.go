package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// CompilePolicy parses a CUE value into a Policy.
//
// The CUE value should be the policy struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`policy: userscrub: { ... }`)
//	p, err := CompilePolicy(v.LookupPath(cue.ParsePath("policy.userscrub")))
func CompilePolicy(v cue.Value) (*ir.Policy, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &ir.Policy{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		p.Name = labels[len(labels)-1].String()
	}

	desc, err := optionalString(v, "description")
	if err != nil {
		return nil, err
	}
	p.Description = desc

	kind, err := optionalString(v, "kind")
	if err != nil {
		return nil, err
	}
	if p.Kind, err = ir.ParsePolicyKind(kind); err != nil {
		return nil, &CompileError{Field: "kind", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("kind")).Pos()}
	}

	if ageVal := v.LookupPath(cue.ParsePath("age_years")); ageVal.Exists() {
		age, err := ageVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.AgeYears = int(age)
	}

	p.Transformations, err = parseTransformations(v)
	if err != nil {
		return nil, err
	}
	if len(p.Transformations) == 0 {
		return nil, &CompileError{
			Field:   "transformations",
			Message: "at least one transformation is required",
			Pos:     v.Pos(),
		}
	}

	return p, nil
}

// parseTransformations extracts the transformation list of a policy.
func parseTransformations(v cue.Value) ([]ir.Transformation, error) {
	listVal := v.LookupPath(cue.ParsePath("transformations"))
	if !listVal.Exists() {
		return nil, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []ir.Transformation
	for i := 0; iter.Next(); i++ {
		tv := iter.Value()
		field := fmt.Sprintf("transformations[%d]", i)

		kind, err := optionalString(tv, "kind")
		if err != nil {
			return nil, err
		}
		if kind == "" {
			return nil, &CompileError{Field: field + ".kind", Message: "kind is required", Pos: tv.Pos()}
		}
		k, err := ir.ParseTransformationKind(kind)
		if err != nil {
			return nil, &CompileError{Field: field + ".kind", Message: err.Error(), Pos: tv.Pos()}
		}

		t := ir.Transformation{Kind: k}
		for name, dst := range map[string]*string{
			"table":       &t.Table,
			"predicate":   &t.Predicate,
			"foreign_key": &t.ForeignKey,
			"changes":     &t.Changes,
		} {
			if *dst, err = optionalString(tv, name); err != nil {
				return nil, err
			}
		}
		if t.Table == "" {
			return nil, &CompileError{Field: field + ".table", Message: "table is required", Pos: tv.Pos()}
		}

		out = append(out, t)
	}
	return out, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
