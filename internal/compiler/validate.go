package compiler

import (
	"fmt"
	"strings"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrPolicyNameEmpty      = "E101" // policy name is required
	ErrNoTransformations    = "E102" // at least one transformation required
	ErrInvalidKind          = "E103" // unknown transformation or policy kind
	ErrMissingTable         = "E104" // transformation table is required
	ErrMissingPredicate     = "E105" // explicit transformation needs a predicate
	ErrMissingChanges       = "E106" // modification needs changes
	ErrOwnerCount           = "E107" // expiration needs exactly one owner template
	ErrMissingForeignKey    = "E108" // dependent template needs a foreign key
	ErrAgeOutOfRange        = "E109" // age_years must be within [0, ir.MaxAgeYears]
	ErrUnexpectedForeignKey = "E110" // owner template must not carry a foreign key
)

// ValidationError represents a policy validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled policy. It returns every error found rather
// than stopping at the first.
func Validate(p *ir.Policy) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "policy name is required", Code: ErrPolicyNameEmpty})
	}
	if len(p.Transformations) == 0 {
		errs = append(errs, ValidationError{Field: "transformations", Message: "at least one transformation is required", Code: ErrNoTransformations})
	}

	for i, t := range p.Transformations {
		field := fmt.Sprintf("transformations[%d]", i)
		if _, err := ir.ParseTransformationKind(string(t.Kind)); err != nil {
			errs = append(errs, ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %q", t.Kind), Code: ErrInvalidKind})
		}
		if t.Table == "" {
			errs = append(errs, ValidationError{Field: field + ".table", Message: "table is required", Code: ErrMissingTable})
		}
		if t.Kind == ir.Modification && t.Changes == "" {
			errs = append(errs, ValidationError{Field: field + ".changes", Message: "modification requires changes", Code: ErrMissingChanges})
		}
	}

	switch p.Kind {
	case ir.PolicyExplicit:
		errs = append(errs, validateExplicit(p)...)
	case ir.PolicyExpiration:
		errs = append(errs, validateExpiration(p)...)
	default:
		errs = append(errs, ValidationError{Field: "kind", Message: fmt.Sprintf("unknown policy kind %q", p.Kind), Code: ErrInvalidKind})
	}

	return errs
}

func validateExplicit(p *ir.Policy) []ValidationError {
	var errs []ValidationError
	for i, t := range p.Transformations {
		if strings.TrimSpace(t.Predicate) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("transformations[%d].predicate", i),
				Message: "explicit transformations need a predicate",
				Code:    ErrMissingPredicate,
			})
		}
	}
	return errs
}

// validateExpiration enforces the template shape the planner expects: one
// owner naming its age column in predicate, every other template naming a
// foreign key.
func validateExpiration(p *ir.Policy) []ValidationError {
	var errs []ValidationError

	if ir.CheckAgeYears(p.AgeYears) != nil {
		errs = append(errs, ValidationError{Field: "age_years", Message: fmt.Sprintf("age must be between 0 and %d years, got %d", ir.MaxAgeYears, p.AgeYears), Code: ErrAgeOutOfRange})
	}

	owners := 0
	for i, t := range p.Transformations {
		field := fmt.Sprintf("transformations[%d]", i)
		if t.Predicate != "" {
			owners++
			if t.ForeignKey != "" {
				errs = append(errs, ValidationError{Field: field + ".foreign_key", Message: "owner template must not name a foreign key", Code: ErrUnexpectedForeignKey})
			}
			continue
		}
		if t.ForeignKey == "" {
			errs = append(errs, ValidationError{Field: field + ".foreign_key", Message: "dependent template needs a foreign key", Code: ErrMissingForeignKey})
		}
	}
	if owners != 1 {
		errs = append(errs, ValidationError{
			Field:   "transformations",
			Message: fmt.Sprintf("expiration policies need exactly one owner template, found %d", owners),
			Code:    ErrOwnerCount,
		})
	}

	return errs
}
