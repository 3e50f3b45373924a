package ir

import (
	"fmt"
	"strings"
)

// MaxAgeYears bounds expiration and retention ages. Larger ages do not fit a
// time.Duration and would wrap around to a recent cutoff.
const MaxAgeYears = 200

// CheckAgeYears rejects ages outside [0, MaxAgeYears].
func CheckAgeYears(years int) error {
	if years < 0 || years > MaxAgeYears {
		return NewInvalidInput(fmt.Sprintf("age must be between 0 and %d years, got %d", MaxAgeYears, years))
	}
	return nil
}

// PolicyKind selects how a policy's transformations are applied.
type PolicyKind string

const (
	// PolicyExplicit policies carry concrete transformations.
	PolicyExplicit PolicyKind = "explicit"
	// PolicyExpiration policies carry an owner template and dependent
	// templates that the planner expands by age.
	PolicyExpiration PolicyKind = "expiration"
)

// ParsePolicyKind parses a policy kind. An empty string is PolicyExplicit.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch strings.ToLower(s) {
	case "", string(PolicyExplicit):
		return PolicyExplicit, nil
	case string(PolicyExpiration):
		return PolicyExpiration, nil
	default:
		return "", NewInvalidInput(fmt.Sprintf("unknown policy kind %q", s))
	}
}

// Policy is a named, reusable disguise definition.
type Policy struct {
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	Kind            PolicyKind       `json:"kind" yaml:"kind"`
	AgeYears        int              `json:"age_years,omitempty" yaml:"age_years,omitempty"`
	Transformations []Transformation `json:"transformations" yaml:"transformations"`
}
