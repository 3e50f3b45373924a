package ir

import (
	"fmt"
	"strings"
	"time"
)

// TransformationKind names the operation a Transformation performs.
type TransformationKind string

const (
	// Removal deletes the selected rows.
	Removal TransformationKind = "removal"

	// Modification rewrites columns of the selected rows with a caller-supplied assignment.
	Modification TransformationKind = "modification"

	// Decorrelation repoints the selected rows' foreign key at the subject's placeholder row.
	Decorrelation TransformationKind = "decorrelation"
)

// ParseTransformationKind maps a wire name (case-insensitive) to a kind.
func ParseTransformationKind(s string) (TransformationKind, error) {
	switch TransformationKind(strings.ToLower(strings.TrimSpace(s))) {
	case Removal:
		return Removal, nil
	case Modification:
		return Modification, nil
	case Decorrelation:
		return Decorrelation, nil
	default:
		return "", NewInvalidInput(fmt.Sprintf("unsupported transformation kind %q", s))
	}
}

// UnmarshalText accepts any casing of a kind name and stores the canonical form.
func (k *TransformationKind) UnmarshalText(b []byte) error {
	parsed, err := ParseTransformationKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Transformation is one planned or concrete operation against the target store.
//
// Predicate and Changes are opaque expressions in the target's query language.
// They are passed to the store verbatim.
type Transformation struct {
	Kind       TransformationKind `json:"transform_type" yaml:"kind"`
	Table      string             `json:"table_name" yaml:"table"`
	Predicate  string             `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	ForeignKey string             `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	Changes    string             `json:"changes,omitempty" yaml:"changes,omitempty"`
}

// Validate checks the fields required by the transformation's kind.
func (t Transformation) Validate() error {
	if _, err := ParseTransformationKind(string(t.Kind)); err != nil {
		return err
	}
	if t.Table == "" {
		return NewInvalidInput("transformation table is required")
	}
	if t.Predicate == "" {
		return NewInvalidInput(fmt.Sprintf("transformation on %s: predicate is required", t.Table))
	}
	if t.Kind == Modification && t.Changes == "" {
		return NewInvalidInput(fmt.Sprintf("modification on %s: changes are required", t.Table))
	}
	return nil
}

func (t Transformation) String() string {
	s := fmt.Sprintf("%s %s WHERE %s", t.Kind, t.Table, t.Predicate)
	if t.Changes != "" {
		s += " SET " + t.Changes
	}
	return s
}

// SemanticType is the closed set of column types the engine can snapshot and restore.
type SemanticType int

const (
	Unsupported SemanticType = iota
	Text
	Integer
	Timestamp
)

func (t SemanticType) String() string {
	switch t {
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Timestamp:
		return "timestamp"
	default:
		return "unsupported"
	}
}

// Column describes one column of a target table, in ordinal order.
type Column struct {
	Name       string
	Type       SemanticType
	PrimaryKey bool
	// DeclaredType is the type name reported by the store.
	DeclaredType string
}

// Field is one value of a row snapshot.
type Field struct {
	Name  string       `json:"name"`
	Type  SemanticType `json:"type"`
	Value string       `json:"value"`
	Null  bool         `json:"null,omitempty"`
}

// Target is a row snapshot taken before mutation.
type Target struct {
	Fields     []Field `json:"fields"`
	PrimaryKey int     `json:"primary_key"`
}

// PrimaryKeyField returns the field holding the row's primary key. It fails
// when PrimaryKey does not index Fields.
func (t Target) PrimaryKeyField() (Field, error) {
	if t.PrimaryKey < 0 || t.PrimaryKey >= len(t.Fields) {
		return Field{}, NewInvalidInput(fmt.Sprintf("primary key index %d out of range for %d field(s)", t.PrimaryKey, len(t.Fields)))
	}
	return t.Fields[t.PrimaryKey], nil
}

// Field returns the named field.
func (t Target) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Predicate renders the row's own primary-key predicate, e.g. contact_id=19.
func (t Target) Predicate() (string, error) {
	pk, err := t.PrimaryKeyField()
	if err != nil {
		return "", err
	}
	return EqualityPredicate(pk), nil
}

// Disguise is the ledger header of an applied policy plus its ordered undo steps.
type Disguise struct {
	ID         string     `json:"disguise_id"`
	AppliedAt  time.Time  `json:"applied_at"`
	VaultID    string     `json:"vault_id"`
	PolicyName string     `json:"disguise_type"`
	Digest     string     `json:"digest"`
	Functions  []Function `json:"functions"`
}

// Function is one row-level undo step.
type Function struct {
	DisguiseID     string             `json:"disguise_id" db:"disguise_id"`
	Seq            int64              `json:"seq" db:"seq"`
	Type           TransformationKind `json:"function_type" db:"function_type"`
	Table          string             `json:"table_name" db:"table_name"`
	Predicate      string             `json:"predicate" db:"predicate"`
	OriginalValues string             `json:"original" db:"original"`
	UpdatedValues  string             `json:"updated" db:"updated"`
	Restored       bool               `json:"restored,omitempty" db:"restored"`
}

// PlaceholderLocator points at the anonymous identity row a subject's content is repointed to.
type PlaceholderLocator struct {
	Table     string `json:"table"`
	Predicate string `json:"pred"`
}

// Assignment is the SET clause a Decorrelation applies to the foreign-key column.
func (p PlaceholderLocator) Assignment() string {
	return p.Predicate
}

// VaultIdentity ties a subject to their placeholder row.
type VaultIdentity struct {
	VaultID     string             `json:"vault_id"`
	Email       string             `json:"email"`
	Placeholder PlaceholderLocator `json:"placeholder_info"`
}

// RetentionCriterion selects disguises for a retention sweep.
// Either ByAge is set, selecting disguises applied more than MaxAge ago
// (a zero MaxAge selects everything applied before now), or the
// (VaultID, PolicyName) pair is.
type RetentionCriterion struct {
	ByAge      bool
	MaxAge     time.Duration
	VaultID    string
	PolicyName string
}

// Validate enforces the mutual exclusion of the two criterion forms.
func (c RetentionCriterion) Validate() error {
	bySubject := c.VaultID != "" || c.PolicyName != ""
	switch {
	case c.ByAge && bySubject:
		return NewInvalidInput("retention criterion takes either an age or a policy and vault id, not both")
	case c.ByAge && c.MaxAge < 0:
		return NewInvalidInput("retention age must not be negative")
	case c.ByAge:
		return nil
	case c.VaultID != "" && c.PolicyName != "":
		return nil
	case bySubject:
		return NewInvalidInput("retention criterion needs both a policy name and a vault id")
	default:
		return NewInvalidInput("retention criterion is empty")
	}
}
