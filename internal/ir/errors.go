package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidInput covers malformed requests, unsupported kinds,
	// missing fields and writes whose predicate matched nothing.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeNotFound indicates a vault identity or disguise lookup miss.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeNoMatch indicates a snapshot read selected zero rows.
	ErrCodeNoMatch ErrorCode = "NO_MATCH"

	// ErrCodeUnsupportedType indicates a column whose type cannot be snapshotted.
	ErrCodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
)

// Error is a typed engine error. Store-layer failures are never converted
// into an Error; they propagate wrapped with %w.
type Error struct {
	Code    ErrorCode
	Message string

	// Table and Predicate locate the failing operation when known.
	Table     string
	Predicate string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Table != "" && e.Predicate != "" {
		return fmt.Sprintf("%s: %s (table=%s, predicate=%s)", e.Code, e.Message, e.Table, e.Predicate)
	}
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidInput creates an INVALID_INPUT error.
func NewInvalidInput(message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: message}
}

// NewNotFound creates a NOT_FOUND error.
func NewNotFound(message string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: message}
}

// NewNoMatch creates a NO_MATCH error for a selection on table.
func NewNoMatch(table, predicate string) *Error {
	return &Error{
		Code:      ErrCodeNoMatch,
		Message:   "selection matched no rows",
		Table:     table,
		Predicate: predicate,
	}
}

// NewNothingMatched creates the INVALID_INPUT error raised when a write affects no rows.
func NewNothingMatched(table, predicate string) *Error {
	return &Error{
		Code:      ErrCodeInvalidInput,
		Message:   "predicate matched nothing",
		Table:     table,
		Predicate: predicate,
	}
}

// NewUnsupportedType creates an UNSUPPORTED_TYPE error for a column.
func NewUnsupportedType(table, column, declared string) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedType,
		Message: fmt.Sprintf("column %s has unsupported type %q", column, declared),
		Table:   table,
	}
}

// CodeOf returns the code of the first Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidInput reports whether err is an INVALID_INPUT error.
func IsInvalidInput(err error) bool { return CodeOf(err) == ErrCodeInvalidInput }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsNoMatch reports whether err is a NO_MATCH error.
func IsNoMatch(err error) bool { return CodeOf(err) == ErrCodeNoMatch }

// IsUnsupported reports whether err is an UNSUPPORTED_TYPE error.
func IsUnsupported(err error) bool { return CodeOf(err) == ErrCodeUnsupportedType }
