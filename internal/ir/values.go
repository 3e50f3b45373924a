package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the display format of Timestamp fields.
const TimestampLayout = time.RFC3339Nano

// FormatTimestamp renders a timestamp value losslessly.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Literal renders a field value as a SQL literal. Integers are bare,
// everything else is single-quoted.
func Literal(f Field) string {
	if f.Null {
		return "NULL"
	}
	if f.Type == Integer {
		return f.Value
	}
	return "'" + strings.ReplaceAll(f.Value, "'", "''") + "'"
}

// EqualityPredicate renders name=literal for a field.
func EqualityPredicate(f Field) string {
	return f.Name + "=" + Literal(f)
}

// EncodeValues serializes a snapshot's values in schema order.
// The encoding is a JSON array of strings with null for SQL NULL.
func EncodeValues(fields []Field) (string, error) {
	values := make([]*string, len(fields))
	for i := range fields {
		if fields[i].Null {
			continue
		}
		v := fields[i].Value
		values[i] = &v
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return string(data), nil
}

// DecodeValues parses the output of EncodeValues.
func DecodeValues(s string) ([]*string, error) {
	var values []*string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return values, nil
}

// ParseValue converts a display value back into a driver argument of the column's type.
// A nil value yields a SQL NULL.
func ParseValue(col Column, v *string) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case Integer:
		n, err := strconv.ParseInt(*v, 10, 64)
		if err != nil {
			return nil, NewInvalidInput(fmt.Sprintf("column %s: %q is not an integer", col.Name, *v))
		}
		return n, nil
	case Text:
		return *v, nil
	case Timestamp:
		t, err := time.Parse(TimestampLayout, *v)
		if err != nil {
			return nil, NewInvalidInput(fmt.Sprintf("column %s: %q is not a timestamp", col.Name, *v))
		}
		return t, nil
	default:
		return nil, &Error{
			Code:    ErrCodeUnsupportedType,
			Message: fmt.Sprintf("column %s has unsupported type %q", col.Name, col.DeclaredType),
		}
	}
}
