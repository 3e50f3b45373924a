package target

import (
	"fmt"
	"strconv"
	"time"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// Layouts accepted when a driver returns a timestamp column as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// formatValue renders a raw driver value as a snapshot field.
func formatValue(col ir.Column, raw any) (ir.Field, error) {
	f := ir.Field{Name: col.Name, Type: col.Type}
	if raw == nil {
		f.Null = true
		return f, nil
	}

	switch col.Type {
	case ir.Integer:
		switch v := raw.(type) {
		case int64:
			f.Value = strconv.FormatInt(v, 10)
		case []byte:
			return parseInteger(f, string(v))
		case string:
			return parseInteger(f, v)
		default:
			return f, fmt.Errorf("column %s: unexpected integer value %T", col.Name, raw)
		}
	case ir.Text:
		switch v := raw.(type) {
		case string:
			f.Value = v
		case []byte:
			f.Value = string(v)
		case int64:
			f.Value = strconv.FormatInt(v, 10)
		case time.Time:
			f.Value = ir.FormatTimestamp(v)
		default:
			return f, fmt.Errorf("column %s: unexpected text value %T", col.Name, raw)
		}
	case ir.Timestamp:
		switch v := raw.(type) {
		case time.Time:
			f.Value = ir.FormatTimestamp(v)
		case []byte:
			return parseTimestamp(f, string(v))
		case string:
			return parseTimestamp(f, v)
		default:
			return f, fmt.Errorf("column %s: unexpected timestamp value %T", col.Name, raw)
		}
	default:
		return f, &ir.Error{
			Code:    ir.ErrCodeUnsupportedType,
			Message: fmt.Sprintf("column %s has unsupported type %q", col.Name, col.DeclaredType),
		}
	}
	return f, nil
}

func parseInteger(f ir.Field, s string) (ir.Field, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return f, fmt.Errorf("column %s: %q is not an integer", f.Name, s)
	}
	f.Value = strconv.FormatInt(n, 10)
	return f, nil
}

func parseTimestamp(f ir.Field, s string) (ir.Field, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Value = ir.FormatTimestamp(t)
			return f, nil
		}
	}
	return f, fmt.Errorf("column %s: %q is not a timestamp", f.Name, s)
}
