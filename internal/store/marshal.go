package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/1001054/Data-Disguise/internal/ir"
)

// marshalPlaceholder converts a placeholder locator to JSON TEXT.
// HTML escaping is disabled so predicates such as a<b are stored as written.
func marshalPlaceholder(p ir.PlaceholderLocator) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal placeholder: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPlaceholder parses placeholder JSON TEXT.
func unmarshalPlaceholder(data string) (ir.PlaceholderLocator, error) {
	var p ir.PlaceholderLocator
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, fmt.Errorf("unmarshal placeholder: %w", err)
	}
	if p.Table == "" || p.Predicate == "" {
		return p, fmt.Errorf("unmarshal placeholder: table and pred are required")
	}
	return p, nil
}
