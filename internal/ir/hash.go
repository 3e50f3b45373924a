package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainFunctions = "disguise/functions/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DisguiseDigest computes the integrity digest of a disguise's undo log.
// Restored flags are excluded so the digest stays stable across partial recoveries.
func DisguiseDigest(disguiseID string, functions []Function) (string, error) {
	list := make([]any, len(functions))
	for i, fn := range functions {
		list[i] = map[string]any{
			"seq":       fn.Seq,
			"type":      string(fn.Type),
			"table":     fn.Table,
			"predicate": fn.Predicate,
			"original":  fn.OriginalValues,
			"updated":   fn.UpdatedValues,
		}
	}
	obj := map[string]any{
		"disguise_id": disguiseID,
		"functions":   list,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DisguiseDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFunctions, canonical), nil
}
