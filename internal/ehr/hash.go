package ehr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ComputeHash returns the SHA-256 hex digest of v's canonical JSON form.
// Canonicalization round-trips through generic maps so object keys are
// emitted sorted at every nesting level; a top-level "hash" field is
// excluded so a stored digest never feeds back into itself.
func ComputeHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("hash canonicalize: %w", err)
	}
	if m, ok := generic.(map[string]any); ok {
		delete(m, "hash")
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("hash remarshal: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ZeroDocumentHash is the digest of an empty document, used as the
// ledger hash when consent is granted before any document exists.
func ZeroDocumentHash() string {
	h, err := ComputeHash(Document{})
	if err != nil {
		// Document always marshals; unreachable.
		panic(err)
	}
	return h
}
