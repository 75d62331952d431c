package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Derive returns a deterministic key for the given parts: the hex SHA-256 of
// the parts joined by ":".
func Derive(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// Canonical encodes v as JSON with object keys sorted, so equal payloads
// produce identical bytes regardless of their original key order.
func Canonical(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}

	b, err = json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ContentKey derives a key from the canonical encoding of v.
func ContentKey(v any) (string, error) {
	c, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return Derive(c), nil
}
