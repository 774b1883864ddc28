package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// keyPrefix namespaces PDP entries in shared backends.
const keyPrefix = "pdp"

// Key builds a canonical cache key for a query shape and payload. The payload
// is serialized to canonical JSON (map keys sorted by encoding/json), hashed,
// and truncated so keys stay short in Redis. The payload must include the
// acting user and every query-affecting field so two principals never share
// an entry.
func Key(shape string, payload any) (string, error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize cache payload: %w", err)
	}
	sum := sha256.Sum256(serialized)
	return fmt.Sprintf("%s:%s:%s", keyPrefix, shape, hex.EncodeToString(sum[:])[:16]), nil
}
