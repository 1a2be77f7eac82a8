// Package cache implements the two caching layers of the system: the
// enrichment cache holding whole sessions and the per-stage analysis
// cache. Both stores persist JSON, so every value passes through a
// JSON-safety pass that renders timestamps as ISO-8601 strings.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// JSONSafe recursively converts a value into a form that serializes to
// JSON without losing timestamp fidelity: every time.Time becomes an
// RFC3339 string. Maps and slices are rebuilt; scalars pass through.
func JSONSafe(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = JSONSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = JSONSafe(item)
		}
		return out
	default:
		return v
	}
}

// MarshalSafe serializes a value after the JSON-safety pass. A failure
// here is a hard error: callers must not commit unserializable state.
func MarshalSafe(v any) ([]byte, error) {
	data, err := json.Marshal(JSONSafe(v))
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-safe: %w", err)
	}
	return data, nil
}

// CanonicalJSON produces a deterministic serialization for
// fingerprinting. Map keys are sorted by encoding/json; the value is
// round-tripped through any-typed maps first so struct field order
// cannot leak in.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(JSONSafe(v))
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical round-trip: %w", err)
	}
	return json.Marshal(generic)
}

// Fingerprint derives a content-addressed key from an identifier and a
// payload: sha256(id ∥ canonical_json(payload)).
func Fingerprint(id string, payload any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(id))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
