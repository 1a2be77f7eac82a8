package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSafe_ConvertsTimestamps(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	in := map[string]any{
		"started_at": ts,
		"ended_at":   &ts,
		"nested":     map[string]any{"when": ts},
		"list":       []any{ts, "keep"},
		"name":       "Acme",
		"count":      42,
	}

	out := JSONSafe(in).(map[string]any)

	assert.Equal(t, "2026-03-15T10:30:00Z", out["started_at"])
	assert.Equal(t, "2026-03-15T10:30:00Z", out["ended_at"])
	assert.Equal(t, "2026-03-15T10:30:00Z", out["nested"].(map[string]any)["when"])
	assert.Equal(t, "2026-03-15T10:30:00Z", out["list"].([]any)[0])
	assert.Equal(t, "Acme", out["name"])
	assert.Equal(t, 42, out["count"])
}

func TestJSONSafe_NilTimePointer(t *testing.T) {
	var ts *time.Time
	assert.Nil(t, JSONSafe(map[string]any{"ended_at": ts}).(map[string]any)["ended_at"])
}

func TestMarshalSafe_RejectsUnserializable(t *testing.T) {
	_, err := MarshalSafe(map[string]any{"fn": func() {}})
	assert.Error(t, err)
}

func TestCanonicalJSON_Deterministic(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"z": true, "y": false}}
	b := map[string]any{"c": map[string]any{"y": false, "z": true}, "a": 1, "b": 2}

	ja, err := CanonicalJSON(a)
	require.NoError(t, err)
	jb, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, ja, jb)
}

func TestFingerprint(t *testing.T) {
	payload := map[string]any{"company": "Acme", "fields": map[string]any{"city": "Campinas"}}

	f1, err := Fingerprint("extraction@v1", payload)
	require.NoError(t, err)
	f2, err := Fingerprint("extraction@v1", payload)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64)

	// Same payload under another id must not collide.
	f3, err := Fingerprint("strategy@v1", payload)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f3)

	// Any payload change moves the key.
	f4, err := Fingerprint("extraction@v1", map[string]any{"company": "Acme", "fields": map[string]any{"city": "Sorocaba"}})
	require.NoError(t, err)
	assert.NotEqual(t, f1, f4)
}
