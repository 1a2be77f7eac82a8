package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithEventID_InjectsID(t *testing.T) {
	out, err := withEventID([]byte(`{"type":"layer1_complete","fields":{"name":"Acme"}}`), 42)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "layer1_complete", m["type"])
	assert.EqualValues(t, 42, m["db_event_id"])
	assert.NotContains(t, m, "truncated")
}

func TestWithEventID_OversizedPayloadBecomesStub(t *testing.T) {
	big := map[string]any{
		"type":   "layer3_complete",
		"fields": map[string]any{"description": strings.Repeat("a", notifyLimit)},
	}
	payload, err := json.Marshal(big)
	require.NoError(t, err)

	out, err := withEventID(payload, 7)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), notifyLimit)

	var stub map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stub))
	assert.Equal(t, "layer3_complete", stub["type"])
	assert.EqualValues(t, 7, stub["db_event_id"])
	assert.Equal(t, true, stub["truncated"])
	assert.NotContains(t, stub, "fields", "a stub routes, it does not carry data")
}
