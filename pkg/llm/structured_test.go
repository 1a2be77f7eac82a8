package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Plain(t *testing.T) {
	obj, err := ExtractJSON(`{"name": "Acme", "city": "Campinas"}`)
	require.NoError(t, err)
	assert.Equal(t, "Acme", obj["name"])
}

func TestExtractJSON_CodeFences(t *testing.T) {
	content := "```json\n{\"name\": \"Acme\"}\n```"
	obj, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "Acme", obj["name"])
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	content := `Claro! Aqui está o resultado: {"industry": "varejo"} Espero que ajude.`
	obj, err := ExtractJSON(content)
	require.NoError(t, err)
	assert.Equal(t, "varejo", obj["industry"])
}

func TestExtractJSON_NestedObjectsAndBracesInStrings(t *testing.T) {
	content := `{"outer": {"inner": "value with } brace"}, "note": "a \"quoted\" {thing}"}`
	obj, err := ExtractJSON(content)
	require.NoError(t, err)
	inner, ok := obj["outer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "value with } brace", inner["inner"])
}

func TestExtractJSON_TakesFirstObject(t *testing.T) {
	obj, err := ExtractJSON(`{"a": 1} {"b": 2}`)
	require.NoError(t, err)
	assert.Contains(t, obj, "a")
	assert.NotContains(t, obj, "b")
}

func TestExtractJSON_Errors(t *testing.T) {
	_, err := ExtractJSON("no json here")
	assert.Error(t, err)

	_, err = ExtractJSON(`{"unterminated": "object"`)
	assert.Error(t, err)

	_, err = ExtractJSON(`{invalid json}`)
	assert.Error(t, err)
}

func TestSchemaValidate(t *testing.T) {
	schema := &Schema{Required: []string{"name", "industry"}}

	assert.NoError(t, schema.Validate(map[string]any{"name": "Acme", "industry": "varejo", "extra": 1}))

	err := schema.Validate(map[string]any{"name": "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "industry")
}
