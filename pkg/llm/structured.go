package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema declares the structured-output contract of a call: the response
// must be a single JSON object containing every required key.
type Schema struct {
	Required []string
}

// ExtractJSON pulls the first top-level JSON object out of model output.
// Code fences and surrounding prose are tolerated; models decorate
// despite instructions.
func ExtractJSON(content string) (map[string]any, error) {
	trimmed := stripCodeFences(content)

	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				var out map[string]any
				if err := json.Unmarshal([]byte(trimmed[start:i+1]), &out); err != nil {
					return nil, fmt.Errorf("invalid JSON object: %w", err)
				}
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated JSON object")
}

// Validate checks the object against the schema.
func (s *Schema) Validate(obj map[string]any) error {
	var missing []string
	for _, key := range s.Required {
		if _, ok := obj[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// stripCodeFences removes markdown code fences wherever they appear.
func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	var sb strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}
