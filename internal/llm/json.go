package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes optional markdown code-fence wrapping from model
// output. Models asked for raw JSON still fence it often enough that
// this is the first thing every consumer would otherwise do.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// validateShape parses content and checks the declared top-level shape
// and required fields. A failure here is eligible for fallback, exactly
// like a transport error; malformed structure is never silently passed
// through to a stage.
func validateShape(content string, schema Schema) error {
	trimmed := strings.TrimSpace(content)
	switch schema.Shape {
	case ShapeArray:
		// The literal null unmarshals into a nil slice without error, so
		// the top-level token is checked first.
		if !strings.HasPrefix(trimmed, "[") {
			return fmt.Errorf("expected JSON array, got %q", firstToken(trimmed))
		}
		// Per-element fields are the stage's concern: a single bad item
		// is discarded there without condemning the whole batch.
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return fmt.Errorf("expected JSON array: %w", err)
		}
		return nil
	case ShapeObject:
		if !strings.HasPrefix(trimmed, "{") {
			return fmt.Errorf("expected JSON object, got %q", firstToken(trimmed))
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return fmt.Errorf("expected JSON object: %w", err)
		}
		for _, field := range schema.Required {
			if _, ok := obj[field]; !ok {
				return fmt.Errorf("object missing required field %q", field)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown schema shape %d", schema.Shape)
	}
}

// firstToken trims content to a short prefix for error messages.
func firstToken(s string) string {
	if len(s) > 20 {
		return s[:20] + "..."
	}
	return s
}
