package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseExtraction turns the model's text response into extracted fields.
// The text is never assumed to be clean JSON: markdown fences are
// stripped and only the outermost object is considered. An empty
// response is treated as an empty object so every field reads as absent;
// malformed JSON and schema violations are errors.
func parseExtraction(text string) (Fields, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if text == "" {
		return Fields{}, nil
	}

	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		return Fields{}, fmt.Errorf("no JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Fields{}, fmt.Errorf("unmarshaling response: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Fields{}, fmt.Errorf("response violates schema: %w", err)
	}

	var fields Fields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return Fields{}, fmt.Errorf("unmarshaling response: %w", err)
	}
	return fields, nil
}
