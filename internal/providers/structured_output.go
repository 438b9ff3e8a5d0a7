package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ExtractJSON pulls the first JSON object or array out of LLM output.
// Models occasionally wrap structured output in markdown fences or prose
// even when a response format was requested.
func ExtractJSON(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)

	// Strip markdown code fences.
	if strings.HasPrefix(trimmed, "```") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	objStart := strings.Index(trimmed, "{")
	arrStart := strings.Index(trimmed, "[")

	var start int
	var closeChar string
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		closeChar = "}"
	case arrStart >= 0:
		start = arrStart
		closeChar = "]"
	default:
		return nil, fmt.Errorf("no JSON object or array in content")
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return nil, fmt.Errorf("unterminated JSON in content")
	}

	candidate := json.RawMessage(trimmed[start : end+1])
	if !json.Valid(candidate) {
		return nil, fmt.Errorf("extracted content is not valid JSON")
	}
	return candidate, nil
}

// ValidateAgainstSchema validates a JSON payload against a JSON schema.
// An empty schema accepts anything.
func ValidateAgainstSchema(schemaRaw, payload json.RawMessage) error {
	if len(schemaRaw) == 0 || len(payload) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaRaw)); err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("failed to decode payload for validation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
