package providers

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"a": 1}`,
			want:    `{"a": 1}`,
		},
		{
			name:    "fenced object",
			content: "```json\n{\"a\": 1}\n```",
			want:    `{"a": 1}`,
		},
		{
			name:    "object wrapped in prose",
			content: "Here is the result:\n{\"a\": 1}\nLet me know if you need more.",
			want:    `{"a": 1}`,
		},
		{
			name:    "array",
			content: `[1, 2, 3]`,
			want:    `[1, 2, 3]`,
		},
		{
			name:    "no json",
			content: "I could not process this page.",
			wantErr: true,
		},
		{
			name:    "truncated json",
			content: `{"a": [1, 2`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractJSON() = %s, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateAgainstSchema(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"required": ["clean_text", "paragraphs"],
		"properties": {
			"clean_text": {"type": "string"},
			"paragraphs": {"type": "array"}
		}
	}`)

	t.Run("valid payload", func(t *testing.T) {
		payload := json.RawMessage(`{"clean_text": "hello", "paragraphs": []}`)
		if err := ValidateAgainstSchema(schema, payload); err != nil {
			t.Errorf("ValidateAgainstSchema() error = %v", err)
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		payload := json.RawMessage(`{"clean_text": "hello"}`)
		if err := ValidateAgainstSchema(schema, payload); err == nil {
			t.Error("ValidateAgainstSchema() should reject missing paragraphs")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		payload := json.RawMessage(`{"clean_text": 42, "paragraphs": []}`)
		if err := ValidateAgainstSchema(schema, payload); err == nil {
			t.Error("ValidateAgainstSchema() should reject non-string clean_text")
		}
	})

	t.Run("empty schema accepts anything", func(t *testing.T) {
		if err := ValidateAgainstSchema(nil, json.RawMessage(`{"x": 1}`)); err != nil {
			t.Errorf("ValidateAgainstSchema() error = %v", err)
		}
	})
}
