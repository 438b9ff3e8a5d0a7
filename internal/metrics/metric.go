// Package metrics provides cost and usage tracking for LLM/OCR operations.
// Metrics are append-only records stored in a per-installation SQLite
// database with full attribution.
package metrics

import "time"

// Metric represents a single recorded metric for an LLM or OCR call.
type Metric struct {
	ID int64 `json:"id,omitempty"`

	// Attribution (for filtering/aggregation)
	ScanID  string `json:"scan_id,omitempty"`
	Stage   string `json:"stage,omitempty"`
	ItemKey string `json:"item_key,omitempty"` // e.g., "page_0001", "batch_3"

	// Provider info
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Cost and tokens
	CostUSD          float64 `json:"cost_usd,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`

	// Timing
	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	// Metadata
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
