package metrics

import (
	"context"
	"fmt"
)

// StageSummary aggregates all metrics of one stage within a scan.
type StageSummary struct {
	Stage            string  `json:"stage"`
	Calls            int     `json:"calls"`
	Failures         int     `json:"failures"`
	CostUSD          float64 `json:"cost_usd"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalSeconds     float64 `json:"total_seconds"`
}

// ScanSummary aggregates all metrics of a scan, broken down by stage.
type ScanSummary struct {
	ScanID  string         `json:"scan_id"`
	Calls   int            `json:"calls"`
	CostUSD float64        `json:"cost_usd"`
	Stages  []StageSummary `json:"stages"`
}

// SummarizeScan returns the per-stage aggregation for a scan.
func (s *Store) SummarizeScan(ctx context.Context, scanID string) (*ScanSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage,
		       COUNT(*),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		       COALESCE(SUM(cost_usd), 0),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(execution_seconds), 0)
		FROM metrics
		WHERE scan_id = ?
		GROUP BY stage
		ORDER BY stage
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query scan summary: %w", err)
	}
	defer rows.Close()

	summary := &ScanSummary{ScanID: scanID}
	for rows.Next() {
		var st StageSummary
		if err := rows.Scan(&st.Stage, &st.Calls, &st.Failures, &st.CostUSD,
			&st.PromptTokens, &st.CompletionTokens, &st.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan stage summary: %w", err)
		}
		summary.Stages = append(summary.Stages, st)
		summary.Calls += st.Calls
		summary.CostUSD += st.CostUSD
	}
	return summary, rows.Err()
}

// ScanCost returns the total recorded cost for a scan.
func (s *Store) ScanCost(ctx context.Context, scanID string) (float64, error) {
	var cost float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0) FROM metrics WHERE scan_id = ?
	`, scanID).Scan(&cost)
	if err != nil {
		return 0, fmt.Errorf("query scan cost: %w", err)
	}
	return cost, nil
}

// RecentErrors returns the most recent failed calls for a scan, newest
// first, capped at limit.
func (s *Store) RecentErrors(ctx context.Context, scanID string, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_id, stage, item_key, provider, model, error_type, created_at
		FROM metrics
		WHERE scan_id = ? AND success = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, scanID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent errors: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ScanID, &m.Stage, &m.ItemKey,
			&m.Provider, &m.Model, &m.ErrorType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		m.CreatedAt = timeFromUnix(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
