package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/providers"
)

// Recorder attaches attribution to provider call results and records them.
// A nil Recorder is a no-op, so pipeline stages never need to branch on
// whether metrics are enabled.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder creates a metrics recorder.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// RecordOpts provides attribution for a metric recording.
type RecordOpts struct {
	ScanID  string
	Stage   string
	ItemKey string // e.g., "page_0001", "batch_3"
}

// RecordLLMCall records metrics from an LLM chat result. Recording
// failures are logged, never propagated: metrics must not fail the work
// they describe.
func (r *Recorder) RecordLLMCall(ctx context.Context, opts RecordOpts, result *providers.ChatResult) {
	if r == nil || r.store == nil || result == nil {
		return
	}

	m := Metric{
		ScanID:  opts.ScanID,
		Stage:   opts.Stage,
		ItemKey: opts.ItemKey,

		Provider: result.Provider,
		Model:    result.ModelUsed,

		CostUSD:          result.CostUSD,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,

		ExecutionSeconds: result.ExecutionTime.Seconds(),

		Success:   result.Success,
		ErrorType: result.ErrorType,

		RequestID: result.RequestID,
		CreatedAt: time.Now(),
	}

	if err := r.store.Record(ctx, m); err != nil {
		r.logger.Warn("failed to record LLM metric", "stage", opts.Stage, "item", opts.ItemKey, "error", err)
	}
}

// RecordOCRCall records metrics from an OCR result.
func (r *Recorder) RecordOCRCall(ctx context.Context, opts RecordOpts, provider string, result *providers.OCRResult) {
	if r == nil || r.store == nil || result == nil {
		return
	}

	m := Metric{
		ScanID:  opts.ScanID,
		Stage:   opts.Stage,
		ItemKey: opts.ItemKey,

		Provider: provider,

		CostUSD:          result.CostUSD,
		ExecutionSeconds: result.ExecutionTime.Seconds(),

		Success:   result.Success,
		CreatedAt: time.Now(),
	}
	if result.ErrorMessage != "" {
		m.ErrorType = "ocr_error"
	}

	if err := r.store.Record(ctx, m); err != nil {
		r.logger.Warn("failed to record OCR metric", "stage", opts.Stage, "item", opts.ItemKey, "error", err)
	}
}

// RecordError records a failed operation that never produced a result.
func (r *Recorder) RecordError(ctx context.Context, opts RecordOpts, provider, model, errorType string, duration time.Duration) {
	if r == nil || r.store == nil {
		return
	}

	m := Metric{
		ScanID:  opts.ScanID,
		Stage:   opts.Stage,
		ItemKey: opts.ItemKey,

		Provider: provider,
		Model:    model,

		ExecutionSeconds: duration.Seconds(),

		Success:   false,
		ErrorType: errorType,
		CreatedAt: time.Now(),
	}

	if err := r.store.Record(ctx, m); err != nil {
		r.logger.Warn("failed to record error metric", "stage", opts.Stage, "item", opts.ItemKey, "error", err)
	}
}

// ItemKeyForPage formats the conventional per-page item key.
func ItemKeyForPage(pageNum int) string {
	return fmt.Sprintf("page_%04d", pageNum)
}

// ItemKeyForBatch formats the conventional per-batch item key.
func ItemKeyForBatch(batchID int) string {
	return fmt.Sprintf("batch_%d", batchID)
}
