// Package pipeline drives the four digitization stages over a scan: ocr,
// correct, fix, and structure. Each stage is resumable: progress lives in
// a per-(scan, stage) checkpoint ledger and completed pages are verified
// against their on-disk artifacts before work is re-planned.
package pipeline

import (
	"context"

	"github.com/jackzampolin/folio/internal/dispatch"
)

// Stage names, in pipeline order.
const (
	StageOCR       = "ocr"
	StageCorrect   = "correct"
	StageFix       = "fix"
	StageStructure = "structure"
)

// Stage is the interface that all pipeline stages must implement.
// Stages are the core abstraction - each transforms page artifacts and
// tracks its own progress.
type Stage interface {
	// Identity
	Name() string           // e.g., "ocr", "structure"
	Dependencies() []string // Stages that must complete first

	Description() string

	// Run processes a scan. Required services (home, registry, logger,
	// metrics recorder) are extracted from ctx via svcctx.
	Run(ctx context.Context, scanID string, opts Options) (*RunResult, error)
}

// Options configures one stage run. The CLI resolves config defaults into
// a fully populated Options before calling Run.
type Options struct {
	// Resume re-derives completed work from on-disk artifacts instead of
	// starting over.
	Resume bool

	// Workers bounds stage concurrency. <= 0 uses the dispatcher default.
	Workers int

	// StartPage/EndPage restrict the run to a sub-range. Zero values mean
	// the full scan.
	StartPage int
	EndPage   int

	// WindowSize and Overlap tune the structure stage's sliding window.
	WindowSize int
	Overlap    int

	// Provider selections.
	LLMProvider string
	OCRProvider string

	// Checkpoint cadence overrides. Zero values use ledger defaults.
	PersistEvery int
	CostFlushUSD float64
}

// RunResult summarizes one stage run.
type RunResult struct {
	Stage   string         `json:"stage"`
	ScanID  string         `json:"scan_id"`
	Skipped int            `json:"skipped"` // already complete before the run
	Stats   dispatch.Stats `json:"stats"`
	CostUSD float64        `json:"cost_usd"`
}
