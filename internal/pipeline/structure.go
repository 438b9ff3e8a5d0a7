package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackzampolin/folio/internal/assembler"
	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
)

// Default sliding-window shape when options leave it unset.
const (
	DefaultWindowSize = 4
	DefaultOverlap    = 1
)

// StructureStage assembles the corrected pages into one deduplicated
// document: overlapping batches are extracted by an LLM, adjacent overlaps
// reconciled (with LLM arbitration on disagreement), and the results
// merged with per-page provenance.
type StructureStage struct{}

// NewStructureStage creates the structure stage.
func NewStructureStage() *StructureStage { return &StructureStage{} }

func (s *StructureStage) Name() string           { return StageStructure }
func (s *StructureStage) Dependencies() []string { return []string{StageFix} }
func (s *StructureStage) Description() string {
	return "Detect document structure via overlapping LLM extraction windows"
}

func (s *StructureStage) Run(ctx context.Context, scanID string, opts Options) (*RunResult, error) {
	env, err := envFrom(ctx, StageStructure)
	if err != nil {
		return nil, err
	}

	_, startPage, endPage, err := loadRange(env, scanID, opts)
	if err != nil {
		return nil, err
	}

	llm, err := env.registry.GetLLM(opts.LLMProvider)
	if err != nil {
		return nil, err
	}

	window := opts.WindowSize
	if window <= 0 {
		window = DefaultWindowSize
	}
	overlap := opts.Overlap
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	corrected, err := LoadCorrectedPages(env.home, scanID, StageFix, startPage, endPage)
	if err != nil {
		return nil, fmt.Errorf("corrected pages incomplete (run the fix stage first): %w", err)
	}
	pages := make([]assembler.PageRecord, 0, len(corrected))
	for _, p := range corrected {
		pages = append(pages, assembler.PageRecord{PageNum: p.PageNum, Text: p.Text})
	}

	// The ledger tracks batches, not pages, for this stage: item N is
	// batch N-1, and its cached extraction artifact doubles as the resume
	// validation target.
	batches, err := assembler.PlanBatches(startPage, endPage, window, overlap)
	if err != nil {
		return nil, err
	}

	ledger, err := env.openLedger(scanID, StageStructure, opts)
	if err != nil {
		return nil, err
	}
	cached := map[int]bool{}
	for _, item := range ledger.RemainingPages(len(batches), opts.Resume,
		1, len(batches), ValidateJSONFile(env.home, scanID, StageStructure)) {
		cached[item] = false
	}
	for i := 1; i <= len(batches); i++ {
		if _, remaining := cached[i]; !remaining {
			cached[i] = true
		}
	}

	env.logger.Info("stage starting",
		"scan_id", scanID,
		"provider", llm.Name(),
		"pages", len(pages),
		"batches", len(batches),
		"cached", len(batches)-countFalse(cached),
		"window", window,
		"overlap", overlap)

	extractor := &llmExtractor{
		env:    env,
		llm:    llm,
		scanID: scanID,
		cached: cached,
	}

	asm, err := assembler.New(assembler.Config{
		WindowSize: window,
		Overlap:    overlap,
		Pool: dispatch.New(dispatch.Config{
			MaxWorkers: opts.Workers,
			Limiter:    providers.NewRateLimiter(llm.CallsPerMinute()),
			Logger:     env.logger,
		}),
		Extractor: extractor,
		Arbiter:   &llmArbiter{env: env, llm: llm, scanID: scanID},
		Logger:    env.logger,
		OnBatchDone: func(r *assembler.BatchResult) {
			if r.Status != assembler.BatchSuccess {
				return
			}
			if err := writePageArtifact(env.home, scanID, StageStructure, r.BatchID+1, r.Extraction); err != nil {
				env.logger.Warn("failed to cache batch extraction", "batch_id", r.BatchID, "error", err)
				return
			}
			ledger.MarkCompleted(r.BatchID+1, r.CostUSD)
		},
	})
	if err != nil {
		return nil, err
	}

	result, err := asm.Assemble(ctx, pages)
	if err != nil {
		if ferr := ledger.MarkStageFailed(err); ferr != nil {
			env.logger.Warn("failed to record stage failure", "error", ferr)
		}
		return nil, err
	}

	if err := writeJSON(env.home.MergedDocumentPath(scanID), result.Document); err != nil {
		return nil, err
	}
	report := &ReconciliationReport{
		ScanID:          scanID,
		WindowSize:      window,
		Overlap:         overlap,
		Batches:         result.Batches,
		Reconciliations: result.Reconciliations,
	}
	if err := writeJSON(env.home.ReconciliationReportPath(scanID), report); err != nil {
		return nil, err
	}

	if err := finishLedger(ledger, result.Stats.Failed, map[string]any{
		"provider":      llm.Name(),
		"paragraphs":    result.Document.ParagraphCount,
		"words":         result.Document.WordCount,
		"coverage_gaps": len(result.Document.CoverageGaps),
	}); err != nil {
		return nil, err
	}

	return &RunResult{
		Stage:   StageStructure,
		ScanID:  scanID,
		Skipped: len(batches) - countFalse(cached),
		Stats:   result.Stats,
		CostUSD: result.Stats.TotalCost,
	}, nil
}

// ReconciliationReport is the structure stage's audit artifact: every
// batch outcome and every overlap resolution, for downstream review.
type ReconciliationReport struct {
	ScanID          string                             `json:"scan_id"`
	WindowSize      int                                `json:"window_size"`
	Overlap         int                                `json:"overlap"`
	Batches         []*assembler.BatchResult           `json:"batches"`
	Reconciliations []*assembler.ReconciliationOutcome `json:"reconciliations,omitempty"`
}

// llmExtractor implements assembler.BatchExtractor over a chat client,
// with a disk cache keyed by batch so resumed runs skip paid extractions.
type llmExtractor struct {
	env    *stageEnv
	llm    providers.LLMClient
	scanID string
	cached map[int]bool // ledger item (batchID+1) -> cache hit allowed
}

func (e *llmExtractor) ExtractBatch(ctx context.Context, batch assembler.WorkBatch, pages []assembler.PageRecord) (*assembler.Extraction, float64, error) {
	item := batch.BatchID + 1

	if e.cached[item] {
		var ex assembler.Extraction
		if err := readPageArtifact(e.env.home, e.scanID, StageStructure, item, &ex); err == nil {
			e.env.logger.Debug("batch extraction cache hit", "batch_id", batch.BatchID)
			return &ex, 0, nil
		}
		// Unreadable cache entry falls through to a fresh extraction.
	}

	corrected := make([]*CorrectedPage, 0, len(pages))
	for _, p := range pages {
		corrected = append(corrected, &CorrectedPage{PageNum: p.PageNum, Text: p.Text})
	}

	res, err := e.llm.Chat(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: extractUserPrompt(corrected)},
		},
		ResponseFormat: &providers.ResponseFormat{
			Name:   "batch_extraction",
			Schema: extractionSchema,
		},
		RequestID: fmt.Sprintf("%s-structure-batch-%d", e.scanID, batch.BatchID),
	})
	e.env.recorder.RecordLLMCall(ctx, metrics.RecordOpts{
		ScanID:  e.scanID,
		Stage:   StageStructure,
		ItemKey: metrics.ItemKeyForBatch(batch.BatchID),
	}, res)
	if err != nil {
		return nil, 0, err
	}

	raw := res.ParsedJSON
	if len(raw) == 0 {
		raw, err = providers.ExtractJSON(res.Content)
		if err != nil {
			return nil, res.CostUSD, fmt.Errorf("no JSON in extraction response: %w", err)
		}
	}

	var ex assembler.Extraction
	if err := json.Unmarshal(raw, &ex); err != nil {
		return nil, res.CostUSD, fmt.Errorf("failed to parse extraction: %w", err)
	}
	if len(ex.Paragraphs) == 0 {
		return nil, res.CostUSD, fmt.Errorf("extraction returned no paragraphs")
	}
	return &ex, res.CostUSD, nil
}

// llmArbiter implements assembler.Arbiter over a chat client.
type llmArbiter struct {
	env    *stageEnv
	llm    providers.LLMClient
	scanID string
}

func (a *llmArbiter) Arbitrate(ctx context.Context, text1, text2 string, pages []int) (*assembler.Arbitration, error) {
	res, err := a.llm.Chat(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: arbiterSystemPrompt},
			{Role: "user", Content: arbiterUserPrompt(pages, text1, text2)},
		},
		ResponseFormat: &providers.ResponseFormat{
			Name:   "overlap_arbitration",
			Schema: arbitrationSchema,
		},
		RequestID: fmt.Sprintf("%s-structure-arbitrate-%v", a.scanID, pages),
	})
	a.env.recorder.RecordLLMCall(ctx, metrics.RecordOpts{
		ScanID:  a.scanID,
		Stage:   StageStructure,
		ItemKey: "arbitration",
	}, res)
	if err != nil {
		return nil, err
	}

	raw := res.ParsedJSON
	if len(raw) == 0 {
		raw, err = providers.ExtractJSON(res.Content)
		if err != nil {
			return nil, fmt.Errorf("no JSON in arbitration response: %w", err)
		}
	}

	var arb assembler.Arbitration
	if err := json.Unmarshal(raw, &arb); err != nil {
		return nil, fmt.Errorf("failed to parse arbitration: %w", err)
	}
	return &arb, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func countFalse(m map[int]bool) int {
	n := 0
	for _, v := range m {
		if !v {
			n++
		}
	}
	return n
}
