package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackzampolin/folio/internal/dispatch"
)

// BatchExtractor turns one batch's pages into structured content. The
// returned cost is attributed to the batch for checkpoint accounting.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batch WorkBatch, pages []PageRecord) (*Extraction, float64, error)
}

// Config configures an Assembler.
type Config struct {
	// WindowSize is the number of pages per batch.
	WindowSize int
	// Overlap is the number of pages shared between adjacent batches.
	Overlap int

	// Pool dispatches batch extractions concurrently.
	Pool *dispatch.Pool

	Extractor BatchExtractor

	// Arbiter, when set, adjudicates overlap disagreements. Optional.
	Arbiter Arbiter

	Logger *slog.Logger

	// OnBatchDone fires as each batch extraction completes, before
	// reconciliation. Used to persist batch progress incrementally.
	OnBatchDone func(*BatchResult)
}

// Result is the full outcome of one assembly run.
type Result struct {
	Document        *MergedDocument          `json:"document"`
	Batches         []*BatchResult           `json:"batches"`
	Reconciliations []*ReconciliationOutcome `json:"reconciliations,omitempty"`
	Stats           dispatch.Stats           `json:"stats"`
}

// Assembler runs the three-phase assembly: parallel batch extraction,
// sequential overlap reconciliation, then the deduplicating merge.
type Assembler struct {
	windowSize  int
	overlap     int
	pool        *dispatch.Pool
	extractor   BatchExtractor
	arbiter     Arbiter
	logger      *slog.Logger
	onBatchDone func(*BatchResult)
}

// New creates an Assembler.
func New(cfg Config) (*Assembler, error) {
	if cfg.WindowSize < 1 {
		return nil, fmt.Errorf("window size must be >= 1, got %d", cfg.WindowSize)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.WindowSize {
		return nil, fmt.Errorf("overlap must be in [0, window), got overlap=%d window=%d",
			cfg.Overlap, cfg.WindowSize)
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Pool == nil {
		cfg.Pool = dispatch.New(dispatch.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assembler{
		windowSize:  cfg.WindowSize,
		overlap:     cfg.Overlap,
		pool:        cfg.Pool,
		extractor:   cfg.Extractor,
		arbiter:     cfg.Arbiter,
		logger:      cfg.Logger,
		onBatchDone: cfg.OnBatchDone,
	}, nil
}

// Assemble processes the given pages. Pages must be sorted by page number
// and contiguous; the batch plan is derived from the first and last page.
func (a *Assembler) Assemble(ctx context.Context, pages []PageRecord) (*Result, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to assemble")
	}

	startPage := pages[0].PageNum
	endPage := pages[len(pages)-1].PageNum
	if endPage-startPage+1 != len(pages) {
		return nil, fmt.Errorf("pages must be contiguous: got %d pages spanning [%d,%d]",
			len(pages), startPage, endPage)
	}

	byPage := make(map[int]PageRecord, len(pages))
	for _, p := range pages {
		byPage[p.PageNum] = p
	}

	batches, err := PlanBatches(startPage, endPage, a.windowSize, a.overlap)
	if err != nil {
		return nil, err
	}

	a.logger.Info("assembly planned",
		"pages", len(pages),
		"batches", len(batches),
		"window", a.windowSize,
		"overlap", a.overlap)

	// Phase 1: parallel extraction. No ordering dependency between batches.
	extracted, stats := dispatch.Process(ctx, a.pool, batches,
		func(ctx context.Context, batch WorkBatch) (*BatchResult, error) {
			batchPages := make([]PageRecord, 0, batch.PageCount())
			for _, num := range batch.Pages() {
				batchPages = append(batchPages, byPage[num])
			}

			ex, cost, err := a.extractor.ExtractBatch(ctx, batch, batchPages)
			if err != nil {
				return nil, fmt.Errorf("batch %d [%d-%d]: %w",
					batch.BatchID, batch.StartPage, batch.EndPage, err)
			}
			if len(ex.ScanPages) == 0 {
				ex.ScanPages = batch.Pages()
			}
			return &BatchResult{
				BatchID:    batch.BatchID,
				Batch:      batch,
				Status:     BatchSuccess,
				Extraction: ex,
				CostUSD:    cost,
			}, nil
		},
		dispatch.Callbacks[*BatchResult]{
			OnResult: func(r *BatchResult) {
				if a.onBatchDone != nil {
					a.onBatchDone(r)
				}
			},
			Cost: func(r *BatchResult) float64 { return r.CostUSD },
		},
	)

	// Rebuild the full batch list in order, inserting failure records for
	// batches the dispatcher excluded.
	byID := make(map[int]*BatchResult, len(extracted))
	for _, r := range extracted {
		byID[r.BatchID] = r
	}
	results := make([]*BatchResult, 0, len(batches))
	for _, batch := range batches {
		if r, ok := byID[batch.BatchID]; ok {
			results = append(results, r)
			continue
		}
		a.logger.Warn("batch excluded from assembly",
			"batch_id", batch.BatchID,
			"start_page", batch.StartPage,
			"end_page", batch.EndPage)
		results = append(results, &BatchResult{
			BatchID: batch.BatchID,
			Batch:   batch,
			Status:  BatchFailed,
			Error:   "batch extraction failed",
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].BatchID < results[j].BatchID })

	// Phase 2: sequential reconciliation over adjacent pairs. Runs only
	// after extraction fully drains, since each pair needs both neighbors.
	var reconciliations []*ReconciliationOutcome
	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		if prev.Status != BatchSuccess || cur.Status != BatchSuccess {
			continue
		}
		if len(cur.Batch.OverlapWithPrev) == 0 {
			continue
		}
		outcome := reconcilePair(ctx, prev, cur, a.arbiter)
		cur.Reconciliation = outcome
		reconciliations = append(reconciliations, outcome)

		if outcome.NeedsReview {
			a.logger.Warn("overlap needs review",
				"batch_id", cur.BatchID,
				"pages", outcome.OverlapPages,
				"similarity", outcome.Similarity,
				"method", outcome.ResolutionMethod)
		}
	}

	// Phase 3: merge.
	doc := mergeBatches(results, startPage, endPage)

	a.logger.Info("assembly complete",
		"paragraphs", doc.ParagraphCount,
		"words", doc.WordCount,
		"coverage", len(doc.PageCoverage),
		"gaps", len(doc.CoverageGaps),
		"cost_usd", stats.TotalCost)

	return &Result{
		Document:        doc,
		Batches:         results,
		Reconciliations: reconciliations,
		Stats:           stats,
	}, nil
}
