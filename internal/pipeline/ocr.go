package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
)

// OCRStage extracts raw text from the scan's page images.
type OCRStage struct{}

// NewOCRStage creates the ocr stage.
func NewOCRStage() *OCRStage { return &OCRStage{} }

func (s *OCRStage) Name() string           { return StageOCR }
func (s *OCRStage) Dependencies() []string { return nil }
func (s *OCRStage) Description() string {
	return "Extract raw text from page images via the OCR provider"
}

func (s *OCRStage) Run(ctx context.Context, scanID string, opts Options) (*RunResult, error) {
	env, err := envFrom(ctx, StageOCR)
	if err != nil {
		return nil, err
	}

	manifest, startPage, endPage, err := loadRange(env, scanID, opts)
	if err != nil {
		return nil, err
	}

	ocr, err := env.registry.GetOCR(opts.OCRProvider)
	if err != nil {
		return nil, err
	}

	ledger, err := env.openLedger(scanID, StageOCR, opts)
	if err != nil {
		return nil, err
	}

	remaining := ledger.RemainingPages(manifest.PageCount, opts.Resume,
		startPage, endPage, ValidateOCRPage(env.home, scanID))

	rangeSize := endPage - startPage + 1
	env.logger.Info("stage starting",
		"scan_id", scanID,
		"provider", ocr.Name(),
		"pages", rangeSize,
		"remaining", len(remaining))

	if len(remaining) == 0 {
		if err := finishLedger(ledger, 0, map[string]any{"provider": ocr.Name()}); err != nil {
			return nil, err
		}
		return &RunResult{Stage: StageOCR, ScanID: scanID, Skipped: rangeSize}, nil
	}

	pool := dispatch.New(dispatch.Config{
		MaxWorkers: opts.Workers,
		Limiter:    providers.NewRateLimiter(ocr.CallsPerMinute()),
		Logger:     env.logger,
	})

	type pageDone struct {
		pageNum int
		cost    float64
	}

	_, stats := dispatch.Process(ctx, pool, remaining,
		func(ctx context.Context, pageNum int) (pageDone, error) {
			image, err := os.ReadFile(env.home.SourceImagePath(scanID, pageNum))
			if err != nil {
				return pageDone{}, fmt.Errorf("page %d: %w", pageNum, err)
			}

			res, err := ocr.ProcessImage(ctx, image, pageNum)
			env.recorder.RecordOCRCall(ctx, metrics.RecordOpts{
				ScanID:  scanID,
				Stage:   StageOCR,
				ItemKey: metrics.ItemKeyForPage(pageNum),
			}, ocr.Name(), res)
			if err != nil {
				return pageDone{}, fmt.Errorf("page %d: %w", pageNum, err)
			}
			if strings.TrimSpace(res.Text) == "" {
				return pageDone{}, fmt.Errorf("page %d: empty OCR output", pageNum)
			}

			artifact := OCRPage{
				PageNum:    pageNum,
				Text:       res.Text,
				Confidence: res.Confidence,
				Provider:   ocr.Name(),
				CostUSD:    res.CostUSD,
				CreatedAt:  time.Now().UTC(),
			}
			if err := writePageArtifact(env.home, scanID, StageOCR, pageNum, artifact); err != nil {
				return pageDone{}, err
			}
			return pageDone{pageNum: pageNum, cost: res.CostUSD}, nil
		},
		dispatch.Callbacks[pageDone]{
			OnResult: func(d pageDone) { ledger.MarkCompleted(d.pageNum, d.cost) },
			OnProgress: func(done, total int) {
				env.logger.Info("ocr progress", "done", done, "total", total)
			},
			ProgressInterval: 25,
			Cost:             func(d pageDone) float64 { return d.cost },
		},
	)

	if err := finishLedger(ledger, stats.Failed, map[string]any{"provider": ocr.Name()}); err != nil {
		return nil, err
	}

	return &RunResult{
		Stage:   StageOCR,
		ScanID:  scanID,
		Skipped: rangeSize - len(remaining),
		Stats:   stats,
		CostUSD: stats.TotalCost,
	}, nil
}
