package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackzampolin/folio/internal/dispatch"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
)

// CorrectStage runs each OCR page through an LLM cleanup pass.
type CorrectStage struct{}

// NewCorrectStage creates the correct stage.
func NewCorrectStage() *CorrectStage { return &CorrectStage{} }

func (s *CorrectStage) Name() string           { return StageCorrect }
func (s *CorrectStage) Dependencies() []string { return []string{StageOCR} }
func (s *CorrectStage) Description() string {
	return "Correct OCR errors page by page with an LLM"
}

func (s *CorrectStage) Run(ctx context.Context, scanID string, opts Options) (*RunResult, error) {
	return runPageLLMStage(ctx, scanID, opts, pageLLMStage{
		stage: StageCorrect,
		plan: func(env *stageEnv, scanID string, pageNum int) (*pagePlan, error) {
			ocrPage, err := ReadOCRPage(env.home, scanID, pageNum)
			if err != nil {
				return nil, err
			}
			return &pagePlan{request: &providers.ChatRequest{
				Messages: []providers.Message{
					{Role: "system", Content: correctSystemPrompt},
					{Role: "user", Content: correctUserPrompt(pageNum, ocrPage.Text)},
				},
				ResponseFormat: &providers.ResponseFormat{
					Name:   "corrected_page",
					Schema: correctedPageSchema,
				},
				RequestID: fmt.Sprintf("%s-correct-%04d", scanID, pageNum),
			}}, nil
		},
	})
}

// pagePlan is one page's work order: either a chat request (optionally
// annotated with the suspicions that triggered it), or a ready artifact
// for pages the stage passes through untouched.
type pagePlan struct {
	request     *providers.ChatRequest
	suspicions  []string
	passthrough *CorrectedPage
}

// pageLLMStage parameterizes the shared per-page LLM driver used by the
// correct and fix stages.
type pageLLMStage struct {
	stage string
	plan  func(env *stageEnv, scanID string, pageNum int) (*pagePlan, error)
}

func runPageLLMStage(ctx context.Context, scanID string, opts Options, def pageLLMStage) (*RunResult, error) {
	env, err := envFrom(ctx, def.stage)
	if err != nil {
		return nil, err
	}

	manifest, startPage, endPage, err := loadRange(env, scanID, opts)
	if err != nil {
		return nil, err
	}

	llm, err := env.registry.GetLLM(opts.LLMProvider)
	if err != nil {
		return nil, err
	}

	ledger, err := env.openLedger(scanID, def.stage, opts)
	if err != nil {
		return nil, err
	}

	remaining := ledger.RemainingPages(manifest.PageCount, opts.Resume,
		startPage, endPage, ValidateCorrectedPage(env.home, scanID, def.stage))

	rangeSize := endPage - startPage + 1
	env.logger.Info("stage starting",
		"scan_id", scanID,
		"provider", llm.Name(),
		"pages", rangeSize,
		"remaining", len(remaining))

	if len(remaining) == 0 {
		if err := finishLedger(ledger, 0, map[string]any{"provider": llm.Name()}); err != nil {
			return nil, err
		}
		return &RunResult{Stage: def.stage, ScanID: scanID, Skipped: rangeSize}, nil
	}

	pool := dispatch.New(dispatch.Config{
		MaxWorkers: opts.Workers,
		Limiter:    providers.NewRateLimiter(llm.CallsPerMinute()),
		Logger:     env.logger,
	})

	type pageDone struct {
		pageNum int
		cost    float64
	}

	_, stats := dispatch.Process(ctx, pool, remaining,
		func(ctx context.Context, pageNum int) (pageDone, error) {
			plan, err := def.plan(env, scanID, pageNum)
			if err != nil {
				return pageDone{}, fmt.Errorf("page %d: %w", pageNum, err)
			}

			if plan.passthrough != nil {
				if err := writePageArtifact(env.home, scanID, def.stage, pageNum, plan.passthrough); err != nil {
					return pageDone{}, err
				}
				return pageDone{pageNum: pageNum}, nil
			}

			res, err := llm.Chat(ctx, plan.request)
			env.recorder.RecordLLMCall(ctx, metrics.RecordOpts{
				ScanID:  scanID,
				Stage:   def.stage,
				ItemKey: metrics.ItemKeyForPage(pageNum),
			}, res)
			if err != nil {
				return pageDone{}, fmt.Errorf("page %d: %w", pageNum, err)
			}

			payload, err := parseCorrectedPayload(res)
			if err != nil {
				return pageDone{}, fmt.Errorf("page %d: %w", pageNum, err)
			}

			artifact := CorrectedPage{
				PageNum:    pageNum,
				Text:       payload.CorrectedText,
				Provider:   res.Provider,
				Model:      res.ModelUsed,
				CostUSD:    res.CostUSD,
				Suspicions: plan.suspicions,
				Fixed:      def.stage == StageFix,
				CreatedAt:  time.Now().UTC(),
			}
			if err := writePageArtifact(env.home, scanID, def.stage, pageNum, artifact); err != nil {
				return pageDone{}, err
			}
			return pageDone{pageNum: pageNum, cost: res.CostUSD}, nil
		},
		dispatch.Callbacks[pageDone]{
			OnResult: func(d pageDone) { ledger.MarkCompleted(d.pageNum, d.cost) },
			OnProgress: func(done, total int) {
				env.logger.Info("stage progress", "done", done, "total", total)
			},
			ProgressInterval: 25,
			Cost:             func(d pageDone) float64 { return d.cost },
		},
	)

	if err := finishLedger(ledger, stats.Failed, map[string]any{"provider": llm.Name()}); err != nil {
		return nil, err
	}

	return &RunResult{
		Stage:   def.stage,
		ScanID:  scanID,
		Skipped: rangeSize - len(remaining),
		Stats:   stats,
		CostUSD: stats.TotalCost,
	}, nil
}

// parseCorrectedPayload extracts the corrected text from a chat result.
func parseCorrectedPayload(res *providers.ChatResult) (*correctedPayload, error) {
	raw := res.ParsedJSON
	if len(raw) == 0 {
		extracted, err := providers.ExtractJSON(res.Content)
		if err != nil {
			return nil, fmt.Errorf("no JSON in response: %w", err)
		}
		raw = extracted
	}

	var payload correctedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse corrected page: %w", err)
	}
	if strings.TrimSpace(payload.CorrectedText) == "" {
		return nil, fmt.Errorf("empty corrected text")
	}
	return &payload, nil
}
