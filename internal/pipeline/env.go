package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackzampolin/folio/internal/checkpoint"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// stageEnv holds the services a stage run extracts from context.
type stageEnv struct {
	home     *home.Dir
	registry *providers.Registry
	logger   *slog.Logger
	recorder *metrics.Recorder
}

func envFrom(ctx context.Context, stage string) (*stageEnv, error) {
	env := &stageEnv{
		home:     svcctx.HomeFrom(ctx),
		registry: svcctx.RegistryFrom(ctx),
		logger:   svcctx.LoggerFrom(ctx),
		recorder: svcctx.RecorderFrom(ctx),
	}
	if env.home == nil {
		return nil, fmt.Errorf("home directory not in context")
	}
	if env.registry == nil {
		return nil, fmt.Errorf("provider registry not in context")
	}
	if env.logger == nil {
		env.logger = slog.Default()
	}
	env.logger = env.logger.With("stage", stage)
	return env, nil
}

// pageRange resolves the run's page bounds from the scan manifest and the
// options' optional sub-range.
func pageRange(manifest *ingest.Manifest, opts Options) (start, end int, err error) {
	start, end = 1, manifest.PageCount
	if opts.StartPage > 0 {
		start = opts.StartPage
	}
	if opts.EndPage > 0 {
		end = opts.EndPage
	}
	if start < 1 || end > manifest.PageCount || start > end {
		return 0, 0, fmt.Errorf("page range [%d,%d] invalid for scan of %d pages",
			start, end, manifest.PageCount)
	}
	return start, end, nil
}

// loadRange reads the scan manifest and resolves the run's page bounds.
func loadRange(env *stageEnv, scanID string, opts Options) (*ingest.Manifest, int, int, error) {
	manifest, err := ingest.ReadManifest(env.home, scanID)
	if err != nil {
		return nil, 0, 0, err
	}
	start, end, err := pageRange(manifest, opts)
	if err != nil {
		return nil, 0, 0, err
	}
	return manifest, start, end, nil
}

// openLedger creates the stage's checkpoint ledger, ensuring the
// checkpoint and output directories exist first.
func (e *stageEnv) openLedger(scanID, stage string, opts Options) (*checkpoint.Ledger, error) {
	if err := os.MkdirAll(e.home.CheckpointsDir(scanID), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if err := e.home.EnsureStageOutputDir(scanID, stage); err != nil {
		return nil, fmt.Errorf("failed to create stage output directory: %w", err)
	}

	return checkpoint.LoadOrCreate(checkpoint.LedgerConfig{
		ScanID: scanID,
		Stage:  stage,
		Path:   e.home.CheckpointPath(scanID, stage),
		Logger: e.logger,
		Validation: checkpoint.Validation{
			OutputDir:   e.home.StageOutputDir(scanID, stage),
			FilePattern: e.home.PageOutputPattern(scanID, stage),
		},
		PersistEvery: opts.PersistEvery,
		CostFlushUSD: opts.CostFlushUSD,
	}), nil
}

// finishLedger records the terminal stage status from the dispatch outcome.
func finishLedger(ledger *checkpoint.Ledger, failed int, metadata map[string]any) error {
	if err := ledger.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return ledger.MarkStageFailed(fmt.Errorf("%d pages failed", failed))
	}
	return ledger.MarkStageComplete(metadata)
}
