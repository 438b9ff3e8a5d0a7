package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/checkpoint"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/pipeline"
)

// scanStatus is the status command's output document.
type scanStatus struct {
	Manifest *ingest.Manifest            `json:"manifest" yaml:"manifest"`
	Stages   map[string]checkpoint.State `json:"stages" yaml:"stages"`
	Metrics  *metrics.ScanSummary        `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status [scan-id]",
	Short: "Show scan progress, per-stage checkpoints, and spend",
	Long: `Status reports a scan's pipeline progress. With no argument it lists all
ingested scans. With a scan ID it shows the manifest, each stage's
checkpoint state, and the recorded provider spend.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, cleanup, err := newServices()
		if err != nil {
			return err
		}
		defer cleanup()

		if len(args) == 0 {
			scans, err := svcs.Home.ListScans()
			if err != nil {
				return err
			}
			return printOut(map[string][]string{"scans": scans})
		}

		scanID := args[0]
		manifest, err := ingest.ReadManifest(svcs.Home, scanID)
		if err != nil {
			return err
		}

		out := &scanStatus{
			Manifest: manifest,
			Stages:   make(map[string]checkpoint.State),
		}
		for _, stage := range []string{
			pipeline.StageOCR, pipeline.StageCorrect, pipeline.StageFix, pipeline.StageStructure,
		} {
			path := svcs.Home.CheckpointPath(scanID, stage)
			if _, err := os.Stat(path); err != nil {
				continue // stage never started
			}
			ledger := checkpoint.LoadOrCreate(checkpoint.LedgerConfig{
				ScanID: scanID,
				Stage:  stage,
				Path:   path,
				Logger: svcs.Logger,
			})
			out.Stages[stage] = ledger.Status()
		}

		if svcs.Metrics != nil {
			summary, err := svcs.Metrics.SummarizeScan(cmd.Context(), scanID)
			if err != nil {
				svcs.Logger.Warn("failed to summarize metrics", "error", err)
			} else {
				out.Metrics = summary
			}
		}

		return printOut(out)
	},
}
