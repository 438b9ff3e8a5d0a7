package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/svcctx"
)

var (
	processStage     string
	processOnly      bool
	processResume    bool
	processWorkers   int
	processStartPage int
	processEndPage   int
	processWindow    int
	processOverlap   int
	processLLM       string
	processOCR       string
)

var processCmd = &cobra.Command{
	Use:   "process <scan-id>",
	Short: "Run the digitization pipeline on an ingested scan",
	Long: `Process runs pipeline stages against a scan. By default the target stage
and everything it depends on run in dependency order; stages whose pages
are already complete on disk are skipped when --resume is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scanID := args[0]

		svcs, cleanup, err := newServices()
		if err != nil {
			return err
		}
		defer cleanup()
		ctx := svcctx.WithServices(cmd.Context(), svcs)

		opts := resolveOptions(svcs)

		registry := pipeline.DefaultRegistry()
		stages, err := registry.UpTo(processStage)
		if err != nil {
			return err
		}
		if processOnly {
			s, ok := registry.Get(processStage)
			if !ok {
				return fmt.Errorf("unknown stage %q", processStage)
			}
			stages = []pipeline.Stage{s}
		}

		var results []*pipeline.RunResult
		for _, stage := range stages {
			svcs.Logger.Info("running stage", "stage", stage.Name(), "scan_id", scanID)
			res, err := stage.Run(ctx, scanID, opts)
			if err != nil {
				return fmt.Errorf("stage %s: %w", stage.Name(), err)
			}
			results = append(results, res)
			if res.Stats.Failed > 0 {
				_ = printOut(results)
				return fmt.Errorf("stage %s: %d items failed; re-run with --resume to retry them",
					stage.Name(), res.Stats.Failed)
			}
		}
		return printOut(results)
	},
}

// resolveOptions layers command-line flags over config defaults.
func resolveOptions(svcs *svcctx.Services) pipeline.Options {
	cfg := svcs.ConfigManager.Get()

	opts := pipeline.Options{
		Resume:       processResume,
		Workers:      cfg.Defaults.MaxWorkers,
		StartPage:    processStartPage,
		EndPage:      processEndPage,
		WindowSize:   cfg.Defaults.WindowSize,
		Overlap:      cfg.Defaults.Overlap,
		LLMProvider:  cfg.Defaults.LLMProvider,
		OCRProvider:  cfg.Defaults.OCRProvider,
		PersistEvery: cfg.Checkpoint.PersistEvery,
		CostFlushUSD: cfg.Checkpoint.CostFlushUSD,
	}
	if processWorkers > 0 {
		opts.Workers = processWorkers
	}
	if processWindow > 0 {
		opts.WindowSize = processWindow
	}
	if processOverlap >= 0 {
		opts.Overlap = processOverlap
	}
	if processLLM != "" {
		opts.LLMProvider = processLLM
	}
	if processOCR != "" {
		opts.OCRProvider = processOCR
	}
	return opts
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline stages in run order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ordered, err := pipeline.DefaultRegistry().GetOrdered()
		if err != nil {
			return err
		}
		type stageInfo struct {
			Name         string   `json:"name" yaml:"name"`
			Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
			Description  string   `json:"description" yaml:"description"`
		}
		infos := make([]stageInfo, 0, len(ordered))
		for _, s := range ordered {
			infos = append(infos, stageInfo{
				Name:         s.Name(),
				Dependencies: s.Dependencies(),
				Description:  s.Description(),
			})
		}
		return printOut(infos)
	},
}

func init() {
	processCmd.Flags().StringVar(&processStage, "stage", pipeline.StageStructure, "target stage (its dependencies run first)")
	processCmd.Flags().BoolVar(&processOnly, "only", false, "run just the target stage, skipping its dependencies")
	processCmd.Flags().BoolVar(&processResume, "resume", false, "resume from the last checkpoint, verifying artifacts on disk")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "max concurrent workers (default: from config)")
	processCmd.Flags().IntVar(&processStartPage, "start-page", 0, "first page to process (default: 1)")
	processCmd.Flags().IntVar(&processEndPage, "end-page", 0, "last page to process (default: last page of scan)")
	processCmd.Flags().IntVar(&processWindow, "window", 0, "structure stage pages per batch (default: from config)")
	processCmd.Flags().IntVar(&processOverlap, "overlap", -1, "structure stage pages shared between batches (default: from config)")
	processCmd.Flags().StringVar(&processLLM, "llm", "", "LLM provider name (default: from config)")
	processCmd.Flags().StringVar(&processOCR, "ocr", "", "OCR provider name (default: from config)")
}
