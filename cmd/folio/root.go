package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Resumable batch pipeline for digitizing scanned books",
	Long: `Folio turns scanned book PDFs into a structured, deduplicated document
through a four-stage pipeline: OCR, LLM correction, targeted repair of
suspicious pages, and sliding-window structure detection.

Every stage checkpoints its progress per page, so interrupted runs pick
up where they left off, and completed work is verified against the
artifacts on disk rather than trusted blindly.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newServices wires the full service set for a command. The returned
// cleanup closes the metrics store and must run before exit.
func newServices() (*svcctx.Services, func(), error) {
	logger := newLogger()

	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare home directory: %w", err)
	}

	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	cm.WatchConfig()

	registry, err := providers.BuildRegistry(cm.Get().ToProviderRegistryConfig(), logger)
	if err != nil {
		return nil, nil, err
	}

	// Metrics are best-effort: a broken store degrades to no recording.
	var store *metrics.Store
	store, err = metrics.Open(h.MetricsDBPath())
	if err != nil {
		logger.Warn("metrics store unavailable", "error", err)
		store = nil
	}

	svcs := &svcctx.Services{
		ConfigManager: cm,
		Registry:      registry,
		Logger:        logger,
		Home:          h,
		Metrics:       store,
		Recorder:      metrics.NewRecorder(store, logger),
	}
	cleanup := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close metrics store", "error", err)
			}
		}
	}
	return svcs, cleanup, nil
}
