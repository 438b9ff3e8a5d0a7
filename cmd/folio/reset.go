package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/checkpoint"
	"github.com/jackzampolin/folio/internal/pipeline"
)

var (
	resetStage   string
	resetConfirm bool
)

var resetCmd = &cobra.Command{
	Use:   "reset <scan-id>",
	Short: "Clear a stage's checkpoint so the next run starts over",
	Long: `Reset clears the checkpoint ledger for one stage of a scan. Output
artifacts on disk are left in place; a subsequent run without --resume
rewrites them, and a run with --resume re-adopts any that still validate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scanID := args[0]

		if _, ok := pipeline.DefaultRegistry().Get(resetStage); !ok {
			return fmt.Errorf("unknown stage %q", resetStage)
		}
		if !resetConfirm {
			return fmt.Errorf("refusing to reset %s/%s without --yes", scanID, resetStage)
		}

		svcs, cleanup, err := newServices()
		if err != nil {
			return err
		}
		defer cleanup()

		ledger := checkpoint.LoadOrCreate(checkpoint.LedgerConfig{
			ScanID: scanID,
			Stage:  resetStage,
			Path:   svcs.Home.CheckpointPath(scanID, resetStage),
			Logger: svcs.Logger,
		})
		if err := ledger.Reset(); err != nil {
			return err
		}
		fmt.Printf("reset checkpoint for %s/%s\n", scanID, resetStage)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetStage, "stage", "", "stage to reset (required)")
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "confirm the reset")
	_ = resetCmd.MarkFlagRequired("stage")
}
