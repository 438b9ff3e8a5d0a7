package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/svcctx"
)

var (
	ingestTitle  string
	ingestAuthor string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf> [pdf...]",
	Short: "Render PDF pages to images and register the scan",
	Long: `Ingest renders every page of the given PDFs to numbered PNG images and
writes the scan manifest. Multi-part PDFs are ordered by the numeric
suffix in their filenames, so "book_1.pdf book_10.pdf book_2.pdf" sorts
as parts 1, 2, 10.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, cleanup, err := newServices()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := svcctx.WithServices(cmd.Context(), svcs)
		manifest, err := ingest.Ingest(ctx, svcs.Home, ingest.Request{
			PDFPaths: args,
			Title:    ingestTitle,
			Author:   ingestAuthor,
			Logger:   svcs.Logger,
		})
		if err != nil {
			return err
		}
		return printOut(manifest)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "book title (default: derived from filename)")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "book author")
}
