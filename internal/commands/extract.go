package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newExtractCommand(opts *rootOptions) *cobra.Command {
	var (
		outputDir       string
		concurrent      int
		receiptsPerFile int
	)

	cmd := &cobra.Command{
		Use:   "extract <input-dir>",
		Short: "Extract every receipt in input-dir into review workbooks",
		Long: "Sends each supported file (PDF or image) in input-dir to the vision model,\n" +
			"validates the answers and writes review workbooks into the output directory.\n" +
			"Receipts that fail to extract get a Failed page to fill in by hand.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.open(ctx, cmd.Flag("config").Changed, func(cfg *config.Config) {
				if cmd.Flags().Changed("concurrent") {
					cfg.Extraction.Concurrency = concurrent
				}
				if cmd.Flags().Changed("receipts-per-file") {
					cfg.Workbook.ReceiptsPerFile = receiptsPerFile
				}
			})
			if err != nil {
				return err
			}
			defer s.close()

			svc, err := s.container.ExtractionService(ctx, outputDir)
			if err != nil {
				return err
			}

			summary, runErr := svc.Run(ctx, args[0], outputDir)
			if summary != nil {
				renderSummary(cmd.OutOrStdout(), summary)
			}
			if runErr != nil {
				s.logger.Error("Extraction run failed", zap.Error(runErr))
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "output", "directory for review workbooks, call logs and the run summary")
	cmd.Flags().IntVar(&concurrent, "concurrent", 0, "maximum extraction calls in flight (overrides extraction.concurrency)")
	cmd.Flags().IntVar(&receiptsPerFile, "receipts-per-file", 0, "receipts per review workbook (overrides workbook.receipts_per_file)")
	return cmd
}
