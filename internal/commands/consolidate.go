package commands

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/workbook"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newConsolidateCommand(opts *rootOptions) *cobra.Command {
	var (
		outputDir string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "consolidate <artifact|dir>...",
		Short: "Consolidate reviewed workbooks into one accounting import file",
		Long: "Reads reviewed workbooks in the order given, keeps the deductible line items\n" +
			"and writes the import file plus a folder of renamed source documents.\n" +
			"A directory argument expands to the workbooks directly inside it.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifacts, err := expandArtifacts(args)
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = filepath.Dir(artifacts[0])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.open(ctx, cmd.Flag("config").Changed, func(cfg *config.Config) {
				if format != "" {
					cfg.Export.Format = format
				}
			})
			if err != nil {
				return err
			}
			defer s.close()

			svc, err := s.container.ConsolidationService(artifacts)
			if err != nil {
				return err
			}

			summary, runErr := svc.Run(ctx, artifacts, outputDir)
			if summary != nil {
				renderSummary(cmd.OutOrStdout(), summary)
			}
			if runErr != nil {
				s.logger.Error("Consolidation run failed", zap.Error(runErr))
			}
			return runErr
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: directory of the first workbook)")
	cmd.Flags().StringVar(&format, "format", "", "export format, xlsx or csv (overrides export.format)")
	return cmd
}

// expandArtifacts keeps file arguments in order and replaces each directory
// with its review workbooks sorted by name
func expandArtifacts(args []string) ([]string, error) {
	var artifacts []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", arg, err)
		}
		if !info.IsDir() {
			artifacts = append(artifacts, arg)
			continue
		}

		matches, err := filepath.Glob(filepath.Join(arg, "*.xlsx"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		found := 0
		for _, m := range matches {
			// Skip spreadsheet lock files and earlier exports
			if strings.HasPrefix(filepath.Base(m), "~$") || !isReviewWorkbook(m) {
				continue
			}
			artifacts = append(artifacts, m)
			found++
		}
		if found == 0 {
			return nil, fmt.Errorf("no review workbooks in %s", arg)
		}
	}
	return artifacts, nil
}

// isReviewWorkbook reports whether the file has at least one record sheet
func isReviewWorkbook(path string) bool {
	names, err := workbook.SheetNames(path)
	if err != nil {
		return false
	}
	for _, name := range names {
		if workbook.IsRecordSheet(name) {
			return true
		}
	}
	return false
}
