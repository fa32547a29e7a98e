package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunsCommand(opts *rootOptions) *cobra.Command {
	var (
		stage string
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent run summaries from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx, cmd.Flag("config").Changed)
			if err != nil {
				return err
			}
			defer s.close()

			runs := s.container.Runs()
			if runs == nil {
				return fmt.Errorf("database is disabled (database.path is empty)")
			}

			out := cmd.OutOrStdout()
			if runID != "" {
				summary, err := runs.GetByID(ctx, runID)
				if err != nil {
					return err
				}
				renderSummary(out, summary)
				return nil
			}

			summaries, err := runs.ListRecent(ctx, stage, limit)
			if err != nil {
				return err
			}
			renderRunList(out, summaries)
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "only show runs of this stage (extraction or consolidation)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	cmd.Flags().StringVar(&runID, "id", "", "show the full summary of one run")
	return cmd
}
