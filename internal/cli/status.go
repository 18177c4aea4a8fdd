package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harlanreed/phasetracker/internal/cli/format"
	"github.com/harlanreed/phasetracker/pkg/scorecard"
)

func newStatusCommand() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a run's scorecard: completed stages, next pending, per-stage attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if runID == "" {
				return fmt.Errorf("--run-id is required")
			}

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer a.Close(ctx)

			summary, err := scorecard.Build(ctx, a.store, runID)
			if err != nil {
				return err
			}

			if flags.jsonOutput {
				return format.JSON(cmd.OutOrStdout(), summary)
			}

			fmt.Fprint(cmd.OutOrStdout(), format.Scorecard(summary, format.IsTTY()))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (required)")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}
