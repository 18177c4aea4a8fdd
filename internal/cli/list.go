package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harlanreed/phasetracker/internal/cli/format"
	"github.com/harlanreed/phasetracker/pkg/store"
)

func newListCommand() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer a.Close(ctx)

			runs, err := a.store.ListRuns(ctx, store.RunFilter{Status: store.RunStatus(status), Limit: limit})
			if err != nil {
				return err
			}

			if flags.jsonOutput {
				return format.JSON(cmd.OutOrStdout(), runs)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			fmt.Fprintf(out, "%-24s %-10s %-14s %-10s %s\n", "RUN ID", "STATUS", "TARGET", "INDUSTRY", "COUNTRY")
			for _, r := range runs {
				fmt.Fprintf(out, "%-24s %-10s %-14s %-10s %s\n", r.ID, r.Status, r.TargetStage, r.Industry, r.Country)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by run status (pending, running, completed, failed, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs to return (0 = no limit)")

	return cmd
}
