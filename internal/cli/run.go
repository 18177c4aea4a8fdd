package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harlanreed/phasetracker/internal/cli/format"
	"github.com/harlanreed/phasetracker/pkg/runner"
	"github.com/harlanreed/phasetracker/pkg/store"
)

func newRunCommand() *cobra.Command {
	var req runner.RunRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a run from its last completed stage through --through",
		Long: `Creates a new run, or resumes an existing one by --run-id, and
executes stages in order through --through. Exits non-zero and prints
the failing stage on the first stage failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			defer a.Close(ctx)

			req.StrictTemplate = req.StrictTemplate || a.cfg.StrictTemplate

			result, runErr := a.runner.Run(ctx, req)
			if result == nil {
				return runErr
			}

			if flags.jsonOutput {
				if err := format.JSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printRunResult(cmd, result)
			}

			if runErr != nil {
				return runErr
			}
			// Run doesn't re-raise a stage failure as an error — it's a
			// recorded outcome, not an exception — so the exit code is
			// derived from the result here instead.
			if result.Status == store.RunFailed {
				return fmt.Errorf("stage %s failed: %s", result.FailedStage, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run identifier (required)")
	cmd.Flags().StringVar(&req.Through, "through", "", "stage id to run through, inclusive (required)")
	cmd.Flags().StringVar(&req.Country, "country", "", "country code for a new run")
	cmd.Flags().StringVar(&req.Industry, "industry", "", "industry code for a new run")
	cmd.Flags().StringVar(&req.ClientContext, "client-context", "", "free-form client context passed to handlers")
	cmd.Flags().BoolVar(&req.StrictTemplate, "strict-template", false, "fail the run on any template gate violation")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("through")

	return cmd
}

func printRunResult(cmd *cobra.Command, result *runner.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %s\n", result.RunID, result.Status)
	if len(result.StagesExecuted) > 0 {
		fmt.Fprintf(out, "stages executed: %v\n", result.StagesExecuted)
	}
	if result.FailedStage != "" {
		fmt.Fprintf(out, "failed at stage %s: %s\n", result.FailedStage, result.Error)
	}
}
