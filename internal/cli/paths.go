package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harlanreed/phasetracker/internal/cli/format"
	"github.com/harlanreed/phasetracker/internal/jq"
	"github.com/harlanreed/phasetracker/pkg/store"
)

func newPathsCommand() *cobra.Command {
	var runID, stageFilter, query string

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "List a run's recorded artifact paths, optionally reshaped with --query",
		Long: `Lists every artifact recorded for a run (optionally scoped to one
stage), each with its on-disk path, size, and content type. --query
runs a jq expression over the result set before printing it.`,
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

			artifacts, err := a.store.ListRunArtifacts(ctx, runID)
			if err != nil {
				return err
			}

			if stageFilter != "" {
				filtered := make([]*store.Artifact, 0, len(artifacts))
				for _, art := range artifacts {
					if art.Stage == stageFilter {
						filtered = append(filtered, art)
					}
				}
				artifacts = filtered
			}

			var data any = artifacts
			if query != "" {
				data, err = reshape(ctx, artifacts, query)
				if err != nil {
					return fmt.Errorf("query: %w", err)
				}
			}

			if flags.jsonOutput || query != "" {
				return format.JSON(cmd.OutOrStdout(), data)
			}

			out := cmd.OutOrStdout()
			for _, art := range artifacts {
				fmt.Fprintf(out, "%-10s attempt-%-3d %-20s %8d  %-28s %s\n", art.Stage, art.Attempt, art.Filename, art.SizeBytes, art.ContentType, art.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (required)")
	cmd.Flags().StringVar(&stageFilter, "stage", "", "restrict to one stage")
	cmd.Flags().StringVar(&query, "query", "", "jq expression to reshape the artifact list")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}

// reshape round-trips artifacts through JSON so the jq executor sees
// plain maps/slices rather than struct values.
func reshape(ctx context.Context, artifacts []*store.Artifact, query string) (any, error) {
	raw, err := json.Marshal(artifacts)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	executor := jq.NewExecutor(0, 0)
	return executor.Execute(ctx, query, generic)
}
