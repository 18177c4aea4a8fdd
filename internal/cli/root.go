// Package cli wires phase-tracker's cobra commands to the runner,
// store, and scorecard packages.
package cli

import (
	"github.com/spf13/cobra"
)

// globalFlags holds the flags every subcommand shares.
type globalFlags struct {
	configPath   string
	dbPath       string
	artifactBase string
	jsonOutput   bool
}

var flags globalFlags

// NewRootCommand builds the phasetracker root command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "phasetracker",
		Short:         "Resumable, fail-fast pipeline orchestrator",
		Long:          `phasetracker drives a fixed thirteen-stage pipeline end to end, tracking durable per-run state so a failed or interrupted run can resume from its last completed stage.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML config file; overrides environment variables and defaults")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db-path", "", "path to the metadata database (default: ./phasetracker.db or PHASETRACKER_DB_PATH)")
	cmd.PersistentFlags().StringVar(&flags.artifactBase, "artifact-base", "", "base directory for stage artifacts (default: ./artifacts or PHASETRACKER_ARTIFACT_BASE)")
	cmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "emit machine-readable JSON instead of a formatted table")

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newPathsCommand())

	return cmd
}
