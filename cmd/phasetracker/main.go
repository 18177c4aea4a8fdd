// Command phasetracker is the CLI entry point for the phase-tracker
// orchestrator: run, status, list, and paths subcommands over a
// SQLite-backed metadata store and on-disk artifact tree.
package main

import (
	"fmt"
	"os"

	"github.com/harlanreed/phasetracker/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
