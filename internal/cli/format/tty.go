// Package format renders CLI output: a scorecard table (lipgloss-styled
// on interactive terminals, plain text otherwise) and indented JSON for
// --json.
package format

import (
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether stdout should receive terminal formatting.
// False if stdout is piped, NO_COLOR is set, or TERM is "dumb" or
// unset.
func IsTTY() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := os.Getenv("TERM")
	if termEnv == "dumb" || termEnv == "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
