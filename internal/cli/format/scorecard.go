package format

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/harlanreed/phasetracker/pkg/scorecard"
	"github.com/harlanreed/phasetracker/pkg/store"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tableStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Scorecard renders a scorecard.Summary as an aligned table when
// stdout is a TTY, or a minimal plain-text table otherwise.
func Scorecard(s *scorecard.Summary, isTTY bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "run %s  status=%s  target=%s  next=%s\n\n", s.RunID, s.Status, s.TargetStage, orDash(s.NextPending))

	cols := []string{"STAGE", "LABEL", "KIND", "ATTEMPTS", "STATUS", "DURATION"}
	widths := columnWidths(s, cols)

	writeRow(&b, cols, widths, isTTY, headerStyle)
	for _, row := range s.Rows {
		status := string(row.Status)
		if status == "" {
			status = "-"
		}
		duration := "-"
		if row.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *row.DurationMs)
		}
		style := pendingStyle
		switch row.Status {
		case store.AttemptCompleted:
			style = okStyle
		case store.AttemptFailed:
			style = failStyle
		}
		writeRow(&b, []string{row.Stage, row.Label, string(row.Kind), fmt.Sprintf("%d", row.Attempts), status, duration}, widths, isTTY, style)
	}

	return b.String()
}

func columnWidths(s *scorecard.Summary, cols []string) []int {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range s.Rows {
		duration := "-"
		if row.DurationMs != nil {
			duration = fmt.Sprintf("%dms", *row.DurationMs)
		}
		cells := []string{row.Stage, row.Label, string(row.Kind), fmt.Sprintf("%d", row.Attempts), string(row.Status), duration}
		for i, c := range cells {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}
	return widths
}

func writeRow(b *strings.Builder, cells []string, widths []int, isTTY bool, style lipgloss.Style) {
	padded := make([]string, len(cells))
	for i, c := range cells {
		w := 8
		if i < len(widths) {
			w = widths[i]
		}
		padded[i] = fmt.Sprintf("%-*s", w, c)
	}
	line := strings.Join(padded, "  ")
	if isTTY {
		line = style.Render(line)
	}
	fmt.Fprintln(b, tableStyleLine(line, isTTY))
}

func tableStyleLine(line string, isTTY bool) string {
	if !isTTY {
		return line
	}
	return tableStyle.Render(line)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
