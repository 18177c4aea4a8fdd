// Package scorecard provides read-only views over a run's progress:
// completed stages, the next pending stage, and a per-stage summary
// table for the status CLI command.
package scorecard

import (
	"context"

	"github.com/harlanreed/phasetracker/pkg/stage"
	"github.com/harlanreed/phasetracker/pkg/store"
)

// Row is one stage's summary line.
type Row struct {
	Stage      string
	Label      string
	Kind       stage.Kind
	Attempts   int
	Status     store.AttemptStatus
	DurationMs *int64
}

// Summary is a run's full scorecard.
type Summary struct {
	RunID          string
	Status         store.RunStatus
	TargetStage    string
	CompletedStages []string
	NextPending    string
	Rows           []Row
}

// Build assembles a run's scorecard from the store.
func Build(ctx context.Context, s *store.Store, runID string) (*Summary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: run.ID, Status: run.Status, TargetStage: run.TargetStage}

	for _, id := range stage.Order {
		attempts, err := s.GetStageAttempts(ctx, runID, id)
		if err != nil {
			return nil, err
		}
		def := stage.Definitions[id]
		row := Row{Stage: id, Label: def.Label, Kind: def.Kind, Attempts: len(attempts)}
		if len(attempts) > 0 {
			latest := attempts[len(attempts)-1]
			row.Status = latest.Status
			row.DurationMs = latest.DurationMs
			if latest.Status == store.AttemptCompleted {
				summary.CompletedStages = append(summary.CompletedStages, id)
			}
		}
		summary.Rows = append(summary.Rows, row)
	}

	completed := map[string]bool{}
	for _, id := range summary.CompletedStages {
		completed[id] = true
	}
	summary.NextPending = firstIncomplete(completed)

	return summary, nil
}

func firstIncomplete(completed map[string]bool) string {
	for _, id := range stage.Order {
		if !completed[id] {
			return id
		}
	}
	return ""
}
