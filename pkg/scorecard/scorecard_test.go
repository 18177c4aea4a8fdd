package scorecard_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlanreed/phasetracker/pkg/scorecard"
	"github.com/harlanreed/phasetracker/pkg/stage"
	"github.com/harlanreed/phasetracker/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuildReportsEmptyRunAsAllPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.CreateRun(ctx, &store.Run{
		ID: "run-empty", Country: "US", Industry: "retail", TargetStage: "9",
		Status: store.RunPending, CreatedAt: now, UpdatedAt: now,
	}))

	summary, err := scorecard.Build(ctx, s, "run-empty")
	require.NoError(t, err)
	assert.Equal(t, "run-empty", summary.RunID)
	assert.Empty(t, summary.CompletedStages)
	assert.Equal(t, stage.Order[0], summary.NextPending)
	assert.Len(t, summary.Rows, len(stage.Order))
	for _, row := range summary.Rows {
		assert.Equal(t, 0, row.Attempts)
	}
}

func TestBuildTracksCompletedStagesAndNextPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.CreateRun(ctx, &store.Run{
		ID: "run-partial", Country: "US", Industry: "retail", TargetStage: "9",
		Status: store.RunRunning, CreatedAt: now, UpdatedAt: now,
	}))

	first, second := stage.Order[0], stage.Order[1]

	a1, err := s.StartStageAttempt(ctx, "run-partial", first)
	require.NoError(t, err)
	require.NoError(t, s.FinishStageAttempt(ctx, a1.ID, store.AttemptCompleted))

	a2, err := s.StartStageAttempt(ctx, "run-partial", second)
	require.NoError(t, err)
	require.NoError(t, s.FailStageAttempt(ctx, a2.ID, "boom"))

	summary, err := scorecard.Build(ctx, s, "run-partial")
	require.NoError(t, err)
	assert.Equal(t, []string{first}, summary.CompletedStages)
	assert.Equal(t, second, summary.NextPending, "a failed stage is not completed, so it stays the next pending stage")

	var firstRow, secondRow scorecard.Row
	for _, row := range summary.Rows {
		if row.Stage == first {
			firstRow = row
		}
		if row.Stage == second {
			secondRow = row
		}
	}
	assert.Equal(t, store.AttemptCompleted, firstRow.Status)
	assert.Equal(t, 1, firstRow.Attempts)
	assert.Equal(t, store.AttemptFailed, secondRow.Status)
	assert.Equal(t, 1, secondRow.Attempts)
}

func TestBuildReturnsNotFoundForUnknownRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := scorecard.Build(ctx, s, "does-not-exist")
	require.Error(t, err)
}
