package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
	"github.com/harlanreed/phasetracker/pkg/store"
)

func TestStageAttemptsContiguousNumbering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-a")))

	first, err := s.StartStageAttempt(ctx, "run-a", "2")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempt)

	require.NoError(t, s.FailStageAttempt(ctx, first.ID, "handler blew up"))

	second, err := s.StartStageAttempt(ctx, "run-a", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)

	attempts, err := s.GetStageAttempts(ctx, "run-a", "2")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Attempt)
	assert.Equal(t, 2, attempts[1].Attempt)
}

func TestFinishStageAttemptComputesDuration(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-b")))

	attempt, err := s.StartStageAttempt(ctx, "run-b", "3")
	require.NoError(t, err)

	require.NoError(t, s.FinishStageAttempt(ctx, attempt.ID, store.AttemptCompleted))

	latest, err := s.GetLatestAttempt(ctx, "run-b", "3")
	require.NoError(t, err)
	require.NotNil(t, latest.DurationMs)
	assert.GreaterOrEqual(t, *latest.DurationMs, int64(0))
	require.NotNil(t, latest.FinishedAt)
	assert.False(t, latest.FinishedAt.Before(latest.StartedAt))
}

func TestFailStageAttemptRecordsError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-c")))

	attempt, err := s.StartStageAttempt(ctx, "run-c", "4")
	require.NoError(t, err)

	require.NoError(t, s.FailStageAttempt(ctx, attempt.ID, "schema validation failed"))

	latest, err := s.GetLatestAttempt(ctx, "run-c", "4")
	require.NoError(t, err)
	assert.Equal(t, store.AttemptFailed, latest.Status)
	assert.Equal(t, "schema validation failed", latest.Error)
}

func TestGetLatestAttemptNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-d")))

	_, err := s.GetLatestAttempt(ctx, "run-d", "2")
	require.Error(t, err)
	var nf *phaseerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestGetStageAttemptsFiltersByStage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-e")))

	_, err := s.StartStageAttempt(ctx, "run-e", "2")
	require.NoError(t, err)
	_, err = s.StartStageAttempt(ctx, "run-e", "3")
	require.NoError(t, err)

	all, err := s.GetStageAttempts(ctx, "run-e", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyTwo, err := s.GetStageAttempts(ctx, "run-e", "2")
	require.NoError(t, err)
	require.Len(t, onlyTwo, 1)
	assert.Equal(t, "2", onlyTwo[0].Stage)
}
