package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
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

func newTestRun(id string) *store.Run {
	now := time.Now().UTC()
	return &store.Run{
		ID:          id,
		Country:     "US",
		Industry:    "retail",
		TargetStage: "9",
		Status:      store.RunPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	run := newTestRun("run-1")
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "US", got.Country)
	assert.Equal(t, store.RunPending, got.Status)
}

func TestCreateRunDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateRun(ctx, newTestRun("dup")))

	err := s.CreateRun(ctx, newTestRun("dup"))
	require.Error(t, err)
	var dupErr *phaseerrors.DuplicateRunIDError
	assert.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "dup", dupErr.ID)
}

func TestGetRunNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetRun(ctx, "missing")
	require.Error(t, err)
	var nf *phaseerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestListRunsFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i, id := range []string{"r1", "r2", "r3"} {
		run := newTestRun(id)
		run.CreatedAt = run.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateRun(ctx, run))
	}
	require.NoError(t, s.UpdateRunStatus(ctx, "r2", store.RunCompleted, ""))

	completed, err := s.ListRuns(ctx, store.RunFilter{Status: store.RunCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "r2", completed[0].ID)

	limited, err := s.ListRuns(ctx, store.RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestUpdateRunStatusStampsFinishedAtOnlyWhenTerminal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-x")))

	require.NoError(t, s.UpdateRunStatus(ctx, "run-x", store.RunRunning, ""))
	mid, err := s.GetRun(ctx, "run-x")
	require.NoError(t, err)
	assert.Nil(t, mid.FinishedAt)

	require.NoError(t, s.UpdateRunStatus(ctx, "run-x", store.RunFailed, "boom"))
	done, err := s.GetRun(ctx, "run-x")
	require.NoError(t, err)
	require.NotNil(t, done.FinishedAt)
	assert.Equal(t, "boom", done.Error)
}

func TestUpdateRunStatusNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	err := s.UpdateRunStatus(ctx, "ghost", store.RunFailed, "")
	require.Error(t, err)
	var nf *phaseerrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateTargetStage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-y")))

	require.NoError(t, s.UpdateTargetStage(ctx, "run-y", "6"))
	got, err := s.GetRun(ctx, "run-y")
	require.NoError(t, err)
	assert.Equal(t, "6", got.TargetStage)
}
