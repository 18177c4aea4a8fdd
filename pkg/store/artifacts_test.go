package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harlanreed/phasetracker/pkg/store"
)

func TestRecordArtifactUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-art")))

	art := &store.Artifact{RunID: "run-art", Stage: "2", Attempt: 1, Filename: "output.json", Path: "/tmp/output.json", SizeBytes: 128, ContentType: "application/json"}
	require.NoError(t, s.RecordArtifact(ctx, art))

	art.SizeBytes = 256
	require.NoError(t, s.RecordArtifact(ctx, art))

	got, err := s.GetArtifacts(ctx, "run-art", "2", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(256), got[0].SizeBytes)
}

func TestListRunArtifactsOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-art2")))

	require.NoError(t, s.RecordArtifact(ctx, &store.Artifact{RunID: "run-art2", Stage: "3", Attempt: 1, Filename: "b.json", Path: "/b", SizeBytes: 1, ContentType: "application/json"}))
	require.NoError(t, s.RecordArtifact(ctx, &store.Artifact{RunID: "run-art2", Stage: "2", Attempt: 1, Filename: "a.json", Path: "/a", SizeBytes: 1, ContentType: "application/json"}))

	all, err := s.ListRunArtifacts(ctx, "run-art2")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].Stage)
	assert.Equal(t, "3", all[1].Stage)
}
