package store

import (
	"context"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
)

// RecordArtifact upserts an artifact row, keyed on (runId, stage,
// attempt, filename). Call this after the file has been durably
// written to disk.
func (s *Store) RecordArtifact(ctx context.Context, a *Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (run_id, stage, attempt, filename, path, size_bytes, content_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage, attempt, filename) DO UPDATE SET
			path = excluded.path, size_bytes = excluded.size_bytes, content_type = excluded.content_type
	`, a.RunID, a.Stage, a.Attempt, a.Filename, a.Path, a.SizeBytes, a.ContentType)
	if err != nil {
		return &phaseerrors.StoreError{Op: "recordArtifact", Cause: err}
	}
	return nil
}

// GetArtifacts returns the artifacts for one stage attempt.
func (s *Store) GetArtifacts(ctx context.Context, runID, stage string, attempt int) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, attempt, filename, path, size_bytes, content_type
		FROM artifacts WHERE run_id = ? AND stage = ? AND attempt = ?
		ORDER BY filename ASC
	`, runID, stage, attempt)
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "getArtifacts", Cause: err}
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Stage, &a.Attempt, &a.Filename, &a.Path, &a.SizeBytes, &a.ContentType); err != nil {
			return nil, &phaseerrors.StoreError{Op: "getArtifacts scan", Cause: err}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListRunArtifacts returns every artifact ever recorded for a run,
// across all stages and attempts, ordered by stage then attempt then
// filename.
func (s *Store) ListRunArtifacts(ctx context.Context, runID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, attempt, filename, path, size_bytes, content_type
		FROM artifacts WHERE run_id = ?
		ORDER BY stage ASC, attempt ASC, filename ASC
	`, runID)
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "listRunArtifacts", Cause: err}
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Stage, &a.Attempt, &a.Filename, &a.Path, &a.SizeBytes, &a.ContentType); err != nil {
			return nil, &phaseerrors.StoreError{Op: "listRunArtifacts scan", Cause: err}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
