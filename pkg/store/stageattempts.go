package store

import (
	"context"
	"database/sql"
	"time"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
)

// StartStageAttempt inserts the next attempt row for (runId, stage) in
// running status. The attempt number is one greater than the highest
// existing attempt for that (runId, stage) pair, preserving the
// contiguous-attempt-numbers invariant even across process restarts.
func (s *Store) StartStageAttempt(ctx context.Context, runID, stageID string) (*StageAttempt, error) {
	var attempt StageAttempt
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var maxAttempt sql.NullInt64
		if err := tx.QueryRowContext(ctx, `
			SELECT MAX(attempt) FROM stage_attempts WHERE run_id = ? AND stage = ?
		`, runID, stageID).Scan(&maxAttempt); err != nil {
			return err
		}

		next := int(maxAttempt.Int64) + 1
		now := time.Now().UTC()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO stage_attempts (run_id, stage, attempt, status, started_at, finished_at, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, NULL, NULL, NULL)
		`, runID, stageID, next, AttemptRunning, formatTime(now))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		attempt = StageAttempt{
			ID:        id,
			RunID:     runID,
			Stage:     stageID,
			Attempt:   next,
			Status:    AttemptRunning,
			StartedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "startStageAttempt", Cause: err}
	}
	return &attempt, nil
}

// FinishStageAttempt marks an attempt completed or skipped and stamps
// finished_at/duration_ms.
func (s *Store) FinishStageAttempt(ctx context.Context, id int64, status AttemptStatus) error {
	now := time.Now().UTC()
	return s.withAttemptStart(ctx, id, func(startedAt time.Time) error {
		durationMs := now.Sub(startedAt).Milliseconds()
		res, err := s.db.ExecContext(ctx, `
			UPDATE stage_attempts SET status = ?, finished_at = ?, duration_ms = ?
			WHERE id = ?
		`, status, formatTime(now), durationMs, id)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, "stageAttempt", id)
	})
}

// FailStageAttempt marks an attempt failed and records errMsg.
func (s *Store) FailStageAttempt(ctx context.Context, id int64, errMsg string) error {
	now := time.Now().UTC()
	return s.withAttemptStart(ctx, id, func(startedAt time.Time) error {
		durationMs := now.Sub(startedAt).Milliseconds()
		res, err := s.db.ExecContext(ctx, `
			UPDATE stage_attempts SET status = ?, finished_at = ?, duration_ms = ?, error = ?
			WHERE id = ?
		`, AttemptFailed, formatTime(now), durationMs, errMsg, id)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, "stageAttempt", id)
	})
}

func (s *Store) withAttemptStart(ctx context.Context, id int64, fn func(startedAt time.Time) error) error {
	var startedAt string
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM stage_attempts WHERE id = ?`, id).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return &phaseerrors.NotFoundError{Resource: "stageAttempt", ID: ""}
	}
	if err != nil {
		return &phaseerrors.StoreError{Op: "withAttemptStart", Cause: err}
	}
	if err := fn(parseTime(startedAt)); err != nil {
		return &phaseerrors.StoreError{Op: "withAttemptStart update", Cause: err}
	}
	return nil
}

func checkRowsAffected(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &phaseerrors.NotFoundError{Resource: resource, ID: ""}
	}
	return nil
}

// GetStageAttempts returns all attempts for a run, ordered by id
// ascending (chronological), optionally filtered to a single stage.
func (s *Store) GetStageAttempts(ctx context.Context, runID, stage string) ([]*StageAttempt, error) {
	query := `
		SELECT id, run_id, stage, attempt, status, started_at, finished_at, duration_ms, error
		FROM stage_attempts WHERE run_id = ?`
	args := []any{runID}
	if stage != "" {
		query += ` AND stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "getStageAttempts", Cause: err}
	}
	defer rows.Close()

	var out []*StageAttempt
	for rows.Next() {
		a, err := scanStageAttempt(rows)
		if err != nil {
			return nil, &phaseerrors.StoreError{Op: "getStageAttempts scan", Cause: err}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetLatestAttempt returns the highest-numbered attempt for
// (runID, stage), or a NotFoundError if no attempt exists.
func (s *Store) GetLatestAttempt(ctx context.Context, runID, stage string) (*StageAttempt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, stage, attempt, status, started_at, finished_at, duration_ms, error
		FROM stage_attempts WHERE run_id = ? AND stage = ?
		ORDER BY attempt DESC LIMIT 1
	`, runID, stage)

	var a StageAttempt
	var finishedAt sql.NullString
	var durationMs sql.NullInt64
	var errStr sql.NullString
	var startedAt string
	err := row.Scan(&a.ID, &a.RunID, &a.Stage, &a.Attempt, &a.Status, &startedAt, &finishedAt, &durationMs, &errStr)
	if err == sql.ErrNoRows {
		return nil, &phaseerrors.NotFoundError{Resource: "stageAttempt", ID: runID + "/" + stage}
	}
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "getLatestAttempt", Cause: err}
	}
	a.StartedAt = parseTime(startedAt)
	a.FinishedAt = parseNullTime(finishedAt)
	if durationMs.Valid {
		a.DurationMs = &durationMs.Int64
	}
	a.Error = errStr.String
	return &a, nil
}

func scanStageAttempt(rows *sql.Rows) (*StageAttempt, error) {
	var a StageAttempt
	var finishedAt sql.NullString
	var durationMs sql.NullInt64
	var errStr sql.NullString
	var startedAt string
	if err := rows.Scan(&a.ID, &a.RunID, &a.Stage, &a.Attempt, &a.Status, &startedAt, &finishedAt, &durationMs, &errStr); err != nil {
		return nil, err
	}
	a.StartedAt = parseTime(startedAt)
	a.FinishedAt = parseNullTime(finishedAt)
	if durationMs.Valid {
		a.DurationMs = &durationMs.Int64
	}
	a.Error = errStr.String
	return &a, nil
}
