package store

import (
	"context"
	"database/sql"
	"time"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
)

// CreateRun inserts a new run with the status set on run. It returns a
// DuplicateRunIDError if run.ID already exists.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	now := formatTime(run.CreatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, industry, country, client_context, target_stage, status, created_at, updated_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)
	`, run.ID, run.Industry, run.Country, nullString(run.ClientContext), nullString(run.TargetStage), run.Status, now, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return &phaseerrors.DuplicateRunIDError{ID: run.ID}
		}
		return &phaseerrors.StoreError{Op: "createRun", Cause: err}
	}
	return nil
}

// GetRun fetches a run by id, or NotFoundError if it doesn't exist.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, industry, country, client_context, target_stage, status, created_at, updated_at, finished_at, error
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if nf, ok := err.(*phaseerrors.NotFoundError); ok {
			nf.ID = id
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs ordered by created_at descending, optionally
// filtered by status and capped at filter.Limit (0 means unbounded).
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `
		SELECT id, industry, country, client_context, target_stage, status, created_at, updated_at, finished_at, error
		FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "listRuns", Cause: err}
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, &phaseerrors.StoreError{Op: "listRuns scan", Cause: err}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &phaseerrors.StoreError{Op: "listRuns rows", Cause: err}
	}
	return runs, nil
}

// UpdateRunStatus transitions a run's status, stamping updated_at and,
// for terminal statuses, finished_at. errMsg is recorded verbatim
// alongside the status; pass "" to leave the error field untouched.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg string) error {
	now := time.Now().UTC()
	var finishedAt any
	if status.Terminal() {
		finishedAt = formatTime(now)
	}

	var res sql.Result
	var err error
	if errMsg != "" {
		res, err = s.db.ExecContext(ctx, `
			UPDATE runs SET status = ?, updated_at = ?, finished_at = COALESCE(?, finished_at), error = ?
			WHERE id = ?
		`, status, formatTime(now), finishedAt, errMsg, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE runs SET status = ?, updated_at = ?, finished_at = COALESCE(?, finished_at)
			WHERE id = ?
		`, status, formatTime(now), finishedAt, id)
	}
	if err != nil {
		return &phaseerrors.StoreError{Op: "updateRunStatus", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &phaseerrors.StoreError{Op: "updateRunStatus rowsAffected", Cause: err}
	}
	if n == 0 {
		return &phaseerrors.NotFoundError{Resource: "run", ID: id}
	}
	return nil
}

// UpdateTargetStage updates a run's target_stage, as happens on
// resume with a new --through value.
func (s *Store) UpdateTargetStage(ctx context.Context, id, throughStage string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET target_stage = ?, updated_at = ? WHERE id = ?
	`, throughStage, formatTime(now), id)
	if err != nil {
		return &phaseerrors.StoreError{Op: "updateTargetStage", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &phaseerrors.StoreError{Op: "updateTargetStage rowsAffected", Cause: err}
	}
	if n == 0 {
		return &phaseerrors.NotFoundError{Resource: "run", ID: id}
	}
	return nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var clientContext, targetStage, finishedAt, errStr sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Industry, &r.Country, &clientContext, &targetStage, &r.Status, &createdAt, &updatedAt, &finishedAt, &errStr)
	if err == sql.ErrNoRows {
		return nil, &phaseerrors.NotFoundError{Resource: "run", ID: ""}
	}
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "scanRun", Cause: err}
	}
	r.ClientContext = clientContext.String
	r.TargetStage = targetStage.String
	r.Error = errStr.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.FinishedAt = parseNullTime(finishedAt)
	return &r, nil
}

func scanRunRows(rows *sql.Rows) (*Run, error) {
	var r Run
	var clientContext, targetStage, finishedAt, errStr sql.NullString
	var createdAt, updatedAt string
	err := rows.Scan(&r.ID, &r.Industry, &r.Country, &clientContext, &targetStage, &r.Status, &createdAt, &updatedAt, &finishedAt, &errStr)
	if err != nil {
		return nil, err
	}
	r.ClientContext = clientContext.String
	r.TargetStage = targetStage.String
	r.Error = errStr.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.FinishedAt = parseNullTime(finishedAt)
	return &r, nil
}
