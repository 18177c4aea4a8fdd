package store

import (
	"context"
	"database/sql"
	"time"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
)

// AppendEvent inserts an append-only event row. Stage and Attempt are
// optional (empty/zero) for run-scoped events.
func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, stage, attempt, type, message, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, nullString(e.Stage), nullZeroInt(e.Attempt), e.Type, e.Message, nullString(e.Data), formatTime(now))
	if err != nil {
		return &phaseerrors.StoreError{Op: "appendEvent", Cause: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &phaseerrors.StoreError{Op: "appendEvent lastInsertId", Cause: err}
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// GetEvents returns a run's events in insertion order, optionally
// filtered by stage and/or type.
func (s *Store) GetEvents(ctx context.Context, runID string, filter EventFilter) ([]*Event, error) {
	query := `
		SELECT id, run_id, stage, attempt, type, message, data, created_at
		FROM events WHERE run_id = ?`
	args := []any{runID}
	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, filter.Stage)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "getEvents", Cause: err}
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var stage, data sql.NullString
		var attempt sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RunID, &stage, &attempt, &e.Type, &e.Message, &data, &createdAt); err != nil {
			return nil, &phaseerrors.StoreError{Op: "getEvents scan", Cause: err}
		}
		e.Stage = stage.String
		e.Attempt = int(attempt.Int64)
		e.Data = data.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullZeroInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
