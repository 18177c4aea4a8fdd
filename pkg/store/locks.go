package store

import (
	"context"
	"database/sql"
	"time"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
)

// AcquireLock inserts a run_locks row if none exists, or if the
// existing row has expired. It returns a LockHeldError if a live lock
// is already held, whatever its holder or lockId.
func (s *Store) AcquireLock(ctx context.Context, runID, holder, lockID string, ttl time.Duration) (*RunLock, error) {
	var out RunLock
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var existingHolder, existingExpiresAt string
		row := tx.QueryRowContext(ctx, `SELECT holder, expires_at FROM run_locks WHERE run_id = ?`, runID)
		err := row.Scan(&existingHolder, &existingExpiresAt)
		switch {
		case err == sql.ErrNoRows:
			// no lock yet, proceed to insert
		case err != nil:
			return err
		default:
			if parseTime(existingExpiresAt).After(now) {
				return &phaseerrors.LockHeldError{RunID: runID, Holder: existingHolder}
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_locks (run_id, holder, lock_id, acquired_at, heartbeat_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				holder = excluded.holder, lock_id = excluded.lock_id,
				acquired_at = excluded.acquired_at, heartbeat_at = excluded.heartbeat_at,
				expires_at = excluded.expires_at
		`, runID, holder, lockID, formatTime(now), formatTime(now), formatTime(expiresAt))
		if err != nil {
			return err
		}

		out = RunLock{RunID: runID, Holder: holder, LockID: lockID, AcquiredAt: now, HeartbeatAt: now, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		if lockErr, ok := err.(*phaseerrors.LockHeldError); ok {
			return nil, lockErr
		}
		return nil, &phaseerrors.StoreError{Op: "acquireLock", Cause: err}
	}
	return &out, nil
}

// Heartbeat extends an already-held lock's expiry. It fails with a
// LockHeldError if lockID no longer matches the current holder (the
// lock was reclaimed out from under the caller).
func (s *Store) Heartbeat(ctx context.Context, runID, lockID string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE run_locks SET heartbeat_at = ?, expires_at = ?
		WHERE run_id = ? AND lock_id = ?
	`, formatTime(now), formatTime(now.Add(ttl)), runID, lockID)
	if err != nil {
		return &phaseerrors.StoreError{Op: "heartbeat", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &phaseerrors.StoreError{Op: "heartbeat rowsAffected", Cause: err}
	}
	if n == 0 {
		return &phaseerrors.LockHeldError{RunID: runID, Holder: "unknown"}
	}
	return nil
}

// ReleaseLock removes a run's lock row, but only if lockID matches the
// current holder's lock id, so a reclaimed/expired lock can't be
// released by its previous, now-stale, holder.
func (s *Store) ReleaseLock(ctx context.Context, runID, lockID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE run_id = ? AND lock_id = ?`, runID, lockID)
	if err != nil {
		return &phaseerrors.StoreError{Op: "releaseLock", Cause: err}
	}
	return nil
}

// GetLock returns a run's current lock row, or NotFoundError if none
// is held (expired locks are still returned; callers check ExpiresAt).
func (s *Store) GetLock(ctx context.Context, runID string) (*RunLock, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, holder, lock_id, acquired_at, heartbeat_at, expires_at
		FROM run_locks WHERE run_id = ?
	`, runID)

	var l RunLock
	var acquiredAt, heartbeatAt, expiresAt string
	err := row.Scan(&l.RunID, &l.Holder, &l.LockID, &acquiredAt, &heartbeatAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, &phaseerrors.NotFoundError{Resource: "runLock", ID: runID}
	}
	if err != nil {
		return nil, &phaseerrors.StoreError{Op: "getLock", Cause: err}
	}
	l.AcquiredAt = parseTime(acquiredAt)
	l.HeartbeatAt = parseTime(heartbeatAt)
	l.ExpiresAt = parseTime(expiresAt)
	return &l, nil
}

// CleanExpiredLocks deletes every run_locks row whose expiry has
// passed, and returns how many were removed.
func (s *Store) CleanExpiredLocks(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, &phaseerrors.StoreError{Op: "cleanExpiredLocks", Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &phaseerrors.StoreError{Op: "cleanExpiredLocks rowsAffected", Cause: err}
	}
	return n, nil
}
