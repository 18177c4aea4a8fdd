// Package lock implements the per-run exclusion lock: a cooperative,
// TTL-based lock over a single run, backed by the metadata store's
// run_locks table. Unlike a distributed advisory lock, expiry is
// judged by wall-clock comparison against a stored expires_at rather
// than by holding a live database session, so a crashed holder's lock
// is reclaimable once its TTL lapses without anyone needing to detect
// the crash.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	phaseerrors "github.com/harlanreed/phasetracker/internal/errors"
	"github.com/harlanreed/phasetracker/pkg/store"
)

// Manager acquires, heartbeats, and releases per-run locks.
type Manager struct {
	store  *store.Store
	holder string
	ttl    time.Duration
	logger *slog.Logger
}

// Config configures a Manager.
type Config struct {
	Store  *store.Store
	Holder string
	TTL    time.Duration
	Logger *slog.Logger
}

// New returns a Manager. If cfg.Holder is empty, a random identity is
// generated; if cfg.TTL is zero, it defaults to five minutes.
func New(cfg Config) *Manager {
	holder := cfg.Holder
	if holder == "" {
		holder = "worker-" + uuid.NewString()[:8]
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: cfg.Store, holder: holder, ttl: ttl, logger: logger.With("component", "lock")}
}

// Holder returns this manager's holder identity.
func (m *Manager) Holder() string {
	return m.holder
}

// Held represents a successfully acquired lock. Release must be
// called when the caller is done with the run, normally via defer.
type Held struct {
	manager *Manager
	runID   string
	lockID  string

	stopCh chan struct{}
	doneCh chan struct{}
}

// Acquire attempts to take the exclusion lock for runID. It returns a
// LockHeldError if a live (non-expired) lock is already held, by any
// identity including this manager's own.
func (m *Manager) Acquire(ctx context.Context, runID string) (*Held, error) {
	lockID := uuid.NewString()
	if _, err := m.store.AcquireLock(ctx, runID, m.holder, lockID, m.ttl); err != nil {
		return nil, err
	}

	h := &Held{
		manager: m,
		runID:   runID,
		lockID:  lockID,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go h.heartbeatLoop(ctx)
	return h, nil
}

// heartbeatLoop extends the lock's expiry at a third of the TTL, so
// at least two heartbeats land before the lock could expire under
// normal scheduling jitter.
func (h *Held) heartbeatLoop(ctx context.Context) {
	defer close(h.doneCh)

	interval := h.manager.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			if err := h.manager.store.Heartbeat(ctx, h.runID, h.lockID, h.manager.ttl); err != nil {
				h.manager.logger.Warn("lock heartbeat failed", "run_id", h.runID, "error", err)
				return
			}
		}
	}
}

// Release stops the heartbeat loop and deletes the lock row, provided
// this holder still owns it.
func (h *Held) Release(ctx context.Context) error {
	close(h.stopCh)
	<-h.doneCh
	return h.manager.store.ReleaseLock(ctx, h.runID, h.lockID)
}

// IsLocked reports whether runID currently has a live, non-expired
// lock held by some identity.
func (m *Manager) IsLocked(ctx context.Context, runID string) (bool, error) {
	l, err := m.store.GetLock(ctx, runID)
	if err != nil {
		if _, ok := err.(*phaseerrors.NotFoundError); ok {
			return false, nil
		}
		return false, err
	}
	return l.ExpiresAt.After(time.Now().UTC()), nil
}

// CleanExpired removes every lock row whose TTL has lapsed, reclaiming
// them for future acquirers. Safe to call periodically from any
// process sharing the store.
func (m *Manager) CleanExpired(ctx context.Context) (int64, error) {
	return m.store.CleanExpiredLocks(ctx)
}
