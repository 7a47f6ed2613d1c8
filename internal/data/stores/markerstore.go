package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/sprintbase/tempo/internal/data/db"
)

// MarkerStore records which daily sweeps have already run, keyed by
// sweep kind and date. The marker is what makes re-entrant sweep
// invocations (crash replays, manual triggers) idempotent at the batch
// level; the per-issue no-op transitions cover the rest.
type MarkerStore struct {
	db *db.DB
}

// NewMarkerStore creates a new SQLite-backed sweep marker store.
func NewMarkerStore(db *db.DB) *MarkerStore {
	return &MarkerStore{db: db}
}

// Completed reports whether the sweep of the given kind already ran on
// the given day (formatted YYYY-MM-DD).
func (s *MarkerStore) Completed(ctx context.Context, kind, day string) (bool, error) {
	var count int64
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sweep_markers WHERE kind = ? AND day = ?`,
		kind, day).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sweep marker %s/%s: %w", kind, day, err)
	}
	return count > 0, nil
}

// MarkCompleted records that the sweep of the given kind ran on the
// given day. Safe to call twice.
func (s *MarkerStore) MarkCompleted(ctx context.Context, kind, day string, at time.Time) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT OR IGNORE INTO sweep_markers (kind, day, completed_at) VALUES (?, ?, ?)`,
		kind, day, at.UnixNano())
	if err != nil {
		return fmt.Errorf("mark sweep %s/%s completed: %w", kind, day, err)
	}
	return nil
}
