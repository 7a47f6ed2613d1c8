package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/data/db"
)

// LedgerStore implements timer.LedgerStore using SQLite. Entries are
// append-only; nothing here updates or deletes.
type LedgerStore struct {
	db *db.DB
}

var _ timer.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new SQLite-backed ledger store.
func NewLedgerStore(db *db.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Append writes a closed entry. Durations are stored as whole seconds;
// sub-second precision is dropped. Returns timer.ErrValidation for
// negative durations; a negative duration is a bug upstream and must
// never be persisted.
func (s *LedgerStore) Append(ctx context.Context, entry timer.Entry) error {
	if entry.Duration < 0 {
		return fmt.Errorf("append entry for issue %q: negative duration %s: %w",
			entry.IssueID, entry.Duration, timer.ErrValidation)
	}
	if entry.UserID == "" || entry.IssueID == "" {
		return fmt.Errorf("append entry: missing user or issue: %w", timer.ErrValidation)
	}

	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO time_entries (id, user_id, issue_id, start_time, duration_seconds, extra_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.IssueID,
		entry.StartTime.UnixNano(),
		int64(entry.Duration/time.Second),
		entry.ExtraHours,
		entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append entry for issue %q: %w", entry.IssueID, err)
	}

	return nil
}

// Query returns entries for a user whose StartTime falls in [from, to),
// ordered by StartTime.
func (s *LedgerStore) Query(ctx context.Context, userID string, from, to time.Time) ([]timer.Entry, error) {
	return s.list(ctx, `
		SELECT id, user_id, issue_id, start_time, duration_seconds, extra_hours, created_at
		FROM time_entries
		WHERE user_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		userID, from.UnixNano(), to.UnixNano())
}

// ListByIssue returns all entries logged against an issue, ordered by
// StartTime.
func (s *LedgerStore) ListByIssue(ctx context.Context, issueID string) ([]timer.Entry, error) {
	return s.list(ctx, `
		SELECT id, user_id, issue_id, start_time, duration_seconds, extra_hours, created_at
		FROM time_entries
		WHERE issue_id = ?
		ORDER BY start_time`,
		issueID)
}

func (s *LedgerStore) list(ctx context.Context, query string, args ...any) ([]timer.Entry, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []timer.Entry
	for rows.Next() {
		var (
			entry       timer.Entry
			start       int64
			durationSec int64
			created     int64
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.IssueID, &start, &durationSec, &entry.ExtraHours, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.StartTime = time.Unix(0, start)
		entry.Duration = time.Duration(durationSec) * time.Second
		entry.CreatedAt = time.Unix(0, created)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}

	return entries, nil
}
