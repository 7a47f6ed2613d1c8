package stores

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/data/db"
)

// IssueStore implements timer.IssueStore using SQLite.
//
// Timer state lives inline on the issue row; UpdateTimer compares and
// bumps the version column in one UPDATE so concurrent transitions on
// the same issue resolve to one winner and one timer.ErrStaleVersion.
type IssueStore struct {
	db *db.DB
}

var _ timer.IssueStore = (*IssueStore)(nil)

// NewIssueStore creates a new SQLite-backed issue store.
func NewIssueStore(db *db.DB) *IssueStore {
	return &IssueStore{db: db}
}

const issueColumns = `id, status, version,
	timer_owner, timer_start, timer_last_activity, timer_paused,
	timer_paused_at, timer_accumulated_pause, timer_auto_paused, timer_extra_hours`

// Get returns an issue by ID. Returns timer.ErrIssueNotFound if missing.
func (s *IssueStore) Get(ctx context.Context, id string) (timer.Issue, error) {
	row := s.db.Conn().QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)

	issue, err := scanIssue(row)
	if IsNotFoundError(err) {
		return timer.Issue{}, fmt.Errorf("get issue %q: %w", id, timer.ErrIssueNotFound)
	}
	if err != nil {
		return timer.Issue{}, fmt.Errorf("get issue %q: %w", id, err)
	}

	return issue, nil
}

// Create inserts a new issue. Returns timer.ErrConflict if the ID exists.
func (s *IssueStore) Create(ctx context.Context, issue timer.Issue) error {
	args := timerArgs(issue.Timer)
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{issue.ID, string(issue.Status), issue.Version}, args...)...)
	if IsConstraintError(err) {
		return fmt.Errorf("create issue %q: %w", issue.ID, timer.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create issue %q: %w", issue.ID, err)
	}
	return nil
}

// SetStatus updates the lifecycle status without touching the timer.
func (s *IssueStore) SetStatus(ctx context.Context, id string, status timer.Status) error {
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE issues SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set status of issue %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set status of issue %q: %w", id, timer.ErrIssueNotFound)
	}
	return nil
}

// UpdateTimer replaces the issue's timer state (nil clears it) iff the
// stored version equals expectedVersion, bumping the version on success.
func (s *IssueStore) UpdateTimer(ctx context.Context, id string, expectedVersion int64, t *timer.Timer) error {
	args := timerArgs(t)
	res, err := s.db.Conn().ExecContext(ctx, `
		UPDATE issues SET
			timer_owner = ?, timer_start = ?, timer_last_activity = ?,
			timer_paused = ?, timer_paused_at = ?, timer_accumulated_pause = ?,
			timer_auto_paused = ?, timer_extra_hours = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		append(args, id, expectedVersion)...)
	if err != nil {
		return fmt.Errorf("update timer of issue %q: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update timer of issue %q: %w", id, err)
	}
	if n == 0 {
		// Distinguish a lost race from a missing issue.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("update timer of issue %q: %w", id, timer.ErrStaleVersion)
	}

	return nil
}

// ListInProgressWithTimer returns all in-progress issues carrying an
// active timer.
func (s *IssueStore) ListInProgressWithTimer(ctx context.Context) ([]timer.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE status = ? AND timer_owner IS NOT NULL
		 ORDER BY id`, string(timer.StatusInProgress))
}

// ListWithTimer returns every issue carrying an active timer.
func (s *IssueStore) ListWithTimer(ctx context.Context) ([]timer.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE timer_owner IS NOT NULL
		 ORDER BY id`)
}

// ListTimersByOwner returns all issues whose active timer is owned by the
// given user.
func (s *IssueStore) ListTimersByOwner(ctx context.Context, userID string) ([]timer.Issue, error) {
	return s.list(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE timer_owner = ?
		 ORDER BY id`, userID)
}

func (s *IssueStore) list(ctx context.Context, query string, args ...any) ([]timer.Issue, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []timer.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	return issues, nil
}

// timerArgs flattens a timer into the ordered timer column values.
// Timestamps are stored as Unix nanoseconds; the accumulated pause is
// stored in nanoseconds so no precision is lost across restarts.
func timerArgs(t *timer.Timer) []any {
	if t == nil {
		return []any{nil, nil, nil, false, nil, 0, false, false}
	}

	var pausedAt any
	if t.PausedAt != nil {
		pausedAt = t.PausedAt.UnixNano()
	}

	return []any{
		t.OwnerUserID,
		t.StartTime.UnixNano(),
		t.LastActivityAt.UnixNano(),
		t.Paused,
		pausedAt,
		int64(t.AccumulatedPause),
		t.AutoPaused,
		t.ExtraHours,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (timer.Issue, error) {
	var (
		issue      timer.Issue
		status     string
		owner      sql.NullString
		start      sql.NullInt64
		activity   sql.NullInt64
		paused     bool
		pausedAt   sql.NullInt64
		accumPause int64
		autoPaused bool
		extraHours bool
	)

	err := row.Scan(
		&issue.ID, &status, &issue.Version,
		&owner, &start, &activity, &paused,
		&pausedAt, &accumPause, &autoPaused, &extraHours,
	)
	if err != nil {
		return timer.Issue{}, err
	}

	issue.Status = timer.Status(status)
	if owner.Valid {
		t := &timer.Timer{
			OwnerUserID:      owner.String,
			StartTime:        time.Unix(0, start.Int64),
			LastActivityAt:   time.Unix(0, activity.Int64),
			Paused:           paused,
			AccumulatedPause: time.Duration(accumPause),
			AutoPaused:       autoPaused,
			ExtraHours:       extraHours,
		}
		if pausedAt.Valid {
			at := time.Unix(0, pausedAt.Int64)
			t.PausedAt = &at
		}
		issue.Timer = t
	}

	return issue, nil
}
