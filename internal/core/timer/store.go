package timer

import (
	"context"
	"time"
)

// IssueStore persists the timer-relevant slice of issues.
type IssueStore interface {
	// Get returns an issue by ID. Returns ErrIssueNotFound if missing.
	Get(ctx context.Context, id string) (Issue, error)

	// Create inserts a new issue. Returns ErrConflict if the ID exists.
	Create(ctx context.Context, issue Issue) error

	// SetStatus updates the lifecycle status without touching the timer.
	SetStatus(ctx context.Context, id string, status Status) error

	// UpdateTimer replaces the issue's timer state (nil clears it) iff the
	// stored version equals expectedVersion, bumping the version on
	// success. Returns ErrStaleVersion when a concurrent writer won.
	UpdateTimer(ctx context.Context, id string, expectedVersion int64, t *Timer) error

	// ListInProgressWithTimer returns all in-progress issues carrying an
	// active timer. Sweeps iterate this set.
	ListInProgressWithTimer(ctx context.Context) ([]Issue, error)

	// ListWithTimer returns every issue carrying an active timer,
	// regardless of status. The reconciler iterates this set.
	ListWithTimer(ctx context.Context) ([]Issue, error)

	// ListTimersByOwner returns all issues whose active timer is owned by
	// the given user. Used to enforce the one-timer-per-user policy.
	ListTimersByOwner(ctx context.Context, userID string) ([]Issue, error)
}

// LedgerStore persists closed time entries. Append-only: entries are
// never updated or deleted by the engine.
type LedgerStore interface {
	// Append writes a closed entry. Returns ErrValidation for negative
	// durations.
	Append(ctx context.Context, entry Entry) error

	// Query returns entries for a user whose StartTime falls in
	// [from, to), ordered by StartTime.
	Query(ctx context.Context, userID string, from, to time.Time) ([]Entry, error)

	// ListByIssue returns all entries logged against an issue, ordered by
	// StartTime.
	ListByIssue(ctx context.Context, issueID string) ([]Entry, error)
}

// Clock abstracts wall-clock reads so transitions and sweeps are
// testable with a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
