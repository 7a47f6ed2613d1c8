package timer

import "errors"

// Sentinel errors for timer operations. Callers match with errors.Is;
// stores and services wrap these with context via fmt.Errorf("%w").
var (
	// ErrNotFound means the referenced issue has no active timer.
	ErrNotFound = errors.New("no active timer")

	// ErrIssueNotFound means the referenced issue does not exist.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrConflict covers double-start, the one-timer-per-user policy,
	// and any state precondition that does not hold.
	ErrConflict = errors.New("timer conflict")

	// ErrStaleVersion means an optimistic update lost a concurrent race.
	// The caller re-reads and retries; the engine never retries for it.
	ErrStaleVersion = errors.New("stale issue version")

	// ErrForbidden means a user who is not the timer owner attempted a
	// user-gated operation.
	ErrForbidden = errors.New("not the timer owner")

	// ErrValidation means a computed or supplied value is malformed,
	// e.g. a negative duration. Such values are rejected, never persisted.
	ErrValidation = errors.New("validation failed")
)
