package timer

// Status is the issue lifecycle status. Only the timer-relevant slice of
// the issue model lives here; the surrounding product owns everything else.
type Status string

// Issue lifecycle statuses.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// IsValid checks if the status is a known lifecycle status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusReview, StatusDone:
		return true
	default:
		return false
	}
}

// Issue is the timer-relevant projection of an issue: its status, an
// optimistic-concurrency version, and at most one active timer.
//
// Version guards every timer mutation: UpdateTimer succeeds only when the
// caller presents the version it read, so concurrent transitions on the
// same issue resolve to one winner and one conflict instead of corrupted
// pause accounting.
type Issue struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Version int64  `json:"version"`
	Timer   *Timer `json:"timer,omitempty"`
}

// InProgress reports whether the issue is in the in-progress status.
func (i *Issue) InProgress() bool {
	return i.Status == StatusInProgress
}
