package eventbus

import (
	"time"

	"github.com/sprintbase/tempo/internal/core/timer"
)

// TimerStartedPayload is emitted when a timer starts on an issue.
type TimerStartedPayload struct {
	IssueID string
	Timer   *timer.Timer
}

// TimerPausedPayload is emitted when a timer is paused. Auto marks a
// scheduler-driven pause.
type TimerPausedPayload struct {
	IssueID string
	Timer   *timer.Timer
	Auto    bool
}

// TimerResumedPayload is emitted when a timer resumes.
type TimerResumedPayload struct {
	IssueID string
	Timer   *timer.Timer
}

// TimerCompletedPayload is emitted when a timer closes into a ledger entry.
type TimerCompletedPayload struct {
	IssueID string
	Entry   timer.Entry
}

// SweepCompletedPayload is emitted after a daily sweep finishes.
type SweepCompletedPayload struct {
	Kind    string
	Day     string
	Applied int
	Skipped int
	Failed  int
}

// ReconcileCorrectedPayload is emitted for every corrective fix the
// reconciler applies to persisted timer state.
type ReconcileCorrectedPayload struct {
	IssueID string
	Fix     string
	At      time.Time
}

// ReconcileFlaggedPayload is emitted for findings the reconciler
// reports but does not repair, so operators can act on them.
type ReconcileFlaggedPayload struct {
	IssueID string
	Finding string
	Detail  string
	At      time.Time
}
