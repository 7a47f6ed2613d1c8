package timer

import "time"

// Entry is a closed, immutable record of worked time, written when a
// timer completes. Duration is already net of paused time and is kept
// in whole seconds, matching the ledger's granularity.
type Entry struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	IssueID    string        `json:"issue_id"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
	ExtraHours bool          `json:"extra_hours"`
	CreatedAt  time.Time     `json:"created_at"`
}
