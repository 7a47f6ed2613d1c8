// Package timer defines the work-timer domain types and store contracts.
package timer

import (
	"time"
)

// Timer is the single mutable work timer attached to an in-progress issue.
//
// Terminology:
//   - Running: the timer is accruing worked time.
//   - Paused: the clock is stopped; PausedAt marks when the pause began.
//   - Auto-paused: the pause was produced by the end-of-day sweep rather
//     than the owner. Only auto-paused timers are eligible for the
//     start-of-day resume sweep.
//
// AccumulatedPause grows only when a pause interval closes (on resume or
// on completion while paused), never while the pause is still open.
type Timer struct {
	OwnerUserID      string        `json:"owner_user_id"`
	StartTime        time.Time     `json:"start_time"`
	LastActivityAt   time.Time     `json:"last_activity_at"`
	Paused           bool          `json:"paused"`
	PausedAt         *time.Time    `json:"paused_at,omitempty"`
	AccumulatedPause time.Duration `json:"accumulated_pause"`
	AutoPaused       bool          `json:"auto_paused"`
	ExtraHours       bool          `json:"extra_hours"`
}

// NewTimer creates a running timer owned by the given user.
func NewTimer(userID string, now time.Time) *Timer {
	return &Timer{
		OwnerUserID:    userID,
		StartTime:      now,
		LastActivityAt: now,
	}
}

// Pause stops the clock. Returns false if the timer is already paused,
// in which case nothing changes; both the owner and the end-of-day sweep
// may race to pause the same timer, and the loser must observe a no-op.
func (t *Timer) Pause(now time.Time, auto bool) bool {
	if t.Paused {
		return false
	}
	at := now
	t.Paused = true
	t.PausedAt = &at
	t.AutoPaused = auto
	t.LastActivityAt = now
	return true
}

// Resume restarts the clock, folding the closed pause interval into
// AccumulatedPause. Returns false if the timer is not paused.
func (t *Timer) Resume(now time.Time) bool {
	if !t.Paused {
		return false
	}
	if t.PausedAt != nil && now.After(*t.PausedAt) {
		t.AccumulatedPause += now.Sub(*t.PausedAt)
	}
	t.Paused = false
	t.PausedAt = nil
	t.AutoPaused = false
	t.LastActivityAt = now
	return true
}

// Touch records activity on the timer without changing its state.
func (t *Timer) Touch(now time.Time) {
	t.LastActivityAt = now
}

// Elapsed returns the effective worked duration as of now: wall-clock
// span minus all closed pause time. While paused the duration is frozen
// as of PausedAt, so re-reading a paused timer never accrues time.
// Never negative.
func (t *Timer) Elapsed(now time.Time) time.Duration {
	end := now
	if t.Paused && t.PausedAt != nil {
		end = *t.PausedAt
	}
	d := end.Sub(t.StartTime) - t.AccumulatedPause
	if d < 0 {
		return 0
	}
	return d
}

// Stale reports whether the timer has seen no activity for longer than
// the given threshold.
func (t *Timer) Stale(now time.Time, threshold time.Duration) bool {
	return threshold > 0 && now.Sub(t.LastActivityAt) > threshold
}
