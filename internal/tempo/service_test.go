package tempo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintbase/tempo/internal/core/eventbus"
	"github.com/sprintbase/tempo/internal/core/timer"
)

func TestTimerService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("starts a running timer on an in-progress issue", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		tm, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		assert.Equal(t, "alice", tm.OwnerUserID)
		assert.False(t, tm.Paused)
		assert.False(t, tm.ExtraHours)
		assert.True(t, tm.StartTime.Equal(monday))

		fx.bus.AssertPublished(t, eventbus.EventTimerStarted)
	})

	t.Run("rejects a second timer on the same issue", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		_, err = fx.svc.Start(ctx, "PROJ-1", "bob")
		require.ErrorIs(t, err, timer.ErrConflict)
	})

	t.Run("rejects issues outside in_progress", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusOpen)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.ErrorIs(t, err, timer.ErrConflict)
	})

	t.Run("enforces one timer per user across issues", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)
		fx.createIssue(t, "PROJ-2", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		_, err = fx.svc.Start(ctx, "PROJ-2", "alice")
		require.ErrorIs(t, err, timer.ErrConflict)
		assert.ErrorContains(t, err, "PROJ-1")

		// A different user is free to start on the second issue.
		_, err = fx.svc.Start(ctx, "PROJ-2", "bob")
		require.NoError(t, err)
	})

	t.Run("missing issue", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Start(ctx, "nope", "alice")
		require.ErrorIs(t, err, timer.ErrIssueNotFound)
	})

	t.Run("flags extra hours when started outside the window", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)
		fx.clock.Set(monday.Add(11 * time.Hour)) // 20:00

		tm, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		assert.True(t, tm.ExtraHours)
	})
}

func TestTimerService_PauseResume(t *testing.T) {
	ctx := context.Background()

	t.Run("pause freezes and resume folds the gap", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(2 * time.Hour)
		tm, err := fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		assert.True(t, tm.Paused)
		assert.False(t, tm.AutoPaused)

		fx.clock.Advance(30 * time.Minute)
		tm, err = fx.svc.Resume(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		assert.False(t, tm.Paused)
		assert.Equal(t, 30*time.Minute, tm.AccumulatedPause)

		fx.bus.AssertPublished(t, eventbus.EventTimerPaused)
		fx.bus.AssertPublished(t, eventbus.EventTimerResumed)
	})

	t.Run("double pause is a no-op", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(time.Hour)
		first, err := fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(time.Hour)
		second, err := fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		assert.True(t, second.PausedAt.Equal(*first.PausedAt), "second pause must not move the pause point")
		assert.Equal(t, first.AccumulatedPause, second.AccumulatedPause)
	})

	t.Run("sweep pause racing a user pause lands on one pause", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(time.Hour)
		userView, err := fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(time.Minute)
		sweepView, err := fx.svc.AutoPause(ctx, "PROJ-1")
		require.NoError(t, err)

		assert.True(t, sweepView.PausedAt.Equal(*userView.PausedAt))
		assert.False(t, sweepView.AutoPaused, "losing auto-pause must not relabel a manual pause")
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		_, err = fx.svc.Pause(ctx, "PROJ-1", "mallory")
		require.ErrorIs(t, err, timer.ErrForbidden)
		_, err = fx.svc.Resume(ctx, "PROJ-1", "mallory")
		require.ErrorIs(t, err, timer.ErrForbidden)
	})

	t.Run("resume while running is a no-op", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		tm, err := fx.svc.Resume(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		assert.False(t, tm.Paused)
		assert.Zero(t, tm.AccumulatedPause)
	})
}

func TestTimerService_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("full day with two breaks bills seven and a half hours", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		// 09:00 start, 12:00-12:30 lunch, 15:00-15:30 break, 17:30 done.
		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Set(monday.Add(3 * time.Hour))
		_, err = fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		fx.clock.Set(monday.Add(3*time.Hour + 30*time.Minute))
		_, err = fx.svc.Resume(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Set(monday.Add(6 * time.Hour))
		_, err = fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		fx.clock.Set(monday.Add(6*time.Hour + 30*time.Minute))
		_, err = fx.svc.Resume(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Set(monday.Add(8*time.Hour + 30*time.Minute))
		entry, err := fx.svc.Complete(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		assert.Equal(t, 7*time.Hour+30*time.Minute, entry.Duration)
		assert.Equal(t, "alice", entry.UserID)
		assert.Equal(t, "PROJ-1", entry.IssueID)
		assert.False(t, entry.ExtraHours)

		// Timer is gone and the entry is in the ledger.
		_, err = fx.svc.Get(ctx, "PROJ-1")
		require.ErrorIs(t, err, timer.ErrNotFound)

		logged, err := fx.ledger.ListByIssue(ctx, "PROJ-1")
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, entry.ID, logged[0].ID)

		fx.bus.AssertPublished(t, eventbus.EventTimerCompleted)
	})

	t.Run("returned entry matches the persisted one", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		// Complete lands mid-second; the odd milliseconds never reach
		// the ledger, so the entry must not carry them either.
		fx.clock.Set(monday.Add(3*time.Hour + 250*time.Millisecond))
		entry, err := fx.svc.Complete(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		assert.Equal(t, 3*time.Hour, entry.Duration)

		logged, err := fx.ledger.ListByIssue(ctx, "PROJ-1")
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, entry.Duration, logged[0].Duration)
	})

	t.Run("completing while paused bills up to the pause", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(4 * time.Hour)
		_, err = fx.svc.Pause(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(3 * time.Hour) // forgotten until evening
		entry, err := fx.svc.Complete(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		assert.Equal(t, 4*time.Hour, entry.Duration)
	})

	t.Run("user can free themselves by completing", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)
		fx.createIssue(t, "PROJ-2", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)
		fx.clock.Advance(time.Hour)
		_, err = fx.svc.Complete(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		_, err = fx.svc.Start(ctx, "PROJ-2", "alice")
		require.NoError(t, err)
	})

	t.Run("corrupted accounting is rejected, not clamped", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		bad := timer.NewTimer("alice", monday)
		bad.AccumulatedPause = 48 * time.Hour
		require.NoError(t, fx.issues.UpdateTimer(ctx, "PROJ-1", 0, bad))

		fx.clock.Set(monday.Add(time.Hour))
		_, err := fx.svc.Complete(ctx, "PROJ-1", "alice")
		require.ErrorIs(t, err, timer.ErrValidation)

		// Nothing was written and the timer is still there.
		logged, err := fx.ledger.ListByIssue(ctx, "PROJ-1")
		require.NoError(t, err)
		assert.Empty(t, logged)
		_, err = fx.svc.Get(ctx, "PROJ-1")
		require.NoError(t, err)
	})

	t.Run("non-owner cannot complete", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		_, err = fx.svc.Complete(ctx, "PROJ-1", "bob")
		require.ErrorIs(t, err, timer.ErrForbidden)
	})
}

func TestTimerService_SetExtraHours(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

	_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
	require.NoError(t, err)

	fx.clock.Advance(time.Hour)
	tm, err := fx.svc.SetExtraHours(ctx, "PROJ-1", "alice", true)
	require.NoError(t, err)
	assert.True(t, tm.ExtraHours)
	assert.Equal(t, time.Hour, tm.Elapsed(fx.clock.Now()), "flag must not change accounting")

	// Flag survives completion into the entry.
	fx.clock.Advance(time.Hour)
	entry, err := fx.svc.Complete(ctx, "PROJ-1", "alice")
	require.NoError(t, err)
	assert.True(t, entry.ExtraHours)
	assert.Equal(t, 2*time.Hour, entry.Duration)
}

func TestTimerService_Touch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

	_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
	require.NoError(t, err)

	fx.clock.Advance(45 * time.Minute)
	require.NoError(t, fx.svc.Touch(ctx, "PROJ-1", "alice"))

	tm, err := fx.svc.Get(ctx, "PROJ-1")
	require.NoError(t, err)
	assert.True(t, tm.LastActivityAt.Equal(fx.clock.Now()))
	assert.True(t, tm.StartTime.Equal(monday), "heartbeat must not move the start")
}

func TestTimerService_MoveIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("entering in_progress starts a timer for the actor", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusOpen)

		require.NoError(t, fx.svc.MoveIssue(ctx, "PROJ-1", timer.StatusInProgress, "alice"))

		tm, err := fx.svc.Get(ctx, "PROJ-1")
		require.NoError(t, err)
		assert.Equal(t, "alice", tm.OwnerUserID)
	})

	t.Run("entering in_progress without an actor starts nothing", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusOpen)

		require.NoError(t, fx.svc.MoveIssue(ctx, "PROJ-1", timer.StatusInProgress, ""))

		_, err := fx.svc.Get(ctx, "PROJ-1")
		require.ErrorIs(t, err, timer.ErrNotFound)
	})

	t.Run("leaving in_progress closes the timer into the ledger", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		fx.clock.Advance(3 * time.Hour)
		require.NoError(t, fx.svc.MoveIssue(ctx, "PROJ-1", timer.StatusReview, "alice"))

		issue, err := fx.issues.Get(ctx, "PROJ-1")
		require.NoError(t, err)
		assert.Equal(t, timer.StatusReview, issue.Status)
		assert.Nil(t, issue.Timer)

		logged, err := fx.ledger.ListByIssue(ctx, "PROJ-1")
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, 3*time.Hour, logged[0].Duration)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusOpen)

		err := fx.svc.MoveIssue(ctx, "PROJ-1", "archived", "alice")
		require.ErrorIs(t, err, timer.ErrValidation)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		fx := newFixture(t)
		fx.createIssue(t, "PROJ-1", timer.StatusInProgress)

		_, err := fx.svc.Start(ctx, "PROJ-1", "alice")
		require.NoError(t, err)

		require.NoError(t, fx.svc.MoveIssue(ctx, "PROJ-1", timer.StatusInProgress, "alice"))

		_, err = fx.svc.Get(ctx, "PROJ-1")
		require.NoError(t, err, "timer must survive a no-op move")
	})
}
