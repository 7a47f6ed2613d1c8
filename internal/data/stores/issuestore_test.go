package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/data/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestIssueStore_CreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewIssueStore(newTestDB(t))

	t.Run("round trip without timer", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusOpen}))

		got, err := store.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assert.Equal(t, timer.StatusOpen, got.Status)
		assert.Nil(t, got.Timer)
		assert.Zero(t, got.Version)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		err := store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusOpen})
		assert.ErrorIs(t, err, timer.ErrConflict)
	})

	t.Run("missing issue", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, timer.ErrIssueNotFound)
	})
}

func TestIssueStore_SetStatus(t *testing.T) {
	ctx := context.Background()
	store := NewIssueStore(newTestDB(t))

	require.NoError(t, store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusOpen}))

	require.NoError(t, store.SetStatus(ctx, "ISS-1", timer.StatusInProgress))

	got, err := store.Get(ctx, "ISS-1")
	require.NoError(t, err)
	assert.Equal(t, timer.StatusInProgress, got.Status)

	assert.ErrorIs(t, store.SetStatus(ctx, "nope", timer.StatusDone), timer.ErrIssueNotFound)
}

func TestIssueStore_UpdateTimer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("set and read back", func(t *testing.T) {
		store := NewIssueStore(newTestDB(t))
		require.NoError(t, store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusInProgress}))

		tm := timer.NewTimer("ana", now)
		tm.Pause(now.Add(time.Hour), true)
		require.NoError(t, store.UpdateTimer(ctx, "ISS-1", 0, tm))

		got, err := store.Get(ctx, "ISS-1")
		require.NoError(t, err)
		require.NotNil(t, got.Timer)
		assert.EqualValues(t, 1, got.Version)
		assert.Equal(t, "ana", got.Timer.OwnerUserID)
		assert.True(t, got.Timer.Paused)
		assert.True(t, got.Timer.AutoPaused)
		require.NotNil(t, got.Timer.PausedAt)
		assert.True(t, got.Timer.PausedAt.Equal(now.Add(time.Hour)))
		assert.True(t, got.Timer.StartTime.Equal(now))
	})

	t.Run("stale version loses", func(t *testing.T) {
		store := NewIssueStore(newTestDB(t))
		require.NoError(t, store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusInProgress}))

		require.NoError(t, store.UpdateTimer(ctx, "ISS-1", 0, timer.NewTimer("ana", now)))

		err := store.UpdateTimer(ctx, "ISS-1", 0, timer.NewTimer("bob", now))
		assert.ErrorIs(t, err, timer.ErrStaleVersion)

		// The winner's write is intact.
		got, err := store.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assert.Equal(t, "ana", got.Timer.OwnerUserID)
	})

	t.Run("nil clears the timer", func(t *testing.T) {
		store := NewIssueStore(newTestDB(t))
		require.NoError(t, store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusInProgress}))
		require.NoError(t, store.UpdateTimer(ctx, "ISS-1", 0, timer.NewTimer("ana", now)))

		require.NoError(t, store.UpdateTimer(ctx, "ISS-1", 1, nil))

		got, err := store.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assert.Nil(t, got.Timer)
		assert.EqualValues(t, 2, got.Version)
	})

	t.Run("missing issue", func(t *testing.T) {
		store := NewIssueStore(newTestDB(t))
		err := store.UpdateTimer(ctx, "nope", 0, timer.NewTimer("ana", now))
		assert.ErrorIs(t, err, timer.ErrIssueNotFound)
	})

	t.Run("accumulated pause survives the round trip exactly", func(t *testing.T) {
		store := NewIssueStore(newTestDB(t))
		require.NoError(t, store.Create(ctx, timer.Issue{ID: "ISS-1", Status: timer.StatusInProgress}))

		tm := timer.NewTimer("ana", now)
		tm.Pause(now.Add(time.Hour), false)
		tm.Resume(now.Add(time.Hour + 17*time.Minute + 3*time.Second + 250*time.Millisecond))
		require.NoError(t, store.UpdateTimer(ctx, "ISS-1", 0, tm))

		got, err := store.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assert.Equal(t, tm.AccumulatedPause, got.Timer.AccumulatedPause)
	})
}

func TestIssueStore_Listing(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := NewIssueStore(newTestDB(t))

	seed := []struct {
		id     string
		status timer.Status
		owner  string
	}{
		{"ISS-1", timer.StatusInProgress, "ana"},
		{"ISS-2", timer.StatusInProgress, ""},
		{"ISS-3", timer.StatusDone, "bob"},
		{"ISS-4", timer.StatusInProgress, "bob"},
	}
	for _, s := range seed {
		issue := timer.Issue{ID: s.id, Status: s.status}
		if s.owner != "" {
			issue.Timer = timer.NewTimer(s.owner, now)
		}
		require.NoError(t, store.Create(ctx, issue))
	}

	t.Run("in progress with timer", func(t *testing.T) {
		issues, err := store.ListInProgressWithTimer(ctx)
		require.NoError(t, err)
		require.Len(t, issues, 2)
		assert.Equal(t, "ISS-1", issues[0].ID)
		assert.Equal(t, "ISS-4", issues[1].ID)
	})

	t.Run("any status with timer", func(t *testing.T) {
		issues, err := store.ListWithTimer(ctx)
		require.NoError(t, err)
		assert.Len(t, issues, 3)
	})

	t.Run("by owner", func(t *testing.T) {
		issues, err := store.ListTimersByOwner(ctx, "bob")
		require.NoError(t, err)
		require.Len(t, issues, 2)
		assert.Equal(t, "ISS-3", issues[0].ID)
		assert.Equal(t, "ISS-4", issues[1].ID)
	})

	t.Run("owner with no timers", func(t *testing.T) {
		issues, err := store.ListTimersByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}
