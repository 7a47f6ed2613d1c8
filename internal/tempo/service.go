// Package tempo orchestrates the work-timer engine: the per-issue timer
// state machine, the day-boundary sweep scheduler, bandwidth reporting,
// and self-healing of persisted timer state.
package tempo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintbase/tempo/internal/core/eventbus"
	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/core/workday"
	"github.com/sprintbase/tempo/pkg/randid"
)

// TimerService owns every transition of an issue's active timer. All
// mutations go through the issue store's versioned UpdateTimer, so a
// user action racing the sweep resolves to one winner and one
// timer.ErrStaleVersion; conflicts are surfaced to the caller and never
// retried here, since a blind retry could double-charge pause time.
type TimerService struct {
	issues timer.IssueStore
	ledger timer.LedgerStore
	cal    *workday.Calendar
	clock  timer.Clock
	bus    *eventbus.EventBus
	log    zerolog.Logger
}

// NewTimerService creates a new TimerService.
func NewTimerService(
	issues timer.IssueStore,
	ledger timer.LedgerStore,
	cal *workday.Calendar,
	clock timer.Clock,
	bus *eventbus.EventBus,
	log zerolog.Logger,
) *TimerService {
	return &TimerService{
		issues: issues,
		ledger: ledger,
		cal:    cal,
		clock:  clock,
		bus:    bus,
		log:    log,
	}
}

// Start creates a running timer on the issue, owned by userID.
//
// Preconditions: the issue is in progress, carries no timer, and the
// user drives no timer on any other issue. The one-timer-per-user
// policy is enforced here, not left to cleanup jobs; stopping the old
// timer first is the caller's responsibility.
func (s *TimerService) Start(ctx context.Context, issueID, userID string) (timer.Timer, error) {
	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return timer.Timer{}, err
	}

	if issue.Timer != nil {
		return timer.Timer{}, fmt.Errorf("issue %q already has a timer: %w", issueID, timer.ErrConflict)
	}
	if !issue.InProgress() {
		return timer.Timer{}, fmt.Errorf("issue %q is %s, not %s: %w",
			issueID, issue.Status, timer.StatusInProgress, timer.ErrConflict)
	}

	owned, err := s.issues.ListTimersByOwner(ctx, userID)
	if err != nil {
		return timer.Timer{}, err
	}
	if len(owned) > 0 {
		return timer.Timer{}, fmt.Errorf("user %q already drives a timer on issue %q: %w",
			userID, owned[0].ID, timer.ErrConflict)
	}

	now := s.clock.Now()
	tm := timer.NewTimer(userID, now)
	// Work started outside the normal window accrues as extra hours.
	tm.ExtraHours = !s.cal.InWindow(now)

	if err := s.issues.UpdateTimer(ctx, issueID, issue.Version, tm); err != nil {
		return timer.Timer{}, err
	}

	s.log.Info().Str("issue", issueID).Str("user", userID).Bool("extra_hours", tm.ExtraHours).Msg("timer started")
	s.bus.PublishTimerStarted(eventbus.TimerStartedPayload{IssueID: issueID, Timer: tm})

	return *tm, nil
}

// Pause stops the timer's clock on behalf of its owner. Calling Pause on
// an already-paused timer is a no-op that returns the current state.
func (s *TimerService) Pause(ctx context.Context, issueID, userID string) (timer.Timer, error) {
	issue, tm, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return timer.Timer{}, err
	}
	return s.pause(ctx, issue, tm, false)
}

// AutoPause is the scheduler's privileged pause: gated on issue status
// rather than ownership. Fails with timer.ErrConflict if the issue has
// left in_progress since the sweep selected it.
func (s *TimerService) AutoPause(ctx context.Context, issueID string) (timer.Timer, error) {
	issue, tm, err := s.getWithTimer(ctx, issueID)
	if err != nil {
		return timer.Timer{}, err
	}
	if !issue.InProgress() {
		return timer.Timer{}, fmt.Errorf("issue %q left %s: %w",
			issueID, timer.StatusInProgress, timer.ErrConflict)
	}
	return s.pause(ctx, issue, tm, true)
}

// ForcePause is the reconciler's pause for timers found on issues that
// are no longer in progress. Non-auto, so the start-of-day sweep will
// not resume it; it awaits manual resolution.
func (s *TimerService) ForcePause(ctx context.Context, issueID string) (timer.Timer, error) {
	issue, tm, err := s.getWithTimer(ctx, issueID)
	if err != nil {
		return timer.Timer{}, err
	}
	return s.pause(ctx, issue, tm, false)
}

func (s *TimerService) pause(ctx context.Context, issue timer.Issue, tm *timer.Timer, auto bool) (timer.Timer, error) {
	now := s.clock.Now()
	if !tm.Pause(now, auto) {
		return *tm, nil // already paused
	}

	if err := s.issues.UpdateTimer(ctx, issue.ID, issue.Version, tm); err != nil {
		return timer.Timer{}, err
	}

	s.log.Info().Str("issue", issue.ID).Bool("auto", auto).Msg("timer paused")
	s.bus.PublishTimerPaused(eventbus.TimerPausedPayload{IssueID: issue.ID, Timer: tm, Auto: auto})

	return *tm, nil
}

// Resume restarts the timer's clock on behalf of its owner, folding the
// closed pause interval into the accumulated pause. No-op if running.
func (s *TimerService) Resume(ctx context.Context, issueID, userID string) (timer.Timer, error) {
	issue, tm, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return timer.Timer{}, err
	}
	return s.resume(ctx, issue, tm)
}

// AutoResume is the scheduler's privileged resume. It only applies to
// timers the end-of-day sweep paused: a pause the user chose persists
// until the user undoes it. The skipped return reports a no-op.
func (s *TimerService) AutoResume(ctx context.Context, issueID string) (tm timer.Timer, skipped bool, err error) {
	issue, t, err := s.getWithTimer(ctx, issueID)
	if err != nil {
		return timer.Timer{}, false, err
	}
	if !issue.InProgress() {
		return timer.Timer{}, false, fmt.Errorf("issue %q left %s: %w",
			issueID, timer.StatusInProgress, timer.ErrConflict)
	}
	if !t.Paused || !t.AutoPaused {
		return *t, true, nil
	}

	tm, err = s.resume(ctx, issue, t)
	return tm, false, err
}

func (s *TimerService) resume(ctx context.Context, issue timer.Issue, tm *timer.Timer) (timer.Timer, error) {
	now := s.clock.Now()
	if !tm.Resume(now) {
		return *tm, nil // already running
	}

	if err := s.issues.UpdateTimer(ctx, issue.ID, issue.Version, tm); err != nil {
		return timer.Timer{}, err
	}

	s.log.Info().
		Str("issue", issue.ID).
		Dur("accumulated_pause", tm.AccumulatedPause).
		Msg("timer resumed")
	s.bus.PublishTimerResumed(eventbus.TimerResumedPayload{IssueID: issue.ID, Timer: tm})

	return *tm, nil
}

// Complete closes the timer into a ledger entry and clears it from the
// issue. Allowed from both running and paused states; while paused the
// duration is taken as of the pause, so the pause interval itself is
// never billed.
func (s *TimerService) Complete(ctx context.Context, issueID, userID string) (timer.Entry, error) {
	issue, tm, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return timer.Entry{}, err
	}
	return s.complete(ctx, issue, tm)
}

// CompleteForIssue closes the timer regardless of who owns it. Used when
// the issue itself leaves in_progress.
func (s *TimerService) CompleteForIssue(ctx context.Context, issueID string) (timer.Entry, error) {
	issue, tm, err := s.getWithTimer(ctx, issueID)
	if err != nil {
		return timer.Entry{}, err
	}
	return s.complete(ctx, issue, tm)
}

func (s *TimerService) complete(ctx context.Context, issue timer.Issue, tm *timer.Timer) (timer.Entry, error) {
	now := s.clock.Now()

	end := now
	if tm.Paused && tm.PausedAt != nil {
		end = *tm.PausedAt
	}
	duration := end.Sub(tm.StartTime) - tm.AccumulatedPause
	if duration < 0 {
		// Corrupted bookkeeping. Reject rather than clamp so the bad
		// state is investigated instead of silently written down.
		return timer.Entry{}, fmt.Errorf("issue %q computed negative duration %s: %w",
			issue.ID, duration, timer.ErrValidation)
	}
	// The ledger stores whole seconds. Truncate up front so the entry
	// handed back equals the one a later read returns.
	duration = duration.Truncate(time.Second)

	entry := timer.Entry{
		ID:         randid.Generate(12),
		UserID:     tm.OwnerUserID,
		IssueID:    issue.ID,
		StartTime:  tm.StartTime,
		Duration:   duration,
		ExtraHours: tm.ExtraHours,
		CreatedAt:  now,
	}

	// Clear the timer first: the CAS winner is the only writer allowed to
	// append, which keeps a racing Complete from double-charging.
	if err := s.issues.UpdateTimer(ctx, issue.ID, issue.Version, nil); err != nil {
		return timer.Entry{}, err
	}

	if err := s.ledger.Append(ctx, entry); err != nil {
		// Best effort: put the timer back, paused at completion time, so
		// the worked time is not lost. The reconciler surfaces it.
		restored := *tm
		restored.Pause(now, false)
		if restoreErr := s.issues.UpdateTimer(ctx, issue.ID, issue.Version+1, &restored); restoreErr != nil {
			s.log.Error().Err(restoreErr).Str("issue", issue.ID).Msg("failed to restore timer after append failure")
		}
		return timer.Entry{}, fmt.Errorf("append ledger entry: %w", err)
	}

	s.log.Info().
		Str("issue", issue.ID).
		Str("user", entry.UserID).
		Dur("duration", entry.Duration).
		Bool("extra_hours", entry.ExtraHours).
		Msg("timer completed")
	s.bus.PublishTimerCompleted(eventbus.TimerCompletedPayload{IssueID: issue.ID, Entry: entry})

	return entry, nil
}

// SetExtraHours toggles the extra-hours flag on the active timer without
// altering duration accounting.
func (s *TimerService) SetExtraHours(ctx context.Context, issueID, userID string, on bool) (timer.Timer, error) {
	issue, tm, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return timer.Timer{}, err
	}
	if tm.ExtraHours == on {
		return *tm, nil
	}

	tm.ExtraHours = on
	tm.Touch(s.clock.Now())
	if err := s.issues.UpdateTimer(ctx, issueID, issue.Version, tm); err != nil {
		return timer.Timer{}, err
	}

	s.log.Info().Str("issue", issueID).Bool("extra_hours", on).Msg("extra hours toggled")
	return *tm, nil
}

// Touch records a heartbeat on the active timer.
func (s *TimerService) Touch(ctx context.Context, issueID, userID string) error {
	issue, tm, err := s.getOwned(ctx, issueID, userID)
	if err != nil {
		return err
	}

	tm.Touch(s.clock.Now())
	return s.issues.UpdateTimer(ctx, issueID, issue.Version, tm)
}

// Get returns the active timer on the issue, or timer.ErrNotFound.
func (s *TimerService) Get(ctx context.Context, issueID string) (timer.Timer, error) {
	_, tm, err := s.getWithTimer(ctx, issueID)
	if err != nil {
		return timer.Timer{}, err
	}
	return *tm, nil
}

// MoveIssue transitions the issue's lifecycle status, driving the timer
// with it: leaving in_progress closes an active timer into the ledger,
// and entering in_progress starts a timer for actor when given.
func (s *TimerService) MoveIssue(ctx context.Context, issueID string, status timer.Status, actor string) error {
	if !status.IsValid() {
		return fmt.Errorf("unknown status %q: %w", status, timer.ErrValidation)
	}

	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return err
	}
	if issue.Status == status {
		return nil
	}

	if issue.Status == timer.StatusInProgress && issue.Timer != nil {
		if _, err := s.complete(ctx, issue, issue.Timer); err != nil {
			return fmt.Errorf("close timer on leaving %s: %w", timer.StatusInProgress, err)
		}
	}

	if err := s.issues.SetStatus(ctx, issueID, status); err != nil {
		return err
	}

	if status == timer.StatusInProgress && actor != "" {
		if _, err := s.Start(ctx, issueID, actor); err != nil {
			return fmt.Errorf("start timer on entering %s: %w", timer.StatusInProgress, err)
		}
	}

	return nil
}

func (s *TimerService) getWithTimer(ctx context.Context, issueID string) (timer.Issue, *timer.Timer, error) {
	issue, err := s.issues.Get(ctx, issueID)
	if err != nil {
		return timer.Issue{}, nil, err
	}
	if issue.Timer == nil {
		return timer.Issue{}, nil, fmt.Errorf("issue %q: %w", issueID, timer.ErrNotFound)
	}
	return issue, issue.Timer, nil
}

func (s *TimerService) getOwned(ctx context.Context, issueID, userID string) (timer.Issue, *timer.Timer, error) {
	issue, tm, err := s.getWithTimer(ctx, issueID)
	if err != nil {
		return timer.Issue{}, nil, err
	}
	if tm.OwnerUserID != userID {
		return timer.Issue{}, nil, fmt.Errorf("timer on issue %q is owned by %q: %w",
			issueID, tm.OwnerUserID, timer.ErrForbidden)
	}
	return issue, tm, nil
}

// IsConflict reports whether the error is any of the conflict family:
// double start, policy violation, or a lost optimistic race.
func IsConflict(err error) bool {
	return errors.Is(err, timer.ErrConflict) || errors.Is(err, timer.ErrStaleVersion)
}
