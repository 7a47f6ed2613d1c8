package tempo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintbase/tempo/internal/core/config"
	"github.com/sprintbase/tempo/internal/core/eventbus"
	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/core/workday"
)

// SweepKind identifies one of the two daily boundary sweeps.
type SweepKind string

// Sweep kinds. The kind is part of the idempotency key, so the values
// are stable and stored.
const (
	SweepEndOfDay   SweepKind = "end_of_day"
	SweepStartOfDay SweepKind = "start_of_day"
)

// SweepMarkerStore records which sweeps already ran on which days, so a
// restarted process does not re-apply a boundary twice.
type SweepMarkerStore interface {
	Completed(ctx context.Context, kind, day string) (bool, error)
	MarkCompleted(ctx context.Context, kind, day string, at time.Time) error
}

// IssueError pairs an issue with the error its sweep step produced.
type IssueError struct {
	IssueID string
	Err     error
}

// SweepResult is the outcome of one sweep run.
type SweepResult struct {
	Kind       SweepKind
	Day        string // YYYY-MM-DD in the calendar's zone
	Applied    int    // timers actually transitioned
	Skipped    int    // no-ops, lost races, issues that moved on
	Errors     []IssueError
	AlreadyRan bool // idempotency marker was set, nothing done
	Suppressed bool // not due (non-work day, or the day is already over), nothing done
}

// Scheduler fires the end-of-day and start-of-day sweeps. It polls the
// clock on a coarse tick instead of arming exact timers, which keeps it
// correct across suspend and clock jumps: a missed boundary fires on
// the next tick, and the day marker stops it from firing twice.
type Scheduler struct {
	svc      *TimerService
	issues   timer.IssueStore
	markers  SweepMarkerStore
	cal      *workday.Calendar
	clock    timer.Clock
	bus      *eventbus.EventBus
	log      zerolog.Logger
	interval time.Duration
	workers  int
	eod      workday.ClockTime
	sod      workday.ClockTime
}

// NewScheduler creates a Scheduler. The sweep config must be validated;
// unparseable sweep times here are a programming error.
func NewScheduler(
	svc *TimerService,
	issues timer.IssueStore,
	markers SweepMarkerStore,
	cal *workday.Calendar,
	clock timer.Clock,
	bus *eventbus.EventBus,
	cfg config.SweepConfig,
	log zerolog.Logger,
) (*Scheduler, error) {
	eod, err := workday.ParseClockTime(cfg.EndOfDay)
	if err != nil {
		return nil, err
	}
	sod, err := workday.ParseClockTime(cfg.StartOfDay)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	return &Scheduler{
		svc:      svc,
		issues:   issues,
		markers:  markers,
		cal:      cal,
		clock:    clock,
		bus:      bus,
		log:      log,
		interval: cfg.Interval,
		workers:  workers,
		eod:      eod,
		sod:      sod,
	}, nil
}

// Run ticks until ctx is cancelled, firing each due sweep at most once
// per day. Intended to run as a background goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().
		Str("end_of_day", s.eod.String()).
		Str("start_of_day", s.sod.String()).
		Dur("interval", s.interval).
		Msg("scheduler running")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now()
	local := now.In(s.cal.Loc())

	// The resume sweep is only due between its own time and the
	// end-of-day time. A late tick past the evening boundary must not
	// retry the morning resume, or it would undo the pause it races.
	if !now.Before(s.sod.On(local)) && now.Before(s.eod.On(local)) {
		if _, err := s.RunStartOfDay(ctx); err != nil {
			s.log.Error().Err(err).Msg("start-of-day sweep failed")
		}
	}
	if !now.Before(s.eod.On(local)) {
		if _, err := s.RunEndOfDay(ctx); err != nil {
			s.log.Error().Err(err).Msg("end-of-day sweep failed")
		}
	}
}

// RunEndOfDay pauses every running timer on an in-progress issue,
// marking the pauses as automatic so the morning sweep can undo them.
// Idempotent per day: the second run of a day reports AlreadyRan.
func (s *Scheduler) RunEndOfDay(ctx context.Context) (SweepResult, error) {
	return s.sweep(ctx, SweepEndOfDay, func(ctx context.Context, issue timer.Issue) (applied bool, err error) {
		if issue.Timer.Paused {
			return false, nil
		}
		if _, err := s.svc.AutoPause(ctx, issue.ID); err != nil {
			return false, err
		}
		return true, nil
	})
}

// RunStartOfDay resumes every timer the end-of-day sweep paused. Pauses
// the user chose stay paused. Idempotent per day, and it refuses to run
// once the same day's end-of-day sweep has completed: a recovery run in
// the evening must not resume the timers that sweep just paused.
func (s *Scheduler) RunStartOfDay(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now().In(s.cal.Loc())
	day := now.Format("2006-01-02")

	dayOver, err := s.markers.Completed(ctx, string(SweepEndOfDay), day)
	if err != nil {
		return SweepResult{Kind: SweepStartOfDay, Day: day}, err
	}
	if dayOver {
		return SweepResult{Kind: SweepStartOfDay, Day: day, Suppressed: true}, nil
	}

	return s.sweep(ctx, SweepStartOfDay, func(ctx context.Context, issue timer.Issue) (applied bool, err error) {
		if !issue.Timer.Paused || !issue.Timer.AutoPaused {
			return false, nil
		}
		_, skipped, err := s.svc.AutoResume(ctx, issue.ID)
		if err != nil {
			return false, err
		}
		return !skipped, nil
	})
}

func (s *Scheduler) sweep(ctx context.Context, kind SweepKind, apply func(context.Context, timer.Issue) (bool, error)) (SweepResult, error) {
	now := s.clock.Now().In(s.cal.Loc())
	res := SweepResult{Kind: kind, Day: now.Format("2006-01-02")}

	if !s.cal.IsWorkDay(now) {
		res.Suppressed = true
		return res, nil
	}

	done, err := s.markers.Completed(ctx, string(kind), res.Day)
	if err != nil {
		return res, err
	}
	if done {
		res.AlreadyRan = true
		return res, nil
	}

	issues, err := s.issues.ListInProgressWithTimer(ctx)
	if err != nil {
		return res, err
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan timer.Issue)
	)
	for range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for issue := range jobs {
				applied, err := apply(ctx, issue)
				mu.Lock()
				switch {
				case err == nil && applied:
					res.Applied++
				case err == nil:
					res.Skipped++
				case IsConflict(err):
					// The issue moved or a user action won the race
					// between the listing and the transition.
					res.Skipped++
				default:
					res.Errors = append(res.Errors, IssueError{IssueID: issue.ID, Err: err})
				}
				mu.Unlock()
			}
		}()
	}
	for _, issue := range issues {
		jobs <- issue
	}
	close(jobs)
	wg.Wait()

	// Leave the marker unset on errors so the next tick retries the
	// failed issues. Pause and resume are no-ops the second time around,
	// so the retry cannot double-apply.
	if len(res.Errors) == 0 {
		if err := s.markers.MarkCompleted(ctx, string(kind), res.Day, s.clock.Now()); err != nil {
			return res, err
		}
	}

	s.log.Info().
		Str("kind", string(kind)).
		Str("day", res.Day).
		Int("applied", res.Applied).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Errors)).
		Msg("sweep completed")
	s.bus.PublishSweepCompleted(eventbus.SweepCompletedPayload{
		Kind:    string(kind),
		Day:     res.Day,
		Applied: res.Applied,
		Skipped: res.Skipped,
		Failed:  len(res.Errors),
	})

	return res, nil
}
