package tempo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintbase/tempo/internal/core/eventbus"
	"github.com/sprintbase/tempo/internal/core/timer"
)

// Correction fixes applied or anomalies found by a reconciliation pass.
const (
	// FixPauseTimeRestored repaired a paused timer missing its pause
	// timestamp, anchoring it at reconciliation time.
	FixPauseTimeRestored = "pause_time_restored"

	// FixOrphanPaused paused a running timer found on an issue that is
	// no longer in progress. The pause is manual so the morning sweep
	// leaves it alone until someone resolves it.
	FixOrphanPaused = "orphan_paused"

	// FixAutoFlagCleared cleared the auto-pause flag on a timer whose
	// issue left in progress, so it reads as awaiting manual action.
	FixAutoFlagCleared = "auto_flag_cleared"

	// FindingDuplicateOwner flags a user driving more than one timer.
	// Reported, not repaired: picking which timer to kill loses data.
	FindingDuplicateOwner = "duplicate_owner"

	// FindingStaleTimer flags a timer with no heartbeat past the
	// configured threshold. Reported, not repaired.
	FindingStaleTimer = "stale_timer"
)

// Correction is one fix or finding from a reconciliation pass.
type Correction struct {
	IssueID string `json:"issue_id"`
	Fix     string `json:"fix"`
	Detail  string `json:"detail,omitempty"`
	Applied bool   `json:"applied"` // false for report-only findings
}

// Reconciler walks persisted timer state and repairs what the state
// machine should have prevented: interrupted writes, timers stranded on
// closed issues, duplicate owners. Safe to run at any time; every fix
// goes through the same versioned update as normal transitions, so a
// pass racing live traffic backs off instead of clobbering it.
type Reconciler struct {
	issues     timer.IssueStore
	svc        *TimerService
	clock      timer.Clock
	staleAfter time.Duration
	bus        *eventbus.EventBus
	log        zerolog.Logger
}

// NewReconciler creates a Reconciler. staleAfter zero disables the
// stale-heartbeat finding.
func NewReconciler(
	issues timer.IssueStore,
	svc *TimerService,
	clock timer.Clock,
	staleAfter time.Duration,
	bus *eventbus.EventBus,
	log zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		issues:     issues,
		svc:        svc,
		clock:      clock,
		staleAfter: staleAfter,
		bus:        bus,
		log:        log,
	}
}

// Run performs one reconciliation pass over every persisted timer and
// returns the corrections applied and anomalies found.
func (r *Reconciler) Run(ctx context.Context) ([]Correction, error) {
	issues, err := r.issues.ListWithTimer(ctx)
	if err != nil {
		return nil, err
	}

	var corrections []Correction
	owners := map[string][]timer.Issue{}

	for _, issue := range issues {
		tm := issue.Timer
		owners[tm.OwnerUserID] = append(owners[tm.OwnerUserID], issue)

		if c, ok := r.repairPauseTime(ctx, issue); ok {
			corrections = append(corrections, c)
			continue
		}
		if c, ok := r.repairOrphan(ctx, issue); ok {
			corrections = append(corrections, c)
			continue
		}
		if r.staleAfter > 0 && tm.Stale(r.clock.Now(), r.staleAfter) {
			corrections = append(corrections, r.record(Correction{
				IssueID: issue.ID,
				Fix:     FindingStaleTimer,
				Detail:  fmt.Sprintf("no heartbeat since %s", tm.LastActivityAt.Format(time.RFC3339)),
			}))
		}
	}

	for userID, owned := range owners {
		if len(owned) < 2 {
			continue
		}
		survivor := PrimaryTimer(owned)
		for _, issue := range owned {
			corrections = append(corrections, r.record(Correction{
				IssueID: issue.ID,
				Fix:     FindingDuplicateOwner,
				Detail:  fmt.Sprintf("user %q drives %d timers, %q counts", userID, len(owned), survivor.ID),
			}))
		}
	}

	r.log.Info().Int("issues", len(issues)).Int("corrections", len(corrections)).Msg("reconciliation pass done")
	return corrections, nil
}

// repairPauseTime fixes a paused timer whose pause timestamp was lost,
// which otherwise poisons every duration computed from it. Anchoring at
// reconciliation time forfeits the unknowable gap rather than guessing.
func (r *Reconciler) repairPauseTime(ctx context.Context, issue timer.Issue) (Correction, bool) {
	tm := issue.Timer
	if !tm.Paused || tm.PausedAt != nil {
		return Correction{}, false
	}

	now := r.clock.Now()
	repaired := *tm
	repaired.PausedAt = &now

	if err := r.issues.UpdateTimer(ctx, issue.ID, issue.Version, &repaired); err != nil {
		return r.failed(issue.ID, FixPauseTimeRestored, err), true
	}
	return r.record(Correction{
		IssueID: issue.ID,
		Fix:     FixPauseTimeRestored,
		Applied: true,
	}), true
}

// repairOrphan handles timers on issues that left in progress without
// their timer being closed.
func (r *Reconciler) repairOrphan(ctx context.Context, issue timer.Issue) (Correction, bool) {
	tm := issue.Timer
	if issue.InProgress() {
		return Correction{}, false
	}

	if !tm.Paused {
		if _, err := r.svc.ForcePause(ctx, issue.ID); err != nil {
			return r.failed(issue.ID, FixOrphanPaused, err), true
		}
		return r.record(Correction{
			IssueID: issue.ID,
			Fix:     FixOrphanPaused,
			Detail:  fmt.Sprintf("issue is %s", issue.Status),
			Applied: true,
		}), true
	}

	if tm.AutoPaused {
		repaired := *tm
		repaired.AutoPaused = false
		if err := r.issues.UpdateTimer(ctx, issue.ID, issue.Version, &repaired); err != nil {
			return r.failed(issue.ID, FixAutoFlagCleared, err), true
		}
		return r.record(Correction{
			IssueID: issue.ID,
			Fix:     FixAutoFlagCleared,
			Applied: true,
		}), true
	}

	return Correction{}, false
}

func (r *Reconciler) record(c Correction) Correction {
	event := r.log.Warn()
	if c.Applied {
		event = r.log.Info()
	}
	event.Str("issue", c.IssueID).Str("fix", c.Fix).Str("detail", c.Detail).Msg("reconciliation")

	if c.Applied {
		r.bus.PublishReconcileCorrected(eventbus.ReconcileCorrectedPayload{
			IssueID: c.IssueID,
			Fix:     c.Fix,
			At:      r.clock.Now(),
		})
	} else {
		r.bus.PublishReconcileFlagged(eventbus.ReconcileFlaggedPayload{
			IssueID: c.IssueID,
			Finding: c.Fix,
			Detail:  c.Detail,
			At:      r.clock.Now(),
		})
	}
	return c
}

func (r *Reconciler) failed(issueID, fix string, err error) Correction {
	// A lost version race means live traffic touched the timer while we
	// were looking at it; the next pass sees the settled state.
	r.log.Warn().Err(err).Str("issue", issueID).Str("fix", fix).Msg("correction not applied")
	return Correction{
		IssueID: issueID,
		Fix:     fix,
		Detail:  err.Error(),
	}
}
