package tempo

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/core/workday"
)

// IssueTime is one issue's share of a bandwidth report.
type IssueTime struct {
	IssueID  string        `json:"issue_id"`
	Duration time.Duration `json:"duration"`
	Active   bool          `json:"active"` // includes a live timer
}

// BandwidthReport is a user's logged plus in-flight time for one day.
type BandwidthReport struct {
	UserID        string        `json:"user_id"`
	Day           string        `json:"day"` // YYYY-MM-DD
	Normal        time.Duration `json:"normal"`
	Extra         time.Duration `json:"extra"`
	Total         time.Duration `json:"total"`
	PerIssue      []IssueTime   `json:"per_issue"`
	ActiveIssueID string        `json:"active_issue_id,omitempty"`
	IgnoredTimers int           `json:"ignored_timers,omitempty"`
}

// BandwidthCalculator reports how loaded a user is on a given day:
// closed ledger entries plus the live contribution of the user's active
// timer. The report is a read-side projection and never mutates state.
type BandwidthCalculator struct {
	issues          timer.IssueStore
	ledger          timer.LedgerStore
	cal             *workday.Calendar
	clock           timer.Clock
	maxContribution time.Duration
	log             zerolog.Logger
}

// NewBandwidthCalculator creates a BandwidthCalculator. maxContribution
// caps a single live timer's share of the report; zero means no cap.
func NewBandwidthCalculator(
	issues timer.IssueStore,
	ledger timer.LedgerStore,
	cal *workday.Calendar,
	clock timer.Clock,
	maxContribution time.Duration,
	log zerolog.Logger,
) *BandwidthCalculator {
	return &BandwidthCalculator{
		issues:          issues,
		ledger:          ledger,
		cal:             cal,
		clock:           clock,
		maxContribution: maxContribution,
		log:             log,
	}
}

// Report computes the user's bandwidth for the calendar day containing
// day. Entries are bucketed by their start time. At most one live timer
// contributes: when persisted state holds several for the user, the
// policy-preferred one counts and the rest are reported as ignored for
// the reconciler to clean up.
func (c *BandwidthCalculator) Report(ctx context.Context, userID string, day time.Time) (BandwidthReport, error) {
	from, to := c.cal.DayBounds(day)
	report := BandwidthReport{
		UserID: userID,
		Day:    from.Format("2006-01-02"),
	}

	entries, err := c.ledger.Query(ctx, userID, from, to)
	if err != nil {
		return BandwidthReport{}, err
	}

	perIssue := map[string]time.Duration{}
	for _, entry := range entries {
		if entry.ExtraHours {
			report.Extra += entry.Duration
		} else {
			report.Normal += entry.Duration
		}
		perIssue[entry.IssueID] += entry.Duration
	}

	owned, err := c.issues.ListTimersByOwner(ctx, userID)
	if err != nil {
		return BandwidthReport{}, err
	}

	if primary := PrimaryTimer(owned); primary != nil {
		report.IgnoredTimers = len(owned) - 1
		if report.IgnoredTimers > 0 {
			c.log.Warn().
				Str("user", userID).
				Int("ignored", report.IgnoredTimers).
				Str("counted_issue", primary.ID).
				Msg("multiple timers for one user, counting one")
		}

		tm := primary.Timer
		if !tm.StartTime.Before(from) && tm.StartTime.Before(to) {
			contribution := c.timerContribution(tm)
			report.ActiveIssueID = primary.ID
			if tm.ExtraHours {
				report.Extra += contribution
			} else {
				report.Normal += contribution
			}
			perIssue[primary.ID] += contribution
		}
	}

	report.Total = report.Normal + report.Extra

	report.PerIssue = make([]IssueTime, 0, len(perIssue))
	for issueID, d := range perIssue {
		report.PerIssue = append(report.PerIssue, IssueTime{
			IssueID:  issueID,
			Duration: d,
			Active:   issueID == report.ActiveIssueID,
		})
	}
	sort.Slice(report.PerIssue, func(i, j int) bool {
		return report.PerIssue[i].IssueID < report.PerIssue[j].IssueID
	})

	return report, nil
}

// timerContribution is the live timer's countable duration: elapsed
// worked time, clamped to the work window unless the timer is flagged
// extra hours, and capped so a runaway timer cannot flood the report.
func (c *BandwidthCalculator) timerContribution(tm *timer.Timer) time.Duration {
	elapsed := tm.Elapsed(c.clock.Now())
	if !tm.ExtraHours {
		if span := c.cal.ClampSpan(tm.StartTime, tm.StartTime.Add(elapsed)); span < elapsed {
			elapsed = span
		}
	}
	if c.maxContribution > 0 && elapsed > c.maxContribution {
		elapsed = c.maxContribution
	}
	return elapsed
}

// PrimaryTimer picks the issue whose timer counts when persisted state
// holds several for one user: a running timer beats a paused one, then
// the most recently started wins. Returns nil for an empty set.
func PrimaryTimer(issues []timer.Issue) *timer.Issue {
	var best *timer.Issue
	for i := range issues {
		candidate := &issues[i]
		if candidate.Timer == nil {
			continue
		}
		if best == nil || betterTimer(candidate.Timer, best.Timer) {
			best = candidate
		}
	}
	return best
}

func betterTimer(a, b *timer.Timer) bool {
	if a.Paused != b.Paused {
		return !a.Paused
	}
	return a.StartTime.After(b.StartTime)
}
