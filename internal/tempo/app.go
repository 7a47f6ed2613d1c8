package tempo

import (
	"github.com/rs/zerolog"

	"github.com/sprintbase/tempo/internal/core/config"
	"github.com/sprintbase/tempo/internal/core/eventbus"
	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/core/workday"
	"github.com/sprintbase/tempo/internal/data/db"
)

// App is the central entry point for all tempo operations. Commands
// consume App instead of cherry-picking raw dependencies.
type App struct {
	Timers     *TimerService
	Scheduler  *Scheduler
	Bandwidth  *BandwidthCalculator
	Reconciler *Reconciler

	Issues   timer.IssueStore
	Ledger   timer.LedgerStore
	Calendar *workday.Calendar
	Config   *config.Config
	Bus      *eventbus.EventBus
	DB       *db.DB
}

// NewApp constructs an App from explicit dependencies.
func NewApp(
	issues timer.IssueStore,
	ledger timer.LedgerStore,
	markers SweepMarkerStore,
	cal *workday.Calendar,
	clock timer.Clock,
	bus *eventbus.EventBus,
	cfg *config.Config,
	database *db.DB,
	log zerolog.Logger,
) (*App, error) {
	svc := NewTimerService(issues, ledger, cal, clock, bus, log.With().Str("component", "timers").Logger())

	sched, err := NewScheduler(svc, issues, markers, cal, clock, bus, cfg.Sweeps, log.With().Str("component", "scheduler").Logger())
	if err != nil {
		return nil, err
	}

	return &App{
		Timers:     svc,
		Scheduler:  sched,
		Bandwidth:  NewBandwidthCalculator(issues, ledger, cal, clock, cfg.Limits.MaxTimerContribution, log.With().Str("component", "bandwidth").Logger()),
		Reconciler: NewReconciler(issues, svc, clock, cfg.Limits.StaleAfter, bus, log.With().Str("component", "reconciler").Logger()),
		Issues:     issues,
		Ledger:     ledger,
		Calendar:   cal,
		Config:     cfg,
		Bus:        bus,
		DB:         database,
	}, nil
}
