package tempo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sprintbase/tempo/internal/core/config"
	"github.com/sprintbase/tempo/internal/core/eventbus/testbus"
	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/core/workday"
	"github.com/sprintbase/tempo/internal/data/db"
	"github.com/sprintbase/tempo/internal/data/stores"
)

// fakeClock is a settable clock so transitions happen at exact instants.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// monday is a work-day anchor: Monday 2026-03-02 09:00 UTC.
var monday = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testCalendar() *workday.Calendar {
	return &workday.Calendar{
		WindowStart: workday.ClockTime{Hour: 9},
		WindowEnd:   workday.ClockTime{Hour: 17},
		Weekend: map[time.Weekday]bool{
			time.Saturday: true,
			time.Sunday:   true,
		},
		Holidays: []string{"*-12-25"},
		Location: time.UTC,
	}
}

type fixture struct {
	issues  *stores.IssueStore
	ledger  *stores.LedgerStore
	markers *stores.MarkerStore
	clock   *fakeClock
	cal     *workday.Calendar
	bus     *testbus.Bus
	svc     *TimerService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir(), db.DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	clock := &fakeClock{now: monday}
	cal := testCalendar()
	bus := testbus.New(t)
	issues := stores.NewIssueStore(database)
	ledger := stores.NewLedgerStore(database)

	return &fixture{
		issues:  issues,
		ledger:  ledger,
		markers: stores.NewMarkerStore(database),
		clock:   clock,
		cal:     cal,
		bus:     bus,
		svc:     NewTimerService(issues, ledger, cal, clock, bus.EventBus, zerolog.Nop()),
	}
}

func (f *fixture) createIssue(t *testing.T, id string, status timer.Status) {
	t.Helper()
	require.NoError(t, f.issues.Create(context.Background(), timer.Issue{ID: id, Status: status}))
}

func (f *fixture) scheduler(t *testing.T) *Scheduler {
	t.Helper()
	sched, err := NewScheduler(f.svc, f.issues, f.markers, f.cal, f.clock, f.bus.EventBus, config.SweepConfig{
		EndOfDay:   "18:00",
		StartOfDay: "09:00",
		Interval:   time.Minute,
		Workers:    2,
	}, zerolog.Nop())
	require.NoError(t, err)
	return sched
}
