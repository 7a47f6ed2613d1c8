package config

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"

	"github.com/sprintbase/tempo/internal/core/workday"
)

// Validate checks that the configuration is structurally valid: times
// parse, the window is ordered, weekday names and holiday patterns are
// well-formed.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		c.validateWorkday(),
		c.validateSweeps(),
		c.validateLimits(),
		c.validateDatabase(),
	)
}

func (c *Config) validateWorkday() error {
	var errs criterio.FieldErrorsBuilder

	start, startErr := workday.ParseClockTime(c.Workday.Start)
	if startErr != nil {
		errs = errs.Append("workday.start", startErr)
	}
	end, endErr := workday.ParseClockTime(c.Workday.End)
	if endErr != nil {
		errs = errs.Append("workday.end", endErr)
	}
	if startErr == nil && endErr == nil && start.Minutes() >= end.Minutes() {
		errs = errs.Append("workday.end", fmt.Errorf("work window end %s must be after start %s", c.Workday.End, c.Workday.Start))
	}

	if _, err := c.Location(); err != nil {
		errs = errs.Append("workday.timezone", err)
	}

	if len(c.Workday.Weekend) >= 7 {
		errs = errs.Append("workday.weekend", fmt.Errorf("every day is a weekend day"))
	}
	for _, name := range c.Workday.Weekend {
		if _, ok := weekdayByName(name); !ok {
			errs = errs.Append("workday.weekend", fmt.Errorf("unknown weekday %q", name))
		}
	}

	for _, pattern := range c.Workday.Holidays {
		if !doublestar.ValidatePattern(pattern) {
			errs = errs.Append("workday.holidays", fmt.Errorf("invalid date pattern %q", pattern))
		}
	}

	return errs.ToError()
}

func (c *Config) validateSweeps() error {
	var errs criterio.FieldErrorsBuilder

	if _, err := workday.ParseClockTime(c.Sweeps.EndOfDay); err != nil {
		errs = errs.Append("sweeps.end_of_day", err)
	}
	if _, err := workday.ParseClockTime(c.Sweeps.StartOfDay); err != nil {
		errs = errs.Append("sweeps.start_of_day", err)
	}
	if c.Sweeps.Interval < time.Second {
		errs = errs.Append("sweeps.interval", fmt.Errorf("interval %s must be at least 1s", c.Sweeps.Interval))
	}
	if c.Sweeps.Workers < 1 {
		errs = errs.Append("sweeps.workers", fmt.Errorf("must be at least 1"))
	}

	return errs.ToError()
}

func (c *Config) validateLimits() error {
	var errs criterio.FieldErrorsBuilder

	if c.Limits.MaxTimerContribution <= 0 {
		errs = errs.Append("limits.max_timer_contribution", fmt.Errorf("must be positive"))
	}
	if c.Limits.StaleAfter < 0 {
		errs = errs.Append("limits.stale_after", fmt.Errorf("must not be negative"))
	}

	return errs.ToError()
}

func (c *Config) validateDatabase() error {
	var errs criterio.FieldErrorsBuilder

	if c.Database.MaxOpenConns < 1 {
		errs = errs.Append("database.max_open_conns", fmt.Errorf("must be at least 1"))
	}
	if c.Database.MaxIdleConns < 0 {
		errs = errs.Append("database.max_idle_conns", fmt.Errorf("must not be negative"))
	}
	if c.Database.BusyTimeout < 0 {
		errs = errs.Append("database.busy_timeout", fmt.Errorf("must not be negative"))
	}

	return errs.ToError()
}
