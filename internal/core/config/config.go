// Package config handles configuration loading and validation for tempo.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sprintbase/tempo/internal/core/workday"
)

// Config holds the application configuration.
type Config struct {
	Workday  WorkdayConfig  `yaml:"workday"`
	Sweeps   SweepConfig    `yaml:"sweeps"`
	Limits   LimitsConfig   `yaml:"limits"`
	Database DatabaseConfig `yaml:"database"`
	DataDir  string         `yaml:"-"` // set by caller, not from config file
}

// WorkdayConfig defines the normal daily work window and the non-work-day
// calendar. Time logged outside the window counts as extra hours.
type WorkdayConfig struct {
	Start    string   `yaml:"start"`    // "09:00"
	End      string   `yaml:"end"`      // "17:00"
	Timezone string   `yaml:"timezone"` // IANA name, "Local" or "UTC"
	Weekend  []string `yaml:"weekend"`  // weekday names, e.g. ["Saturday", "Sunday"]
	Holidays []string `yaml:"holidays"` // date glob patterns over YYYY-MM-DD
}

// SweepConfig defines when the daily sweeps fire and how often the
// scheduler checks the clock. The business rule behind these times keeps
// shifting, so they are configuration rather than constants.
type SweepConfig struct {
	EndOfDay   string        `yaml:"end_of_day"`   // auto-pause time, "18:00"
	StartOfDay string        `yaml:"start_of_day"` // auto-resume time, "09:00"
	Interval   time.Duration `yaml:"interval"`     // scheduler tick granularity
	Workers    int           `yaml:"workers"`      // concurrent issues per sweep
}

// LimitsConfig holds hard bounds on timer accounting.
type LimitsConfig struct {
	// MaxTimerContribution caps a single active timer's contribution to a
	// bandwidth report, guarding against stale timers inflating it.
	MaxTimerContribution time.Duration `yaml:"max_timer_contribution"`

	// StaleAfter is the heartbeat threshold past which the reconciler
	// flags a timer as stale. Zero disables the check.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DatabaseConfig holds SQLite connection pool settings.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	BusyTimeout  int `yaml:"busy_timeout"` // milliseconds
}

// DefaultConfig returns a Config with sensible defaults: a 09:00-17:00
// window, auto-pause at 18:00, auto-resume at 09:00, and a 12h clamp.
func DefaultConfig() Config {
	return Config{
		Workday: WorkdayConfig{
			Start:    "09:00",
			End:      "17:00",
			Timezone: "Local",
			Weekend:  []string{"Saturday", "Sunday"},
		},
		Sweeps: SweepConfig{
			EndOfDay:   "18:00",
			StartOfDay: "09:00",
			Interval:   time.Minute,
			Workers:    4,
		},
		Limits: LimitsConfig{
			MaxTimerContribution: 12 * time.Hour,
			StaleAfter:           0,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			BusyTimeout:  5000,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the
// provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Workday.Start == "" {
		c.Workday.Start = defaults.Workday.Start
	}
	if c.Workday.End == "" {
		c.Workday.End = defaults.Workday.End
	}
	if c.Workday.Timezone == "" {
		c.Workday.Timezone = defaults.Workday.Timezone
	}
	if c.Workday.Weekend == nil {
		c.Workday.Weekend = defaults.Workday.Weekend
	}
	if c.Sweeps.EndOfDay == "" {
		c.Sweeps.EndOfDay = defaults.Sweeps.EndOfDay
	}
	if c.Sweeps.StartOfDay == "" {
		c.Sweeps.StartOfDay = defaults.Sweeps.StartOfDay
	}
	if c.Sweeps.Interval == 0 {
		c.Sweeps.Interval = defaults.Sweeps.Interval
	}
	if c.Sweeps.Workers == 0 {
		c.Sweeps.Workers = defaults.Sweeps.Workers
	}
	if c.Limits.MaxTimerContribution == 0 {
		c.Limits.MaxTimerContribution = defaults.Limits.MaxTimerContribution
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = defaults.Database.BusyTimeout
	}
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Workday.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(c.Workday.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", c.Workday.Timezone, err)
		}
		return loc, nil
	}
}

// Calendar builds the workday calendar from the configuration.
// Call after Validate; parse errors here mean the config was not validated.
func (c *Config) Calendar() (*workday.Calendar, error) {
	start, err := workday.ParseClockTime(c.Workday.Start)
	if err != nil {
		return nil, err
	}
	end, err := workday.ParseClockTime(c.Workday.End)
	if err != nil {
		return nil, err
	}
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}

	weekend := make(map[time.Weekday]bool, len(c.Workday.Weekend))
	for _, name := range c.Workday.Weekend {
		day, ok := weekdayByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		weekend[day] = true
	}

	return &workday.Calendar{
		WindowStart: start,
		WindowEnd:   end,
		Weekend:     weekend,
		Holidays:    c.Workday.Holidays,
		Location:    loc,
	}, nil
}

func weekdayByName(name string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == name {
			return d, true
		}
	}
	return 0, false
}
