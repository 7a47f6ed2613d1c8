package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, "09:00", cfg.Workday.Start)
		assert.Equal(t, "17:00", cfg.Workday.End)
		assert.Equal(t, "18:00", cfg.Sweeps.EndOfDay)
		assert.Equal(t, 12*time.Hour, cfg.Limits.MaxTimerContribution)
	})

	t.Run("file overrides defaults, gaps filled", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := `
workday:
  start: "08:00"
  end: "16:00"
  timezone: "UTC"
  holidays:
    - "*-12-25"
sweeps:
  end_of_day: "17:30"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path, dir)
		require.NoError(t, err)

		assert.Equal(t, "08:00", cfg.Workday.Start)
		assert.Equal(t, "17:30", cfg.Sweeps.EndOfDay)
		assert.Equal(t, "09:00", cfg.Sweeps.StartOfDay, "unset values fall back to defaults")
		assert.Equal(t, []string{"*-12-25"}, cfg.Workday.Holidays)
		assert.Equal(t, dir, cfg.DataDir)
	})

	t.Run("invalid file rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workday:\n  start: \"25:00\"\n"), 0o644))

		_, err := Load(path, dir)
		require.Error(t, err)
	})
}

func TestConfig_Calendar(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workday.Timezone = "UTC"
	cfg.Workday.Holidays = []string{"*-01-01"}

	cal, err := cfg.Calendar()
	require.NoError(t, err)

	assert.Equal(t, time.UTC, cal.Location)
	assert.True(t, cal.Weekend[time.Saturday])
	assert.True(t, cal.Weekend[time.Sunday])
	assert.False(t, cal.Weekend[time.Monday])
	assert.False(t, cal.IsWorkDay(time.Date(2027, 1, 1, 10, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsWorkDay(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)))
}
