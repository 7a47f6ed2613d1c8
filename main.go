package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/commands"
	"github.com/sprintbase/tempo/internal/core/config"
	"github.com/sprintbase/tempo/internal/core/eventbus"
	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/data/db"
	"github.com/sprintbase/tempo/internal/data/stores"
	"github.com/sprintbase/tempo/internal/tempo"
	"github.com/sprintbase/tempo/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	// When installed via `go install module@version`, ldflags aren't set
	// so version remains "dev". Fall back to runtime/debug.BuildInfo which
	// Go populates automatically with the module version and VCS metadata.
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser  func()
		tempoApp   = &tempo.App{}
		database   *db.DB
		stopBus    context.CancelFunc
		stopSweeps context.CancelFunc
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "tempo",
		Usage:     "Track per-issue work timers and team bandwidth",
		UsageText: "tempo [global options] command [command options]",
		Description: `Tempo keeps one work timer per in-progress issue. Timers pause and
resume across the day, stop automatically at end of day, and close into
an append-only ledger of time entries that bandwidth reports are built
from.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("TEMPO_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/tempo.log)",
				Sources:     cli.EnvVars("TEMPO_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("TEMPO_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("TEMPO_DATA_DIR"),
				Value:       commands.DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/tempo.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "tempo.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			cal, err := cfg.Calendar()
			if err != nil {
				return ctx, fmt.Errorf("build calendar: %w", err)
			}

			dbOpts := db.OpenOptions{
				MaxOpenConns: cfg.Database.MaxOpenConns,
				MaxIdleConns: cfg.Database.MaxIdleConns,
				BusyTimeout:  cfg.Database.BusyTimeout,
			}
			database, err = db.Open(cfg.DataDir, dbOpts)
			if err != nil {
				return ctx, fmt.Errorf("open database: %w", err)
			}

			bus := eventbus.New(64)
			eventbus.RegisterDebugLogger(bus, log.With().Str("component", "eventbus").Logger())

			busCtx, cancelBus := context.WithCancel(context.Background())
			stopBus = cancelBus
			go bus.Run(busCtx)

			app, err := tempo.NewApp(
				stores.NewIssueStore(database),
				stores.NewLedgerStore(database),
				stores.NewMarkerStore(database),
				cal,
				timer.SystemClock(),
				bus,
				cfg,
				database,
				log.Logger,
			)
			if err != nil {
				return ctx, fmt.Errorf("wire services: %w", err)
			}

			// Populate the pre-allocated App struct (commands already hold a pointer to it)
			*tempoApp = *app

			// Background sweep scheduler catches day boundaries while any
			// long-lived invocation is running.
			sweepCtx, cancelSweeps := context.WithCancel(context.Background())
			stopSweeps = cancelSweeps
			go tempoApp.Scheduler.Run(sweepCtx)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if stopSweeps != nil {
				stopSweeps()
			}
			if stopBus != nil {
				stopBus()
			}

			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	flags.App = tempoApp

	app = commands.NewTimerCmd(flags).Register(app)
	app = commands.NewIssueCmd(flags).Register(app)
	app = commands.NewBandwidthCmd(flags).Register(app)
	app = commands.NewEntriesCmd(flags).Register(app)
	app = commands.NewSweepCmd(flags).Register(app)
	app = commands.NewReconcileCmd(flags).Register(app)

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Println()
		fmt.Println(err.Error())
		exitCode = 1
	}

	os.Exit(exitCode)
}
