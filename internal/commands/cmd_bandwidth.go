package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/printer"
	"github.com/sprintbase/tempo/pkg/iojson"
)

type BandwidthCmd struct {
	flags *Flags

	user       string
	day        string
	jsonOutput bool
}

// NewBandwidthCmd creates a new bandwidth command.
func NewBandwidthCmd(flags *Flags) *BandwidthCmd {
	return &BandwidthCmd{flags: flags}
}

// Register adds the bandwidth command to the application.
func (cmd *BandwidthCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "bandwidth",
		Usage:     "Report a user's logged and in-flight time for a day",
		UsageText: "tempo bandwidth [--user <id>] [--day YYYY-MM-DD] [--json]",
		Description: `Sums the day's closed ledger entries plus the live contribution of the
user's active timer, split into normal and extra hours.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user to report on",
				Sources:     cli.EnvVars("TEMPO_USER"),
				Value:       DefaultUser(),
				Destination: &cmd.user,
			},
			&cli.StringFlag{
				Name:        "day",
				Usage:       "day to report on (YYYY-MM-DD, default today)",
				Destination: &cmd.day,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *BandwidthCmd) run(ctx context.Context, c *cli.Command) error {
	day := time.Now()
	if cmd.day != "" {
		parsed, err := time.ParseInLocation("2006-01-02", cmd.day, cmd.flags.App.Calendar.Loc())
		if err != nil {
			return fmt.Errorf("parse day %q: %w", cmd.day, err)
		}
		day = parsed
	}

	report, err := cmd.flags.App.Bandwidth.Report(ctx, cmd.user, day)
	if err != nil {
		return fmt.Errorf("bandwidth report: %w", err)
	}

	if cmd.jsonOutput {
		return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, report)
	}

	p := printer.Ctx(ctx)
	p.Infof("%s on %s: %s total", report.UserID, report.Day, formatDuration(report.Total))
	p.Infof("  normal: %s   extra: %s", formatDuration(report.Normal), formatDuration(report.Extra))
	for _, it := range report.PerIssue {
		marker := ""
		if it.Active {
			marker = " (running)"
		}
		p.Infof("  %s  %s%s", it.IssueID, formatDuration(it.Duration), marker)
	}
	if report.IgnoredTimers > 0 {
		p.Warnf("%d extra timer(s) for this user ignored; run 'tempo reconcile'", report.IgnoredTimers)
	}

	return nil
}
