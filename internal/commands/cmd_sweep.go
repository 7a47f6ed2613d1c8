package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/printer"
	"github.com/sprintbase/tempo/internal/tempo"
)

type SweepCmd struct {
	flags *Flags
}

// NewSweepCmd creates a new sweep command.
func NewSweepCmd(flags *Flags) *SweepCmd {
	return &SweepCmd{flags: flags}
}

// Register adds the sweep command to the application.
func (cmd *SweepCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sweep",
		Usage:     "Run a day-boundary sweep now",
		UsageText: "tempo sweep <eod|sod>",
		Description: `The background scheduler runs these automatically at the configured
times. Running one manually is safe: each sweep applies at most once per
day, and re-running after a partial failure only retries what failed.`,
		Commands: []*cli.Command{
			{
				Name:      "eod",
				Usage:     "Pause all running timers for the night",
				UsageText: "tempo sweep eod",
				Action: func(ctx context.Context, c *cli.Command) error {
					res, err := cmd.flags.App.Scheduler.RunEndOfDay(ctx)
					if err != nil {
						return fmt.Errorf("end-of-day sweep: %w", err)
					}
					cmd.report(ctx, res)
					return nil
				},
			},
			{
				Name:      "sod",
				Usage:     "Resume timers paused by the evening sweep",
				UsageText: "tempo sweep sod",
				Action: func(ctx context.Context, c *cli.Command) error {
					res, err := cmd.flags.App.Scheduler.RunStartOfDay(ctx)
					if err != nil {
						return fmt.Errorf("start-of-day sweep: %w", err)
					}
					cmd.report(ctx, res)
					return nil
				},
			},
		},
	})

	return app
}

func (cmd *SweepCmd) report(ctx context.Context, res tempo.SweepResult) {
	p := printer.Ctx(ctx)

	switch {
	case res.Suppressed:
		p.Infof("Sweep not due on %s, nothing to do", res.Day)
	case res.AlreadyRan:
		p.Infof("Sweep already ran on %s", res.Day)
	default:
		p.Successf("Swept %s: %d applied, %d skipped", res.Day, res.Applied, res.Skipped)
		for _, e := range res.Errors {
			p.Errorf("%s: %v", e.IssueID, e.Err)
		}
	}
}
