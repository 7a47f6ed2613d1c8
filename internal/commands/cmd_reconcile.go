package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/printer"
	"github.com/sprintbase/tempo/pkg/iojson"
)

type ReconcileCmd struct {
	flags *Flags

	jsonOutput bool
}

// NewReconcileCmd creates a new reconcile command.
func NewReconcileCmd(flags *Flags) *ReconcileCmd {
	return &ReconcileCmd{flags: flags}
}

// Register adds the reconcile command to the application.
func (cmd *ReconcileCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "reconcile",
		Usage:     "Repair inconsistent timer state",
		UsageText: "tempo reconcile [--json]",
		Description: `Walks every persisted timer and repairs what it safely can: lost pause
timestamps and timers stranded on closed issues. Anomalies that need a
human decision, like one user driving several timers, are reported but
left alone.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output corrections as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ReconcileCmd) run(ctx context.Context, c *cli.Command) error {
	corrections, err := cmd.flags.App.Reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	if cmd.jsonOutput {
		out := c.Root().Writer
		for _, correction := range corrections {
			if err := iojson.WriteLine(out, correction); err != nil {
				return fmt.Errorf("encode correction: %w", err)
			}
		}
		return nil
	}

	p := printer.Ctx(ctx)
	if len(corrections) == 0 {
		p.Successf("Timer state is consistent")
		return nil
	}

	for _, correction := range corrections {
		line := correction.Fix
		if correction.Detail != "" {
			line += ": " + correction.Detail
		}
		if correction.Applied {
			p.Successf("%s  %s", correction.IssueID, line)
		} else {
			p.Warnf("%s  %s", correction.IssueID, line)
		}
	}

	return nil
}
