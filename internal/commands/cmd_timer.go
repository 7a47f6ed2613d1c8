package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/printer"
	"github.com/sprintbase/tempo/pkg/iojson"
)

type TimerCmd struct {
	flags *Flags

	user       string
	jsonOutput bool
	extraOff   bool
}

// NewTimerCmd creates a new timer command.
func NewTimerCmd(flags *Flags) *TimerCmd {
	return &TimerCmd{flags: flags}
}

// Register adds the timer command to the application.
func (cmd *TimerCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "timer",
		Usage:     "Drive the work timer on an issue",
		UsageText: "tempo timer <start|pause|resume|complete|extra|status|touch> <issue-id>",
		Description: `Each in-progress issue carries at most one timer, and each user drives
at most one timer across all issues. Pausing stops the clock without
closing the timer; completing writes the worked time to the ledger and
removes the timer from the issue.`,
		Commands: []*cli.Command{
			cmd.startCmd(),
			cmd.pauseCmd(),
			cmd.resumeCmd(),
			cmd.completeCmd(),
			cmd.extraCmd(),
			cmd.statusCmd(),
			cmd.touchCmd(),
		},
	})

	return app
}

func (cmd *TimerCmd) userFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "user",
		Aliases:     []string{"u"},
		Usage:       "acting user ID",
		Sources:     cli.EnvVars("TEMPO_USER"),
		Value:       DefaultUser(),
		Destination: &cmd.user,
	}
}

func (cmd *TimerCmd) jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "output as JSON",
		Destination: &cmd.jsonOutput,
	}
}

func issueArg(c *cli.Command) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", fmt.Errorf("missing issue ID argument")
	}
	return id, nil
}

func (cmd *TimerCmd) startCmd() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a timer on an in-progress issue",
		UsageText: "tempo timer start <issue-id> [--user <id>]",
		Flags:     []cli.Flag{cmd.userFlag(), cmd.jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			tm, err := cmd.flags.App.Timers.Start(ctx, issueID, cmd.user)
			if err != nil {
				return fmt.Errorf("start timer: %w", err)
			}

			if cmd.jsonOutput {
				return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, tm)
			}

			p := printer.Ctx(ctx)
			if tm.ExtraHours {
				p.Successf("Timer started on %s for %s (extra hours)", issueID, cmd.user)
			} else {
				p.Successf("Timer started on %s for %s", issueID, cmd.user)
			}
			return nil
		},
	}
}

func (cmd *TimerCmd) pauseCmd() *cli.Command {
	return &cli.Command{
		Name:      "pause",
		Usage:     "Pause the timer, keeping it on the issue",
		UsageText: "tempo timer pause <issue-id> [--user <id>]",
		Flags:     []cli.Flag{cmd.userFlag(), cmd.jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			tm, err := cmd.flags.App.Timers.Pause(ctx, issueID, cmd.user)
			if err != nil {
				return fmt.Errorf("pause timer: %w", err)
			}

			if cmd.jsonOutput {
				return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, tm)
			}

			printer.Ctx(ctx).Successf("Timer paused on %s at %s worked",
				issueID, formatDuration(tm.Elapsed(time.Now())))
			return nil
		},
	}
}

func (cmd *TimerCmd) resumeCmd() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a paused timer",
		UsageText: "tempo timer resume <issue-id> [--user <id>]",
		Flags:     []cli.Flag{cmd.userFlag(), cmd.jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			tm, err := cmd.flags.App.Timers.Resume(ctx, issueID, cmd.user)
			if err != nil {
				return fmt.Errorf("resume timer: %w", err)
			}

			if cmd.jsonOutput {
				return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, tm)
			}

			printer.Ctx(ctx).Successf("Timer resumed on %s, %s of pauses so far",
				issueID, formatDuration(tm.AccumulatedPause))
			return nil
		},
	}
}

func (cmd *TimerCmd) completeCmd() *cli.Command {
	return &cli.Command{
		Name:      "complete",
		Usage:     "Close the timer into a ledger entry",
		UsageText: "tempo timer complete <issue-id> [--user <id>]",
		Flags:     []cli.Flag{cmd.userFlag(), cmd.jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			entry, err := cmd.flags.App.Timers.Complete(ctx, issueID, cmd.user)
			if err != nil {
				return fmt.Errorf("complete timer: %w", err)
			}

			if cmd.jsonOutput {
				return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, entry)
			}

			printer.Ctx(ctx).Successf("Logged %s on %s", formatDuration(entry.Duration), issueID)
			return nil
		},
	}
}

func (cmd *TimerCmd) extraCmd() *cli.Command {
	return &cli.Command{
		Name:      "extra",
		Usage:     "Mark the timer's work as extra hours",
		UsageText: "tempo timer extra <issue-id> [--off] [--user <id>]",
		Description: `Flags the active timer so its time is reported as extra hours instead
of normal bandwidth. Use --off to return to normal accounting. The flag
changes how the time is categorized, never how much is counted.`,
		Flags: []cli.Flag{
			cmd.userFlag(),
			cmd.jsonFlag(),
			&cli.BoolFlag{
				Name:        "off",
				Usage:       "clear the extra-hours flag",
				Destination: &cmd.extraOff,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			tm, err := cmd.flags.App.Timers.SetExtraHours(ctx, issueID, cmd.user, !cmd.extraOff)
			if err != nil {
				return fmt.Errorf("set extra hours: %w", err)
			}

			if cmd.jsonOutput {
				return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, tm)
			}

			if tm.ExtraHours {
				printer.Ctx(ctx).Successf("Timer on %s now counts as extra hours", issueID)
			} else {
				printer.Ctx(ctx).Successf("Timer on %s back to normal hours", issueID)
			}
			return nil
		},
	}
}

func (cmd *TimerCmd) statusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the timer on an issue",
		UsageText: "tempo timer status <issue-id> [--json]",
		Flags:     []cli.Flag{cmd.jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			tm, err := cmd.flags.App.Timers.Get(ctx, issueID)
			if err != nil {
				return fmt.Errorf("get timer: %w", err)
			}

			if cmd.jsonOutput {
				return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, tm)
			}

			p := printer.Ctx(ctx)
			state := "running"
			if tm.Paused {
				state = "paused"
				if tm.AutoPaused {
					state = "paused (end of day)"
				}
			}
			p.Infof("%s: %s, owned by %s", issueID, state, tm.OwnerUserID)
			p.Infof("  worked: %s", formatDuration(tm.Elapsed(time.Now())))
			p.Infof("  paused: %s", formatDuration(tm.AccumulatedPause))
			if tm.ExtraHours {
				p.Infof("  counted as extra hours")
			}
			return nil
		},
	}
}

func (cmd *TimerCmd) touchCmd() *cli.Command {
	return &cli.Command{
		Name:      "touch",
		Usage:     "Record a heartbeat on the timer",
		UsageText: "tempo timer touch <issue-id> [--user <id>]",
		Flags:     []cli.Flag{cmd.userFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			if err := cmd.flags.App.Timers.Touch(ctx, issueID, cmd.user); err != nil {
				return fmt.Errorf("touch timer: %w", err)
			}
			return nil
		},
	}
}

// formatDuration renders a duration as compact hours and minutes.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
