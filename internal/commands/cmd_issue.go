package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/internal/printer"
)

type IssueCmd struct {
	flags *Flags

	status string
	user   string
}

// NewIssueCmd creates a new issue command.
func NewIssueCmd(flags *Flags) *IssueCmd {
	return &IssueCmd{flags: flags}
}

// Register adds the issue command to the application.
func (cmd *IssueCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "issue",
		Usage:     "Manage the timer-relevant slice of issues",
		UsageText: "tempo issue <add|move> <issue-id>",
		Commands: []*cli.Command{
			cmd.addCmd(),
			cmd.moveCmd(),
		},
	})

	return app
}

func (cmd *IssueCmd) addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register an issue",
		UsageText: "tempo issue add <issue-id> [--status <status>]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "status",
				Usage:       "initial status (open, in_progress, review, done)",
				Value:       string(timer.StatusOpen),
				Destination: &cmd.status,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}

			status := timer.Status(cmd.status)
			if !status.IsValid() {
				return fmt.Errorf("unknown status %q", cmd.status)
			}

			if err := cmd.flags.App.Issues.Create(ctx, timer.Issue{ID: issueID, Status: status}); err != nil {
				return fmt.Errorf("add issue: %w", err)
			}

			printer.Ctx(ctx).Successf("Added %s (%s)", issueID, status)
			return nil
		},
	}
}

func (cmd *IssueCmd) moveCmd() *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Move an issue to a new status, carrying the timer with it",
		UsageText: "tempo issue move <issue-id> <status> [--user <id>]",
		Description: `Moving an issue out of in_progress closes its active timer into the
ledger. Moving an issue into in_progress starts a timer for --user
unless --user is set empty.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "user to start a timer for when entering in_progress",
				Sources:     cli.EnvVars("TEMPO_USER"),
				Value:       DefaultUser(),
				Destination: &cmd.user,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			issueID, err := issueArg(c)
			if err != nil {
				return err
			}
			statusArg := c.Args().Get(1)
			if statusArg == "" {
				return fmt.Errorf("missing status argument")
			}

			if err := cmd.flags.App.Timers.MoveIssue(ctx, issueID, timer.Status(statusArg), cmd.user); err != nil {
				return fmt.Errorf("move issue: %w", err)
			}

			printer.Ctx(ctx).Successf("Moved %s to %s", issueID, statusArg)
			return nil
		},
	}
}
