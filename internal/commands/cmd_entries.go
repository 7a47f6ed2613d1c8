package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/sprintbase/tempo/internal/core/timer"
	"github.com/sprintbase/tempo/pkg/iojson"
)

type EntriesCmd struct {
	flags *Flags

	user       string
	issue      string
	from       string
	to         string
	jsonOutput bool
}

// NewEntriesCmd creates a new entries command.
func NewEntriesCmd(flags *Flags) *EntriesCmd {
	return &EntriesCmd{flags: flags}
}

// Register adds the entries command to the application.
func (cmd *EntriesCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "entries",
		Usage:     "List closed ledger entries",
		UsageText: "tempo entries [--user <id> --from <date> --to <date> | --issue <id>] [--json]",
		Description: `Lists entries either by user over a date range or by issue. The range
is [from, to) over entry start times; --to defaults to the day after
--from, and --from defaults to today.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "list a user's entries",
				Sources:     cli.EnvVars("TEMPO_USER"),
				Value:       DefaultUser(),
				Destination: &cmd.user,
			},
			&cli.StringFlag{
				Name:        "issue",
				Usage:       "list an issue's entries instead",
				Destination: &cmd.issue,
			},
			&cli.StringFlag{
				Name:        "from",
				Usage:       "range start (YYYY-MM-DD, default today)",
				Destination: &cmd.from,
			},
			&cli.StringFlag{
				Name:        "to",
				Usage:       "range end, exclusive (YYYY-MM-DD)",
				Destination: &cmd.to,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *EntriesCmd) run(ctx context.Context, c *cli.Command) error {
	var (
		entries []timer.Entry
		err     error
	)

	if cmd.issue != "" {
		entries, err = cmd.flags.App.Ledger.ListByIssue(ctx, cmd.issue)
	} else {
		var from, to time.Time
		from, to, err = cmd.rangeBounds()
		if err != nil {
			return err
		}
		entries, err = cmd.flags.App.Ledger.Query(ctx, cmd.user, from, to)
	}
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, entry := range entries {
			if err := iojson.WriteLine(out, entry); err != nil {
				return fmt.Errorf("encode entry: %w", err)
			}
		}
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ISSUE\tUSER\tSTART\tDURATION\tKIND")
	for _, entry := range entries {
		kind := "normal"
		if entry.ExtraHours {
			kind = "extra"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			entry.IssueID, entry.UserID,
			entry.StartTime.In(cmd.flags.App.Calendar.Loc()).Format("2006-01-02 15:04"),
			formatDuration(entry.Duration), kind)
	}
	_ = w.Flush()

	return nil
}

func (cmd *EntriesCmd) rangeBounds() (from, to time.Time, err error) {
	loc := cmd.flags.App.Calendar.Loc()

	if cmd.from == "" {
		now := time.Now().In(loc)
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		from, err = time.ParseInLocation("2006-01-02", cmd.from, loc)
		if err != nil {
			return from, to, fmt.Errorf("parse --from %q: %w", cmd.from, err)
		}
	}

	if cmd.to == "" {
		to = from.AddDate(0, 0, 1)
	} else {
		to, err = time.ParseInLocation("2006-01-02", cmd.to, loc)
		if err != nil {
			return from, to, fmt.Errorf("parse --to %q: %w", cmd.to, err)
		}
	}

	return from, to, nil
}
