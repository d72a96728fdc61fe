package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/importer"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) scheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"timetable"},
		Short:   "View and edit the weekly timetable",
	}
	cmd.AddCommand(
		c.scheduleShowCommand(),
		c.scheduleTodayCommand(),
		c.schedulePeriodCommand(),
		c.scheduleUploadCommand(),
		c.scheduleAppendCommand(),
		c.scheduleDeletePeriodCommand(),
		c.scheduleClearDayCommand(),
		c.scheduleClearWeekCommand(),
	)
	return cmd
}

func (c *cli) scheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the whole week",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
			week, err := rt.Queries.Schedule.Week(ctx)
			if err != nil {
				return err
			}
			p.Week(week)
			return nil
		}),
	}
}

func (c *cli) scheduleTodayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's periods and the active one",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
			today, err := rt.Queries.Schedule.Today(ctx)
			if err != nil {
				return err
			}
			p.Today(today)
			return nil
		}),
	}
}

func (c *cli) schedulePeriodCommand() *cobra.Command {
	var offset int
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Show the period n positions before or after the active one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				per, ok, err := rt.Queries.Schedule.PeriodAt(ctx, offset)
				if err != nil {
					return err
				}
				if !ok {
					p.Warn("no period at offset %d", offset)
					return nil
				}
				p.Success("%s %s-%s", per.Subject, per.StartTime, per.EndTime)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().IntVarP(&offset, "offset", "n", 0, "0 is the active (or next) period, 1 the one after, -1 the one before")
	return cmd
}

func (c *cli) scheduleUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv|->",
		Short: "Replace the whole week from a 'Day,Subject,Start Time,End Time' CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			parsed, err := importer.ParseScheduleCSV(r)
			_ = r.Close()
			if err != nil {
				return err
			}
			// A timetable with bad rows is rejected whole.
			if err := parsed.Rejected.Err(); err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				week, err := rt.Commands.Schedule.Replace(ctx, command.ReplaceScheduleCommand{Week: parsed.Week})
				if err != nil {
					return err
				}
				p.Success("timetable replaced: %d period(s)", week.PeriodCount())
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) scheduleAppendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "append <day> <file|->",
		Short: "Append 'Subject, HH:MM, HH:MM' lines to a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := schedule.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			parsed, err := importer.ParseScheduleText(text)
			if err != nil {
				return err
			}
			if err := parsed.Rejected.Err(); err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				week, err := rt.Commands.Schedule.Append(ctx, command.AppendPeriodsCommand{Day: day, Periods: parsed.Periods})
				if err != nil {
					return err
				}
				p.Periods(day, week.Day(day))
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) scheduleDeletePeriodCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-period <day> <index>",
		Short: "Delete one period (index as shown by 'schedule show')",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := schedule.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return shared.WrapError("cli", "DeletePeriod", shared.ErrInvalidInput, "index must be a number", err)
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				week, err := rt.Commands.Schedule.DeletePeriod(ctx, command.DeletePeriodCommand{Day: day, Index: index})
				if err != nil {
					return err
				}
				p.Periods(day, week.Day(day))
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) scheduleClearDayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-day <day>",
		Short: "Remove every period of a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := schedule.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				if _, err := rt.Commands.Schedule.ClearDay(ctx, day); err != nil {
					return err
				}
				p.Success("%s cleared", day.Title())
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) scheduleClearWeekCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear-week",
		Short: "Remove every period of the week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirm(confirm); err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				if _, err := rt.Commands.Schedule.ClearWeek(ctx); err != nil {
					return err
				}
				p.Success("timetable cleared")
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm clearing the week")
	return cmd
}
