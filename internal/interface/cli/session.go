package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION SHORTCUTS
// One verb per keyboard shortcut, all routed through the command dispatcher.
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) sessionCommands() []*cobra.Command {
	dispatch := func(use, short string, kind command.Kind, aliases ...string) *cobra.Command {
		return &cobra.Command{
			Use:     use,
			Short:   short,
			Aliases: aliases,
			Args:    cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				return c.dispatch(ctx, rt, p, kind)
			}),
		}
	}

	absent := &cobra.Command{
		Use:   "absent [student-id]",
		Short: "Mark the current student (or the given one) absent today",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				if len(args) == 0 {
					return c.dispatch(ctx, rt, p, command.KindMarkAbsent)
				}
				res, err := rt.Commands.Absence.Handle(ctx, command.RecordAbsenceCommand{StudentID: args[0]})
				if err != nil {
					return err
				}
				p.Absence(res, false)
				return nil
			})(cmd, args)
		},
	}

	do := &cobra.Command{
		Use:   "do <command>",
		Short: "Run a named command (select-student, mark-correct, mark-incorrect, mark-absent, toggle-grade-filter)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := command.ParseKind(args[0])
			if err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				return c.dispatch(ctx, rt, p, kind)
			})(cmd, args)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the current lesson state",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
			s, err := rt.Queries.Session.Handle(ctx)
			if err != nil {
				return err
			}
			p.Status(s)
			return nil
		}),
	}

	return []*cobra.Command{
		dispatch("select", "Call the next student to the board", command.KindSelectStudent, "next"),
		dispatch("correct", "Record a correct answer for the current student", command.KindMarkCorrect),
		dispatch("incorrect", "Record an incorrect answer for the current student", command.KindMarkIncorrect),
		dispatch("filter", "Cycle the grade filter", command.KindToggleGradeFilter),
		absent,
		do,
		status,
		c.resetCommand(),
	}
}

func (c *cli) dispatch(ctx context.Context, rt *Runtime, p *Presenter, kind command.Kind) error {
	res, err := rt.Commands.Dispatcher.Dispatch(ctx, kind, uuid.NewString())
	if err != nil {
		return err
	}
	switch {
	case res.Selected != nil:
		p.Selected(res.Selected)
	case res.Outcome != nil:
		p.Outcome(res.Outcome)
	case res.Absence != nil:
		p.Absence(res.Absence, false)
	case res.Filter != nil:
		p.Filter(res.Filter)
	}
	return nil
}

func (c *cli) resetCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:       "reset <daily|subject|participation>",
		Short:     "Run a session reset now",
		Long:      "daily and subject resets only act when the day or the scheduled subject has changed; participation wipes every student's counts and needs --confirm.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(command.ResetDaily), string(command.ResetSubject), string(command.ResetParticipation)},
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := command.ResetScope(args[0])
			if err := (command.ResetCommand{Scope: scope}).Validate(); err != nil {
				return err
			}
			if scope == command.ResetParticipation {
				if err := requireConfirm(confirm); err != nil {
					return err
				}
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				res, err := rt.Commands.Reset.Handle(ctx, command.ResetCommand{Scope: scope})
				if err != nil {
					return err
				}
				p.Reset(res)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm a participation reset")
	return cmd
}
