package cli

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/importer"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) studentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "student",
		Aliases: []string{"students"},
		Short:   "Manage the class roster and student profiles",
	}
	cmd.AddCommand(
		c.studentAddCommand(),
		c.studentListCommand(),
		c.studentShowCommand(),
		c.studentDeleteCommand(),
		c.studentDeleteAllCommand(),
		c.studentImportCommand(),
		c.studentGoalCommand(),
		c.studentCompleteGoalCommand(),
		c.studentInterestsCommand(),
		c.studentConnectCommand(),
		c.studentClearAbsenceCommand(),
	)
	return cmd
}

func (c *cli) studentAddCommand() *cobra.Command {
	var grade int
	cmd := &cobra.Command{
		Use:   "add <firstname> [lastname...]",
		Short: "Add a student (grade defaults to 4)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			add := command.AddStudentCommand{FirstName: args[0], LastName: joinArgs(args[1:])}
			if cmd.Flags().Changed("grade") {
				g := shared.Grade(grade)
				add.Grade = &g
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				s, err := rt.Commands.Roster.AddStudent(ctx, add)
				if err != nil {
					return err
				}
				p.Success("added %s (grade %s, id %s)", s.Name, s.Grade, s.ID)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().IntVarP(&grade, "grade", "g", int(shared.DefaultGrade), "Grade")
	return cmd
}

func (c *cli) studentListCommand() *cobra.Command {
	var (
		grade  int
		byName bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List students with their participation",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.ListStudentsQuery{SortByName: byName}
			if cmd.Flags().Changed("grade") {
				q.GradeFilter = session.ForGrade(shared.Grade(grade))
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				list, err := rt.Queries.Students.List(ctx, q)
				if err != nil {
					return err
				}
				p.Students(list)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().IntVarP(&grade, "grade", "g", 0, "Only this grade")
	cmd.Flags().BoolVar(&byName, "sort-name", false, "Sort by name instead of roster order")
	return cmd
}

func (c *cli) studentShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <student-id>",
		Short: "Show a student's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				s, err := rt.Queries.Students.Get(ctx, args[0])
				if err != nil {
					return err
				}
				p.StudentCard(s, rt.today())
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) studentDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <student-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a student and their history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				if err := rt.Commands.Roster.DeleteStudent(ctx, args[0]); err != nil {
					return err
				}
				p.Success("student %s deleted", args[0])
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) studentDeleteAllCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Remove every student (the timetable is kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirm(confirm); err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				n, err := rt.Commands.Roster.DeleteAllStudents(ctx)
				if err != nil {
					return err
				}
				p.Success("%d student(s) deleted", n)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm deletion")
	return cmd
}

func (c *cli) studentImportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a roster: CSV 'firstname,lastname,grade' or one 'First [Middle] Last [grade]' per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				format = "text"
				if strings.EqualFold(filepath.Ext(path), ".csv") {
					format = "csv"
				}
			}

			var (
				parsed importer.RosterResult
				err    error
			)
			switch strings.ToLower(format) {
			case "csv":
				r, oerr := openInput(cmd, path)
				if oerr != nil {
					return oerr
				}
				parsed, err = importer.ParseRosterCSV(r)
				_ = r.Close()
			case "text", "txt":
				text, rerr := readInput(cmd, path)
				if rerr != nil {
					return rerr
				}
				parsed, err = importer.ParseRosterText(text)
			default:
				return shared.NewDomainError("cli", "Import", shared.ErrInvalidInput, "format must be csv or text")
			}
			if err != nil {
				return err
			}
			if len(parsed.Rows) == 0 {
				return parsed.Rejected.Err()
			}

			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				res, err := rt.Commands.Roster.Import(ctx, command.ImportRosterCommand{Rows: parsed.Rows, Source: "cli:" + filepath.Base(path)})
				if err != nil {
					return err
				}
				p.Imported(res, len(parsed.Rejected))
				for _, rej := range parsed.Rejected {
					p.Warn("%v", rej)
				}
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "csv or text (default: from the file extension)")
	return cmd
}

func (c *cli) studentGoalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "goal <student-id> <goal...>",
		Short: "Set a student's goal; a different current goal is archived",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				s, err := rt.Commands.Profile.SetGoal(ctx, command.SetGoalCommand{StudentID: args[0], Goal: joinArgs(args[1:])})
				if err != nil {
					return err
				}
				p.Success("%s: goal set to %q", s.Name, s.Goal)
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) studentCompleteGoalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "complete-goal <student-id>",
		Short: "Archive the current goal as completed today",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				s, err := rt.Commands.Profile.CompleteGoal(ctx, args[0])
				if err != nil {
					return err
				}
				p.Success("%s: goal completed (%d in history)", s.Name, len(s.GoalHistory))
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) studentInterestsCommand() *cobra.Command {
	var extracurriculars, strengths, notes string
	cmd := &cobra.Command{
		Use:   "interests <student-id>",
		Short: "Replace a student's interests, strengths and notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := command.UpdateInterestsCommand{
				StudentID:        args[0],
				Extracurriculars: student.SplitList(extracurriculars),
				Strengths:        student.SplitList(strengths),
				Notes:            notes,
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				s, err := rt.Commands.Profile.UpdateInterests(ctx, upd)
				if err != nil {
					return err
				}
				p.Success("%s: %d interest(s), %d strength(s)", s.Name,
					len(s.Interests.Extracurriculars), len(s.Interests.Strengths))
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&extracurriculars, "extracurriculars", "", "Comma-separated activities")
	cmd.Flags().StringVar(&strengths, "strengths", "", "Comma-separated strengths")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	return cmd
}

func (c *cli) studentConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <student-id> <note...>",
		Short: "Log a meaningful connection with a student today",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				res, err := rt.Commands.Profile.RecordConnection(ctx, command.RecordConnectionCommand{
					StudentID: args[0],
					Note:      joinArgs(args[1:]),
				})
				if err != nil {
					return err
				}
				switch res.Result {
				case student.ConnectionEdited:
					p.Success("%s: connection for %s updated", res.Student.Name, res.Date)
				case student.ConnectionAdded:
					p.Success("%s: connection logged (%d total)", res.Student.Name, res.Student.Connections.TotalMGCs)
				default:
					p.Warn("empty note, nothing recorded")
				}
				return nil
			})(cmd, args)
		},
	}
}

func (c *cli) studentClearAbsenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-absence <student-id>",
		Short: "Remove today's absence mark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				res, err := rt.Commands.Absence.HandleClear(ctx, command.ClearAbsenceCommand{StudentID: args[0]})
				if err != nil {
					return err
				}
				p.Absence(res, true)
				return nil
			})(cmd, args)
		},
	}
}
