package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/exporter"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) summaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show class statistics",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
			s, err := rt.Queries.Summary.Handle(ctx)
			if err != nil {
				return err
			}
			p.Summary(s)
			return nil
		}),
	}
}

func (c *cli) neglectedCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "neglected",
		Short: "List students by days since the last connection, never-connected first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				rows, err := rt.Queries.Students.Neglected(ctx, limit)
				if err != nil {
					return err
				}
				p.Neglected(rows)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most n students (0 = all)")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT / EXPORT
// ══════════════════════════════════════════════════════════════════════════════

func (c *cli) exportCommand() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the classroom (json, yaml) or a report (csv, markdown)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				doc, err := rt.Queries.Export.Handle(ctx)
				if err != nil {
					return err
				}
				today := rt.Queries.Export.Today()
				data, err := exporter.Render(f, doc, today)
				if err != nil {
					return err
				}

				switch output {
				case "-":
					return p.Raw(data)
				case "":
					output = exporter.FileName(f, today)
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return shared.WrapError("cli", "Export", shared.ErrInvalidInput, "cannot write "+output, err)
				}
				p.Success("exported %d student(s) to %s", len(doc.Students), output)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(exporter.FormatJSON), "json, yaml, csv or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, '-' for stdout (default: student-tracker-<date>.<ext>)")
	return cmd
}

func (c *cli) importCommand() *cobra.Command {
	var (
		format  string
		confirm bool
	)
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace students, timetable and metadata with an exported json/yaml document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirm(confirm); err != nil {
				return err
			}
			path := args[0]
			if format == "" {
				format = filepath.Ext(path)
				if path == "-" || format == "" {
					format = string(exporter.FormatJSON)
				}
			}
			f, err := exporter.ParseFormat(format)
			if err != nil {
				return err
			}

			r, err := openInput(cmd, path)
			if err != nil {
				return err
			}
			doc, err := exporter.Decode(r, f)
			_ = r.Close()
			if err != nil {
				return err
			}

			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				n, err := rt.Commands.Document.ImportDocument(ctx, doc)
				if err != nil {
					return err
				}
				p.Success("imported %d student(s)", n)
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default: from the file extension)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm replacing the current data")
	return cmd
}

func (c *cli) metadataCommand() *cobra.Command {
	var schoolYear, term, teacher, className string
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Show or edit school year, term, teacher and class name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := command.UpdateMetadataCommand{}
			flags := cmd.Flags()
			if flags.Changed("school-year") {
				upd.SchoolYear = &schoolYear
			}
			if flags.Changed("term") {
				upd.Term = &term
			}
			if flags.Changed("teacher") {
				upd.Teacher = &teacher
			}
			if flags.Changed("class") {
				upd.ClassName = &className
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				meta, err := rt.Commands.Document.UpdateMetadata(ctx, upd)
				if err != nil {
					return err
				}
				p.keyValues([][2]string{
					{"school year", meta.SchoolYear},
					{"term", meta.Term},
					{"teacher", meta.Teacher},
					{"class", meta.ClassName},
				})
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().StringVar(&schoolYear, "school-year", "", "School year, e.g. 2024-2025")
	cmd.Flags().StringVar(&term, "term", "", "Term, e.g. Term 4")
	cmd.Flags().StringVar(&teacher, "teacher", "", "Teacher name")
	cmd.Flags().StringVar(&className, "class", "", "Class name, e.g. Year 4-5")
	return cmd
}

func (c *cli) clearAllCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear-all",
		Short: "Delete every student, the timetable and the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirm(confirm); err != nil {
				return err
			}
			return c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				if err := rt.Commands.Roster.ClearAllData(ctx); err != nil {
					return err
				}
				p.Success("all data cleared")
				return nil
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm deleting everything")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// DATABASE
// ══════════════════════════════════════════════════════════════════════════════

var errNoMigrator = shared.NewDomainError("cli", "Migrate", shared.ErrInvalidState, "schema migrations apply to the postgres backend only (STORE_BACKEND=postgres)")

func (c *cli) dbCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the postgres schema",
	}

	migrator := func(rt *Runtime) (Migrator, error) {
		if rt.Migrator == nil {
			return nil, errNoMigrator
		}
		return rt.Migrator, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				m, err := migrator(rt)
				if err != nil {
					return err
				}
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				p.Success("schema is up to date")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Roll back the last applied migration",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				m, err := migrator(rt)
				if err != nil {
					return err
				}
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				p.Success("last migration rolled back")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: c.run(func(ctx context.Context, rt *Runtime, p *Presenter) error {
				m, err := migrator(rt)
				if err != nil {
					return err
				}
				list, err := m.Status(ctx)
				if err != nil {
					return err
				}
				p.Migrations(list)
				return nil
			}),
		},
	)
	return cmd
}
