// Package cli implements the tracker's command line: the session shortcuts
// used during a lesson, roster and timetable management, reports,
// import/export and database maintenance.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/postgres"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUNTIME
// ══════════════════════════════════════════════════════════════════════════════

// Migrator manages the postgres schema.
type Migrator interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) ([]postgres.Migration, error)
}

// Runtime is what the commands operate on.
type Runtime struct {
	Commands *command.Handlers
	Queries  *query.Handlers

	// Migrator is nil unless the backend is postgres.
	Migrator Migrator

	// Clock defaults to timeutil.Now.
	Clock func() time.Time
}

func (rt *Runtime) today() shared.Date {
	return shared.DateOf(rt.Clock())
}

// Loader opens a runtime for one command. release is always called
// after the command finishes.
type Loader func(ctx context.Context) (rt *Runtime, release func() error, err error)

// ══════════════════════════════════════════════════════════════════════════════
// ROOT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

type cli struct {
	load  Loader
	plain bool
}

// NewRootCommand builds the command tree.
func NewRootCommand(load Loader, version string) *cobra.Command {
	c := &cli{load: load}

	root := &cobra.Command{
		Use:   "tracker",
		Short: "Classroom participation tracker",
		Long: `tracker calls students to the board fairly, records their answers,
absences and connections, and keeps the weekly timetable that decides
which subject a lesson belongs to.

During a lesson: select, correct / incorrect, absent, filter.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&c.plain, "plain", false, "Disable colours and borders")

	root.AddCommand(
		c.sessionCommands()...,
	)
	root.AddCommand(
		c.studentCommand(),
		c.scheduleCommand(),
		c.summaryCommand(),
		c.neglectedCommand(),
		c.exportCommand(),
		c.importCommand(),
		c.metadataCommand(),
		c.clearAllCommand(),
		c.dbCommand(),
	)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tracker version %s\n", version)
		},
	})

	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type action func(ctx context.Context, rt *Runtime, p *Presenter) error

// run opens the runtime, executes fn and reports no-op errors as warnings.
func (c *cli) run(fn action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		rt, release, err := c.load(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := release(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		if rt.Clock == nil {
			rt.Clock = timeutil.Now
		}

		p := c.presenter(cmd.OutOrStdout())
		if err := fn(ctx, rt, p); err != nil {
			if shared.IsNoOp(err) {
				p.Warn("%s", noOpMessage(err))
				return nil
			}
			return err
		}
		return nil
	}
}

func (c *cli) presenter(out io.Writer) *Presenter {
	if c.plain || os.Getenv("NO_COLOR") != "" {
		return NewPlainPresenter(out)
	}
	return NewPresenter(out)
}

func noOpMessage(err error) string {
	switch {
	case errors.Is(err, shared.ErrNoCurrentStudent):
		return "no student is selected: run 'tracker select' first"
	case errors.Is(err, shared.ErrNoEligibleStudents):
		return "no eligible students: add students, change the grade filter or clear absences"
	}
	return err.Error()
}

var errConfirm = shared.NewDomainError("cli", "Confirm", shared.ErrInvalidInput, "destructive operation: repeat with --confirm")

func requireConfirm(confirmed bool) error {
	if !confirmed {
		return errConfirm
	}
	return nil
}

// openInput opens a file argument; "-" reads stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.WrapError("cli", "Open", shared.ErrInvalidInput, "cannot open "+path, err)
	}
	return f, nil
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	r, err := openInput(cmd, path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
