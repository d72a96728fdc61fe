package app

import (
	"context"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/importer"
)

// inboxSink applies inbox files through the command handlers, so imports
// publish the same events as the CLI and the API.
type inboxSink struct {
	commands *command.Handlers
}

// InboxSink returns an importer.Sink over the app's command handlers.
func (a *App) InboxSink() importer.Sink {
	return &inboxSink{commands: a.Commands}
}

func (s *inboxSink) ImportRoster(ctx context.Context, rows []student.ImportRow, source string) (int, error) {
	res, err := s.commands.Roster.Import(ctx, command.ImportRosterCommand{Rows: rows, Source: source})
	if err != nil {
		return 0, err
	}
	return len(res.Added), nil
}

func (s *inboxSink) ReplaceSchedule(ctx context.Context, week map[schedule.Weekday][]schedule.Period) error {
	_, err := s.commands.Schedule.Replace(ctx, command.ReplaceScheduleCommand{Week: week})
	return err
}

func (s *inboxSink) ImportDocument(ctx context.Context, doc classroom.Document) error {
	_, err := s.commands.Document.ImportDocument(ctx, doc)
	return err
}
