package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/exporter"
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOX
// A directory the teacher drops files into. Each file is classified by name,
// applied once, then moved to processed/ or failed/.
// ══════════════════════════════════════════════════════════════════════════════

const (
	processedDir = "processed"
	failedDir    = "failed"

	defaultDebounce = 500 * time.Millisecond
)

// Kind is what an inbox file contains.
type Kind string

const (
	KindUnknown  Kind = ""
	KindRoster   Kind = "roster"
	KindSchedule Kind = "schedule"
	KindDocument Kind = "document"
)

// Classify decides what a file holds from its name:
// students*/roster* (.csv, .txt) are rosters, schedule*/timetable* .csv
// are timetables, any .json/.yaml/.yml is a full classroom document.
func Classify(path string) Kind {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(base, ".") {
		return KindUnknown
	}
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	switch ext {
	case ".json", ".yaml", ".yml":
		return KindDocument
	case ".csv", ".txt":
		switch {
		case strings.HasPrefix(name, "students"), strings.HasPrefix(name, "roster"):
			return KindRoster
		case ext == ".csv" && (strings.HasPrefix(name, "schedule") || strings.HasPrefix(name, "timetable")):
			return KindSchedule
		}
	}
	return KindUnknown
}

// Sink applies parsed imports to the classroom.
type Sink interface {
	ImportRoster(ctx context.Context, rows []student.ImportRow, source string) (added int, err error)
	ReplaceSchedule(ctx context.Context, week map[schedule.Weekday][]schedule.Period) error
	ImportDocument(ctx context.Context, doc classroom.Document) error
}

// Observer is told about every processed file.
type Observer func(kind, source string, err error)

// InboxConfig configures an Inbox.
type InboxConfig struct {
	Dir      string
	Debounce time.Duration
	Logger   *slog.Logger
	Observer Observer
}

// Inbox watches Dir with fsnotify and imports files once they stop changing.
type Inbox struct {
	dir      string
	debounce time.Duration
	sink     Sink
	log      *slog.Logger
	observer Observer

	watcher *fsnotify.Watcher

	// path -> last event; a file is imported after debounce without events.
	pendingMu sync.Mutex
	pending   map[string]time.Time

	processMu sync.Mutex
	done      chan struct{}
}

// NewInbox creates the inbox directories and an fsnotify watcher.
func NewInbox(cfg InboxConfig, sink Sink) (*Inbox, error) {
	if cfg.Dir == "" {
		return nil, errors.New("importer: inbox dir is required")
	}
	if sink == nil {
		return nil, errors.New("importer: sink is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	for _, d := range []string{cfg.Dir, filepath.Join(cfg.Dir, processedDir), filepath.Join(cfg.Dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("importer: create %s: %w", d, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("importer: create watcher: %w", err)
	}

	return &Inbox{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		sink:     sink,
		log:      cfg.Logger.With("component", "inbox"),
		observer: cfg.Observer,
		watcher:  fsw,
		pending:  make(map[string]time.Time),
		done:     make(chan struct{}),
	}, nil
}

// Dir returns the watched directory.
func (in *Inbox) Dir() string {
	return in.dir
}

// Run imports files already waiting in the inbox, then watches for new ones
// until ctx is cancelled. Subdirectories are not watched.
func (in *Inbox) Run(ctx context.Context) error {
	defer close(in.done)
	defer in.watcher.Close()

	if err := in.watcher.Add(in.dir); err != nil {
		return fmt.Errorf("importer: watch %s: %w", in.dir, err)
	}
	in.log.Info("inbox watcher started", "dir", in.dir, "debounce", in.debounce)

	in.scanExisting(ctx)

	ticker := time.NewTicker(in.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			in.log.Info("inbox watcher stopped")
			return nil

		case event, ok := <-in.watcher.Events:
			if !ok {
				return nil
			}
			in.handleFSEvent(event)

		case err, ok := <-in.watcher.Errors:
			if !ok {
				return nil
			}
			in.log.Error("inbox watcher error", "error", err)

		case now := <-ticker.C:
			in.flushPending(ctx, now)
		}
	}
}

// Done is closed when Run returns.
func (in *Inbox) Done() <-chan struct{} {
	return in.done
}

func (in *Inbox) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.log.Warn("inbox scan failed", "error", err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		path := filepath.Join(in.dir, name)
		if Classify(path) == KindUnknown {
			continue
		}
		_ = in.Process(ctx, path)
	}
}

func (in *Inbox) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if filepath.Dir(event.Name) != filepath.Clean(in.dir) {
		return
	}
	if Classify(event.Name) == KindUnknown {
		in.log.Debug("ignoring inbox file", "path", event.Name)
		return
	}

	in.pendingMu.Lock()
	in.pending[event.Name] = time.Now()
	in.pendingMu.Unlock()
}

// flushPending processes files that have been quiet for the debounce window.
func (in *Inbox) flushPending(ctx context.Context, now time.Time) {
	in.pendingMu.Lock()
	var ready []string
	for path, last := range in.pending {
		if now.Sub(last) >= in.debounce {
			ready = append(ready, path)
			delete(in.pending, path)
		}
	}
	in.pendingMu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = in.Process(ctx, path)
	}
}

// Process imports one file and moves it to processed/ or failed/.
// A failed file gets a sibling "<name>.error.txt" with the reason.
func (in *Inbox) Process(ctx context.Context, path string) error {
	in.processMu.Lock()
	defer in.processMu.Unlock()

	kind := Classify(path)
	source := filepath.Base(path)
	log := in.log.With("file", source, "kind", string(kind))

	err := in.apply(ctx, kind, path)
	if in.observer != nil {
		in.observer(string(kind), source, err)
	}

	if err != nil {
		log.Warn("inbox import failed", "error", err)
		if mvErr := in.moveTo(path, failedDir); mvErr != nil {
			log.Error("moving failed file", "error", mvErr)
		}
		_ = os.WriteFile(filepath.Join(in.dir, failedDir, source+".error.txt"), []byte(err.Error()+"\n"), 0o644)
		return err
	}

	if mvErr := in.moveTo(path, processedDir); mvErr != nil {
		log.Error("moving processed file", "error", mvErr)
		return mvErr
	}
	log.Info("inbox file imported")
	return nil
}

func (in *Inbox) apply(ctx context.Context, kind Kind, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch kind {
	case KindRoster:
		var res RosterResult
		if strings.EqualFold(filepath.Ext(path), ".txt") {
			data, readErr := io.ReadAll(f)
			if readErr != nil {
				return readErr
			}
			res, err = ParseRosterText(string(data))
		} else {
			res, err = ParseRosterCSV(f)
		}
		if err != nil {
			return err
		}
		if len(res.Rows) == 0 {
			return errors.Join(ErrEmptyInput, res.Rejected.Err())
		}
		_, err = in.sink.ImportRoster(ctx, res.Rows, filepath.Base(path))
		return err

	case KindSchedule:
		res, err := ParseScheduleCSV(f)
		if err != nil {
			return err
		}
		if rejErr := res.Rejected.Err(); rejErr != nil {
			return rejErr
		}
		return in.sink.ReplaceSchedule(ctx, res.Week)

	case KindDocument:
		format, err := exporter.ParseFormat(filepath.Ext(path))
		if err != nil {
			return err
		}
		doc, err := exporter.Decode(f, format)
		if err != nil {
			return err
		}
		return in.sink.ImportDocument(ctx, doc)

	default:
		return fmt.Errorf("importer: unrecognised file name %q", filepath.Base(path))
	}
}

// moveTo moves path into a subdirectory, adding a timestamp on name clash.
func (in *Inbox) moveTo(path, sub string) error {
	base := filepath.Base(path)
	dst := filepath.Join(in.dir, sub, base)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(base)
		dst = filepath.Join(in.dir, sub, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), time.Now().UnixNano(), ext))
	}
	return os.Rename(path, dst)
}
