// Package main - точка входа для фонового процесса трекера участия.
//
// Worker отвечает за:
// - Ежедневный сброс сессии (полночь + ежечасная проверка)
// - Сброс пула при смене урока по расписанию
// - Проверку доступности хранилища
// - HTTP API для доски и планшета учителя
// - Папку входящих файлов (журнал, расписание, резервные копии)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/classroom-hub/participation-tracker/config"
	"github.com/classroom-hub/participation-tracker/internal/app"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/importer"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/metrics"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/scheduler"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/classroom-hub/participation-tracker/internal/interface/http"
	"github.com/classroom-hub/participation-tracker/internal/interface/http/handlers"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Корневой контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	features := cfg.Features

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	zlog := setupZap(cfg)
	defer zlog.Sync()

	log.Info("starting participation tracker worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"store", cfg.Store.Backend,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	var recorder *metrics.Recorder
	if features.IsEnabled(config.FeatureMetrics) {
		recorder = metrics.NewRecorder()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. СБОРКА ПРИЛОЖЕНИЯ (хранилище, шина событий, обработчики)
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, app.Options{
		Config:      cfg,
		Logger:      zlog,
		Slog:        log,
		Recorder:    recorder,
		AsyncEvents: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		log.Info("closing store and event bus...")
		if err := a.Close(); err != nil {
			log.Error("close failed", "error", err)
		}
	}()

	if err := a.Ping(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	log.Info("store connection established", "backend", a.Backend.Name)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = setupScheduler(cfg, a, recorder, log)
		if err != nil {
			return fmt.Errorf("failed to set up scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
				log.Error("scheduler stop failed", "error", err)
			}
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpserver.Server
	if features.IsEnabled(config.FeatureHTTPAPI) {
		server = setupHTTP(cfg, a, sched, recorder, zlog)
		g.Go(server.Start)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПАПКА ВХОДЯЩИХ ФАЙЛОВ
	// ─────────────────────────────────────────────────────────────────────────
	if features.IsEnabled(config.FeatureImportInbox) && cfg.Import.InboxDir != "" {
		inbox, err := importer.NewInbox(importer.InboxConfig{
			Dir:      cfg.Import.InboxDir,
			Debounce: cfg.Import.Debounce,
			Logger:   log,
			Observer: importObserver(recorder, log),
		}, a.InboxSink())
		if err != nil {
			return fmt.Errorf("failed to set up import inbox: %w", err)
		}
		g.Go(func() error { return inbox.Run(gctx) })
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("participation tracker worker is running")

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		if server == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPONENTS
// ══════════════════════════════════════════════════════════════════════════════

// setupScheduler регистрирует задачи сброса и проверки хранилища.
func setupScheduler(cfg *config.Config, a *app.App, recorder *metrics.Recorder, log *slog.Logger) (*scheduler.Scheduler, error) {
	sc := scheduler.DefaultConfig()
	sc.Logger = log
	sc.Location = cfg.App.Location
	sc.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	sc.JobTimeout = cfg.Scheduler.JobTimeout
	if recorder != nil {
		sc.Observer = recorder.JobRun
	}
	sched := scheduler.New(sc)

	// Полночь по cron плюс периодическая проверка: если процесс спал в
	// полночь, сброс всё равно случится при следующем запуске.
	midnight, err := scheduler.ParseSchedule(cfg.Scheduler.ResetCron)
	if err != nil {
		return nil, err
	}
	daily := scheduler.AnyOf{midnight, scheduler.Every(cfg.Scheduler.ResetInterval)}
	if err := sched.Register(jobs.NewDailyResetJob(a.Commands.Reset, log), daily, scheduler.RunOnStart()); err != nil {
		return nil, err
	}

	features := cfg.Features
	subject := jobs.NewSubjectResetJob(a.Commands.Reset, func() bool {
		return features.IsEnabled(config.FeatureSubjectReset)
	}, log)
	if err := sched.Register(subject, scheduler.Every(cfg.Scheduler.SubjectInterval)); err != nil {
		return nil, err
	}

	if err := sched.Register(jobs.NewStoreHealthJob(a, log), scheduler.Every(time.Minute), scheduler.RunOnStart()); err != nil {
		return nil, err
	}
	return sched, nil
}

// setupHTTP собирает HTTP сервер с проверками здоровья и метриками.
func setupHTTP(cfg *config.Config, a *app.App, sched *scheduler.Scheduler, recorder *metrics.Recorder, log *logger.Logger) *httpserver.Server {
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(a))

	deps := httpserver.Dependencies{
		Commands:      a.Commands,
		Queries:       a.Queries,
		HealthChecker: health,
		Logger:        log,
	}
	if sched != nil {
		health.AddCheck("scheduler", handlers.NewFlagCheck(sched.IsRunning, "scheduler is not running"))
		deps.Jobs = sched
	}
	if recorder != nil {
		deps.MetricsHandler = promhttp.Handler()
	}
	if a.EventLog != nil {
		deps.Events = a.EventLog
	}
	return httpserver.NewServer(httpserver.ConfigFrom(cfg), deps)
}

// importObserver пишет в лог и метрики результат обработки файла.
func importObserver(recorder *metrics.Recorder, log *slog.Logger) importer.Observer {
	return func(kind, source string, err error) {
		if err != nil {
			log.Warn("inbox file rejected", "kind", kind, "source", source, "error", err)
			return
		}
		log.Info("inbox file imported", "kind", kind, "source", source)
		if recorder != nil {
			recorder.ImportApplied(kind, "inbox")
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для планировщика, шины событий и папки входящих.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slogLevel(cfg.Log.Level),
	}

	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// setupZap настраивает zap логгер для обработчиков команд и HTTP.
func setupZap(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Log.Level)
	if strings.EqualFold(cfg.Log.Format, "console") {
		opts.Format = logger.FormatConsole
	}
	return logger.New(opts)
}

func slogLevel(s string) slog.Level {
	switch logger.ParseLevel(s) {
	case logger.LevelDebug:
		return slog.LevelDebug
	case logger.LevelWarn:
		return slog.LevelWarn
	case logger.LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
