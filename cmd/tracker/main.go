// Package main - точка входа командной строки трекера участия.
//
// Каждая команда открывает хранилище, выполняет одну операцию и закрывает
// его. Состояние урока (текущий ученик, пул, фильтр) живёт в хранилище,
// поэтому "tracker select" и следующий "tracker correct" видят одно и то же.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/classroom-hub/participation-tracker/config"
	"github.com/classroom-hub/participation-tracker/internal/app"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/postgres"
	"github.com/classroom-hub/participation-tracker/internal/interface/cli"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// version задаётся через -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Ctrl+C прерывает долгие операции (импорт, миграции).
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(load, version)
	if err := root.ExecuteContext(ctx); err != nil {
		cli.NewPresenter(os.Stderr).Failure(err)
		stop()
		os.Exit(1)
	}
}

// load собирает приложение для одной команды.
func load(ctx context.Context) (*cli.Runtime, func() error, error) {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// stdout занят выводом команд, логи идут в stderr и только от WARN.
	// ─────────────────────────────────────────────────────────────────────────
	level := logger.ParseLevel(cfg.Log.Level)
	if level < logger.LevelWarn {
		level = logger.LevelWarn
	}
	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  level,
		Format: logger.FormatConsole,
	})
	slogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. СБОРКА ПРИЛОЖЕНИЯ
	// Обработчики событий синхронные: процесс завершается сразу после команды.
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, app.Options{
		Config:      cfg,
		Logger:      log,
		Slog:        slogger,
		AsyncEvents: false,
	})
	if err != nil {
		log.Sync()
		return nil, nil, err
	}

	rt := &cli.Runtime{
		Commands: a.Commands,
		Queries:  a.Queries,
		Clock:    timeutil.Now,
	}
	if a.Backend.Postgres != nil {
		rt.Migrator = postgres.NewMigrator(a.Backend.Postgres)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ОСВОБОЖДЕНИЕ РЕСУРСОВ
	// ─────────────────────────────────────────────────────────────────────────
	release := func() error {
		defer log.Sync()
		return a.Close()
	}
	return rt, release, nil
}
