package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/engine"
	"sitework/internal/logging"
	"sitework/internal/migrate"
	"sitework/internal/notify"
	"sitework/internal/repo"
)

// Runtime bundles everything a command needs for one workspace.
type Runtime struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Logger    *slog.Logger
	Engine    engine.Engine

	shutdownLogs func(context.Context) error
}

// Options tweak Open. Override runs after the workspace config is loaded and
// before it is validated, so flags and env vars win over the file.
type Options struct {
	LogOutput io.Writer
	Override  func(*config.Config)
}

// Open prepares the workspace database, applies migrations and loads the
// workspace config, falling back to defaults when no config file exists.
func Open(ctx context.Context, workspace string, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Override != nil {
		opts.Override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	out := opts.LogOutput
	if out == nil {
		out = io.Discard
	}
	logger, shutdown, err := logging.Setup(ctx, out, cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		shutdown(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Runtime{
		Workspace:    workspace,
		DB:           conn,
		Config:       cfg,
		Logger:       logger,
		Engine:       engine.New(conn, cfg, logger),
		shutdownLogs: shutdown,
	}, nil
}

// Dispatcher returns the outbox dispatcher for this runtime, or nil when
// notifications are disabled.
func (rt *Runtime) Dispatcher() *notify.Dispatcher {
	if !rt.Config.Notifications.Enabled {
		return nil
	}
	n := rt.Config.Notifications
	return notify.NewDispatcher(repo.Repo{DB: rt.DB}, notify.SenderFor(n, rt.Logger), n, rt.Logger)
}

// Close releases the database and flushes pending log exports.
func (rt *Runtime) Close(ctx context.Context) error {
	dbErr := rt.DB.Close()
	if rt.shutdownLogs != nil {
		if err := rt.shutdownLogs(ctx); err != nil && dbErr == nil {
			return err
		}
	}
	return dbErr
}
