package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/config"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/db"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/logger"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/migrate"
)

// App bundles the opened workspace: database, config, logger and engine.
type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Log       *log.Logger
	Engine    engine.Engine
}

// Options tune Open. Zero values fall back to the workspace config.
type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/nomina.yml.
	ConfigPath string
	LogLevel   string
	Debug      bool
}

// Open loads config, opens and migrates the workspace database and wires the engine.
// A missing nomina.yml means defaults.
func Open(opts Options) (*App, error) {
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(workspace)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	l, err := logger.New(logger.Config{
		Level: level,
		Debug: cfg.Log.Debug || opts.Debug,
		Dir:   LogDir(workspace),
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Debug("workspace opened", "workspace", workspace, "db", db.Path(workspace))
	return &App{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Log:       l,
		Engine:    engine.New(conn, cfg, l),
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// LogDir is where the rotating log file of a workspace lives.
func LogDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".nomina", "logs")
}

// EnsureBootstrapAdmin grants the first escalated role to actorID when no actor holds
// any escalated role yet, so a fresh workspace has someone able to administer it.
// It reports whether a grant happened.
func (a *App) EnsureBootstrapAdmin(ctx context.Context, actorID string) (bool, error) {
	roles := a.Config.Ledger.EscalatedRoles
	if actorID == "" || len(roles) == 0 {
		return false, nil
	}
	for _, role := range roles {
		holders, err := a.Engine.Repo.ActorsWithRole(ctx, role)
		if err != nil {
			return false, fmt.Errorf("load role holders: %w", err)
		}
		if len(holders) > 0 {
			return false, nil
		}
	}
	role := roles[len(roles)-1]
	if err := a.Engine.GrantRole(ctx, actorID, role, actorID); err != nil {
		return false, err
	}
	a.Log.Info("bootstrap role granted", "actor", actorID, "role", role)
	return true, nil
}
