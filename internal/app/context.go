package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"portfolio/internal/config"
	"portfolio/internal/db"
	"portfolio/internal/engine"
	"portfolio/internal/migrate"
)

// Workspace is an opened, migrated workspace ready for use.
type Workspace struct {
	Path   string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// Open resolves the workspace config (falling back to defaults), applies
// migrations and seeds master data from config when the tables are empty.
func Open(ctx context.Context, workspace, actorID string, logger *slog.Logger) (*Workspace, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, cfg)
	if logger != nil {
		eng.Log = logger
	}
	if err := eng.EnsureMasterData(ctx, actorID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed master data: %w", err)
	}
	return &Workspace{Path: workspace, DB: conn, Config: cfg, Engine: eng}, nil
}
