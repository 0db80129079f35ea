package store

import (
	"context"
	"fmt"

	"verdict.app/engine/core/db"
)

// Open picks the backend from the DSN: sqlite:// paths use the local file
// store, anything else is handed to pgx.
func Open(ctx context.Context, cfg db.Config) (ReportStore, error) {
	if cfg.IsSQLite() {
		return OpenSQLite(ctx, cfg.SQLitePath())
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s, err := NewPostgresReportStore(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return s, nil
}
