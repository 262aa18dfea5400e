package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS processing_attempts (
	id         TEXT PRIMARY KEY,
	asset_key  TEXT NOT NULL,
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (asset_key, stage)
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id         TEXT PRIMARY KEY,
	asset_key  TEXT NOT NULL,
	stage      TEXT NOT NULL,
	category   TEXT NOT NULL,
	attempts   INTEGER NOT NULL,
	last_error TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// Open opens (or creates) the sqlite ledger at path and applies the schema.
// Use ":memory:" for an ephemeral ledger in tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("ledger.open", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// sqlite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent handler fan-out.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return db, nil
}

// Close closes the ledger database.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil && logger != nil {
		logger.Error("ledger.close.failed", "error", err)
	}
}
