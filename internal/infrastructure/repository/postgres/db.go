package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS entities (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	external_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	name TEXT NOT NULL,
	status TEXT,
	position TEXT,
	urn TEXT,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_external_id ON entities(kind, external_id);
CREATE INDEX IF NOT EXISTS idx_entities_status ON entities(kind, status);
CREATE INDEX IF NOT EXISTS idx_entities_urn ON entities(urn) WHERE urn IS NOT NULL;

CREATE TABLE IF NOT EXISTS uploads (
	id TEXT PRIMARY KEY,
	entity_kind TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	url TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	document_type TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_uploads_entity ON uploads(entity_kind, entity_id);
CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026041701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
