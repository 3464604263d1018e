package store

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; entry i brings the schema to version i+1.
// Existing entries must never be edited, only appended to.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		key            TEXT PRIMARY KEY,
		goal_id        TEXT NOT NULL DEFAULT '',
		goal_name      TEXT NOT NULL DEFAULT '',
		phase          TEXT NOT NULL,
		active_concept TEXT NOT NULL DEFAULT '',
		data           TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

	CREATE TABLE IF NOT EXISTS learning_log (
		sequence     INTEGER PRIMARY KEY,
		session_key  TEXT NOT NULL,
		event        TEXT NOT NULL,
		phase_before TEXT NOT NULL DEFAULT '',
		phase_after  TEXT NOT NULL DEFAULT '',
		concept_id   TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		score        INTEGER NULL,
		timestamp    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_session ON learning_log(session_key, sequence);

	CREATE TABLE IF NOT EXISTS llm_request_events (
		sequence      INTEGER PRIMARY KEY,
		session_key   TEXT NOT NULL DEFAULT '',
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		purpose       TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		success       INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT '',
		timestamp     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_llm_purpose ON llm_request_events(purpose);`,
}

// SchemaVersion is the latest schema version supported by the migrator.
var SchemaVersion = len(migrations)

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	for v := current; v < len(migrations); v++ {
		if err := applyMigration(db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, ddl string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin v%d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(ddl); err != nil {
		return fmt.Errorf("migrate: apply v%d: %w", version, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("migrate: record v%d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit v%d: %w", version, err)
	}
	return nil
}
