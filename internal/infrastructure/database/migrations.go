package database

import (
	"context"
	"fmt"
	"time"
)

// migration is one versioned schema change. The node schema is small enough
// to carry inline; versions are ordered and applied exactly once each.
type migration struct {
	version string
	name    string
	sql     string
}

// migrations is the full node schema, oldest first.
var migrations = []migration{
	{
		version: "20260115_000001",
		name:    "calibration_models",
		sql: `
			CREATE TABLE IF NOT EXISTS calibration_models (
				node_id   TEXT PRIMARY KEY,
				slope     REAL NOT NULL,
				intercept REAL NOT NULL,
				points    INTEGER NOT NULL DEFAULT 0,
				fitted_at TEXT NOT NULL
			)
		`,
	},
	{
		version: "20260115_000002",
		name:    "fsm_history",
		sql: `
			CREATE TABLE IF NOT EXISTS fsm_history (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				node_id    TEXT NOT NULL,
				state      TEXT NOT NULL,
				entered_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_fsm_history_node
				ON fsm_history(node_id, entered_at)
		`,
	},
	{
		version: "20260115_000003",
		name:    "message_log",
		sql: `
			CREATE TABLE IF NOT EXISTS message_log (
				id        INTEGER PRIMARY KEY AUTOINCREMENT,
				node_id   TEXT NOT NULL,
				topic     TEXT NOT NULL,
				message   TEXT NOT NULL,
				logged_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_message_log_node
				ON message_log(node_id, logged_at)
		`,
	},
}

// Migrate applies all pending schema migrations.
//
// Each migration runs in its own transaction: if migration N fails, earlier
// migrations stay committed, N rolls back, and later ones are not attempted.
// Re-running Migrate after fixing the issue continues from N.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any migration fails (that migration is rolled back)
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// createMigrationsTable creates the schema_migrations table if needed.
func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// appliedVersions returns the set of migration versions already applied.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return applied, nil
}

// applyMigration applies a single migration within a transaction.
func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version,
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
