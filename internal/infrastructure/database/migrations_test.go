package database

import (
	"context"
	"testing"
)

func openMigrated(t *testing.T) *DB {
	t.Helper()

	db, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openMigrated(t)

	for _, table := range []string{"calibration_models", "fsm_history", "message_log", "schema_migrations"} {
		var name string
		err := db.QueryRowContext(context.Background(),
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after Migrate: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openMigrated(t)

	// Second run must be a no-op, not a duplicate-version error.
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM schema_migrations",
	).Scan(&count)
	if err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("schema_migrations rows = %d, want %d", count, len(migrations))
	}
}

func TestMigratedSchemaAcceptsWrites(t *testing.T) {
	db := openMigrated(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO calibration_models (node_id, slope, intercept, points, fitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		"carriage-01", 2.5, -0.1, 12, "2026-01-15T10:00:00Z",
	)
	if err != nil {
		t.Fatalf("inserting calibration model: %v", err)
	}

	// Upsert replaces, keyed by node.
	_, err = db.ExecContext(ctx,
		`INSERT INTO calibration_models (node_id, slope, intercept, points, fitted_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET
		   slope=excluded.slope, intercept=excluded.intercept,
		   points=excluded.points, fitted_at=excluded.fitted_at`,
		"carriage-01", 3.0, 0.0, 20, "2026-01-16T10:00:00Z",
	)
	if err != nil {
		t.Fatalf("upserting calibration model: %v", err)
	}

	var slope float64
	err = db.QueryRowContext(ctx,
		"SELECT slope FROM calibration_models WHERE node_id=?", "carriage-01",
	).Scan(&slope)
	if err != nil {
		t.Fatalf("reading calibration model: %v", err)
	}
	if slope != 3.0 {
		t.Errorf("slope = %v, want 3.0 (upsert should replace)", slope)
	}
}
