package experiment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wavelab/labnode/internal/infrastructure/database"
)

// SQLiteStore persists controller state in the node's local database.
// It implements the Store port.
type SQLiteStore struct {
	db *database.DB
}

// NewStore wraps an opened (and migrated) database.
func NewStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LoadCalibration returns the persisted calibration model for a node, or
// nil when none has been saved yet.
func (s *SQLiteStore) LoadCalibration(ctx context.Context, nodeID string) (*CalibrationModel, error) {
	var model CalibrationModel
	err := s.db.QueryRowContext(ctx,
		"SELECT slope, intercept FROM calibration_models WHERE node_id = ?",
		nodeID,
	).Scan(&model.Slope, &model.Intercept)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading calibration model: %w", err)
	}
	return &model, nil
}

// SaveCalibration upserts the node's calibration model.
func (s *SQLiteStore) SaveCalibration(ctx context.Context, nodeID string, model CalibrationModel, points int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_models (node_id, slope, intercept, points, fitted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			slope = excluded.slope,
			intercept = excluded.intercept,
			points = excluded.points,
			fitted_at = excluded.fitted_at`,
		nodeID, model.Slope, model.Intercept, points,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving calibration model: %w", err)
	}
	return nil
}

// SaveHistory appends the session's transition history in one transaction.
func (s *SQLiteStore) SaveHistory(ctx context.Context, nodeID string, history []StateRecord) error {
	if len(history) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO fsm_history (node_id, state, entered_at) VALUES (?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	defer stmt.Close()

	for _, record := range history {
		if _, err := stmt.ExecContext(ctx, nodeID, record.State,
			record.EnteredAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("saving history: %w", err)
		}
	}

	return tx.Commit()
}

// SaveMessageLog appends the captured pub/sub traffic in one transaction.
func (s *SQLiteStore) SaveMessageLog(ctx context.Context, nodeID string, entries []MessageLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving message log: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO message_log (node_id, topic, message, logged_at) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("saving message log: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, nodeID, entry.Topic, entry.Message,
			entry.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("saving message log: %w", err)
		}
	}

	return tx.Commit()
}

// LoadHistory returns a node's persisted transition history, oldest first.
// Used by diagnostics tooling after a run.
func (s *SQLiteStore) LoadHistory(ctx context.Context, nodeID string) ([]StateRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT state, entered_at FROM fsm_history WHERE node_id = ? ORDER BY id",
		nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var history []StateRecord
	for rows.Next() {
		var (
			record StateRecord
			at     string
		)
		if err := rows.Scan(&record.State, &at); err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		record.EnteredAt, _ = time.Parse(time.RFC3339Nano, at)
		history = append(history, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return history, nil
}
