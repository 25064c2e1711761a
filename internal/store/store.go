package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"posync/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store is the crash-durable local state: the FIFO operation queue and
// the snapshot cache. There is no fallback beneath it; storage errors
// surface to the caller.
type Store struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func Open(path string, logger *zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("durable store initialized")
	}
	return &Store{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pending_operations (
            id TEXT PRIMARY KEY,
            endpoint TEXT NOT NULL,
            method TEXT NOT NULL,
            payload TEXT,
            retry_count INTEGER NOT NULL DEFAULT 0,
            created_at INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS offline_snapshots (
            type TEXT PRIMARY KEY,
            data TEXT NOT NULL,
            last_updated DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_pending_operations_created_at ON pending_operations(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue appends a pending operation to the queue. The row is committed
// before Enqueue returns, so an acknowledged write survives a crash.
func (s *Store) Enqueue(ctx context.Context, endpoint, method string, payload json.RawMessage) (string, error) {
	now := time.Now()
	id := fmt.Sprintf("%s-%s-%d", method, endpoint, now.UnixNano())

	query := `INSERT INTO pending_operations (id, endpoint, method, payload, retry_count, created_at)
              VALUES (?, ?, ?, ?, 0, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, endpoint, method, string(payload), now.UnixNano()); err != nil {
		return "", fmt.Errorf("failed to enqueue operation: %w", err)
	}

	return id, nil
}

// ListPending returns all queued operations in creation order.
func (s *Store) ListPending(ctx context.Context) ([]models.PendingOperation, error) {
	query := `SELECT id, endpoint, method, payload, retry_count, created_at
              FROM pending_operations ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var op models.PendingOperation
		var payload string
		var createdAt int64
		if err := rows.Scan(&op.ID, &op.Endpoint, &op.Method, &payload, &op.RetryCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending operation: %w", err)
		}
		if payload != "" {
			op.Payload = json.RawMessage(payload)
		}
		op.CreatedAt = time.Unix(0, createdAt)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Remove deletes one queued operation. Removing an id that does not
// exist is a no-op, not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove operation %s: %w", id, err)
	}
	return nil
}

// IncrementRetry bumps the retry counter of an operation and returns the
// new value.
func (s *Store) IncrementRetry(ctx context.Context, id string) (int, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE pending_operations SET retry_count = retry_count + 1 WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("failed to increment retry count for %s: %w", id, err)
	}

	var count int
	row := s.db.QueryRowContext(ctx, `SELECT retry_count FROM pending_operations WHERE id = ?`, id)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read retry count for %s: %w", id, err)
	}
	return count, nil
}

// QueueDepth returns the number of queued operations.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending operations: %w", err)
	}
	return count, nil
}

// PutSnapshot stores the last-known-good data for a resource type,
// overwriting any previous snapshot.
func (s *Store) PutSnapshot(ctx context.Context, resourceType string, data json.RawMessage) error {
	query := `INSERT INTO offline_snapshots (type, data, last_updated) VALUES (?, ?, ?)
              ON CONFLICT(type) DO UPDATE SET data = excluded.data, last_updated = excluded.last_updated`
	if _, err := s.db.ExecContext(ctx, query, resourceType, string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", resourceType, err)
	}
	return nil
}

// GetSnapshot returns the cached data for a resource type, or nil when
// nothing has been cached yet.
func (s *Store) GetSnapshot(ctx context.Context, resourceType string) (json.RawMessage, error) {
	var data string
	row := s.db.QueryRowContext(ctx, `SELECT data FROM offline_snapshots WHERE type = ?`, resourceType)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", resourceType, err)
	}
	return json.RawMessage(data), nil
}

// Snapshot returns the full snapshot row including its timestamp.
func (s *Store) Snapshot(ctx context.Context, resourceType string) (*models.Snapshot, error) {
	var snap models.Snapshot
	var data string
	row := s.db.QueryRowContext(ctx, `SELECT type, data, last_updated FROM offline_snapshots WHERE type = ?`, resourceType)
	if err := row.Scan(&snap.Type, &data, &snap.LastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot %s: %w", resourceType, err)
	}
	snap.Data = json.RawMessage(data)
	return &snap, nil
}

// Clear wipes both collections. Used by tests and the explicit
// cache-reset path; snapshots are never deleted otherwise.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_operations`); err != nil {
		return fmt.Errorf("failed to clear pending operations: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM offline_snapshots`); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}
