package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/groundwork-io/groundwork/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements engine.StateStore and engine.RunRecorder on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

const recordColumns = `name, type, provider_id, attributes, outputs, hash, dependencies, pending, last_run_id, last_applied`

// GetRecord retrieves a record by logical name, (nil, nil) when absent.
func (s *SQLiteStore) GetRecord(ctx context.Context, name string) (*engine.StateRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE name = ?`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return record, nil
}

// ListRecords returns all records ordered by logical name.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*engine.StateRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM records ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*engine.StateRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// PutRecord atomically writes a record, clearing any pending marker.
func (s *SQLiteStore) PutRecord(ctx context.Context, record *engine.StateRecord) error {
	attributes, err := marshalJSON(record.Attributes, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	outputs, err := marshalJSON(record.Outputs, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	dependencies, err := marshalJSON(record.Dependencies, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal dependencies: %w", err)
	}

	query := `
		INSERT INTO records (name, type, provider_id, attributes, outputs, hash, dependencies, pending, last_run_id, last_applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			provider_id = excluded.provider_id,
			attributes = excluded.attributes,
			outputs = excluded.outputs,
			hash = excluded.hash,
			dependencies = excluded.dependencies,
			pending = '',
			last_run_id = excluded.last_run_id,
			last_applied = excluded.last_applied,
			updated_at = CURRENT_TIMESTAMP
	`

	var lastApplied *time.Time
	if !record.LastApplied.IsZero() {
		lastApplied = &record.LastApplied
	}

	_, err = s.db.ExecContext(ctx, query,
		record.Name,
		record.Type,
		record.ProviderID,
		attributes,
		outputs,
		record.Hash,
		dependencies,
		record.LastRunID,
		lastApplied,
	)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}

	return nil
}

// DeleteRecord removes a record by logical name. Deleting an absent record
// is not an error.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// MarkPending writes the pending marker before a provider operation. For a
// resource with no record yet this creates a stub row carrying the marker.
func (s *SQLiteStore) MarkPending(ctx context.Context, name, resourceType, op, runID string) error {
	query := `
		INSERT INTO records (name, type, pending, last_run_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			pending = excluded.pending,
			last_run_id = excluded.last_run_id,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query, name, resourceType, op, runID)
	if err != nil {
		return fmt.Errorf("failed to mark pending: %w", err)
	}
	return nil
}

// ClearPending clears the pending marker without touching recorded state.
func (s *SQLiteStore) ClearPending(ctx context.Context, name string) error {
	query := `UPDATE records SET pending = '', updated_at = CURRENT_TIMESTAMP WHERE name = ?`

	_, err := s.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("failed to clear pending: %w", err)
	}
	return nil
}

// AcquireLock takes the exclusive run-level lock. The upsert only succeeds
// when the lock is free or already held by the same owner, so concurrent
// acquisitions race on a single row.
func (s *SQLiteStore) AcquireLock(ctx context.Context, owner string) error {
	query := `
		INSERT INTO lock (id, owner, acquired_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			acquired_at = excluded.acquired_at
		WHERE lock.owner = excluded.owner
	`

	result, err := s.db.ExecContext(ctx, query, owner, time.Now())
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var holder string
		_ = s.db.QueryRowContext(ctx, `SELECT owner FROM lock WHERE id = 1`).Scan(&holder)
		return engine.NewConflictError(
			fmt.Sprintf("deployment is locked by %s", holder), nil).
			WithCode(engine.ErrCodeLocked)
	}

	return nil
}

// ReleaseLock releases the run-level lock. Releasing an unheld lock is not
// an error.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lock WHERE id = 1 AND owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// LockHolder returns the current lock owner, or the empty string when the
// lock is free.
func (s *SQLiteStore) LockHolder(ctx context.Context) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner FROM lock WHERE id = 1`).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query lock: %w", err)
	}
	return owner, nil
}

// ForceReleaseLock removes the run lock regardless of owner. Used to recover
// from a stale lock left by a crashed run.
func (s *SQLiteStore) ForceReleaseLock(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM lock WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to force-release lock: %w", err)
	}
	return nil
}

// RecordRun persists the final result of a run.
func (s *SQLiteStore) RecordRun(ctx context.Context, result *engine.ApplyResult) error {
	results, err := marshalJSON(result.Results, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal run results: %w", err)
	}

	query := `
		INSERT INTO runs (id, plan_id, status, results, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		result.RunID,
		result.PlanID,
		string(result.Status),
		results,
		result.StartedAt,
		result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// GetRun retrieves a recorded run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.ApplyResult, error) {
	query := `SELECT id, plan_id, status, results, started_at, duration_ms FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("run not found: %s", id), nil).
			WithCode(engine.ErrCodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists recorded runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.ApplyResult, error) {
	query := `
		SELECT id, plan_id, status, results, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.ApplyResult{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*engine.StateRecord, error) {
	var (
		record       engine.StateRecord
		attributes   string
		outputs      string
		dependencies string
		lastApplied  *time.Time
	)

	err := row.Scan(
		&record.Name,
		&record.Type,
		&record.ProviderID,
		&attributes,
		&outputs,
		&record.Hash,
		&dependencies,
		&record.Pending,
		&record.LastRunID,
		&lastApplied,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(attributes), &record.Attributes); err != nil {
		return nil, fmt.Errorf("corrupt attributes for %s: %w", record.Name, err)
	}
	if err := json.Unmarshal([]byte(outputs), &record.Outputs); err != nil {
		return nil, fmt.Errorf("corrupt outputs for %s: %w", record.Name, err)
	}
	if err := json.Unmarshal([]byte(dependencies), &record.Dependencies); err != nil {
		return nil, fmt.Errorf("corrupt dependencies for %s: %w", record.Name, err)
	}
	if lastApplied != nil {
		record.LastApplied = *lastApplied
	}

	return &record, nil
}

func scanRun(row scanner) (*engine.ApplyResult, error) {
	var (
		run        engine.ApplyResult
		status     string
		results    string
		durationMS int64
	)

	err := row.Scan(&run.RunID, &run.PlanID, &status, &results, &run.StartedAt, &durationMS)
	if err != nil {
		return nil, err
	}

	run.Status = engine.RunStatus(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(results), &run.Results); err != nil {
		return nil, fmt.Errorf("corrupt results for run %s: %w", run.RunID, err)
	}

	return &run, nil
}

// marshalJSON encodes v, substituting the given literal for nil values so
// columns never hold SQL NULL JSON.
func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}
