package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

// RunRecord represents one recorded command execution
type RunRecord struct {
	ID          string            `json:"id"`
	Trigger     model.TriggerKind `json:"trigger"`
	Command     string            `json:"command"`
	Status      model.RunStatus   `json:"status"`
	ExitCode    int               `json:"exit_code"`
	Stdout      string            `json:"stdout,omitempty"`
	Stderr      string            `json:"stderr,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Duration    time.Duration     `json:"duration,omitempty"`
}

// RunHistoryStorage defines the interface for run history storage
type RunHistoryStorage interface {
	// Store stores a run record
	Store(ctx context.Context, record *RunRecord) error

	// Update updates an existing run record
	Update(ctx context.Context, record *RunRecord) error

	// Get retrieves a run record by ID
	Get(ctx context.Context, id string) (*RunRecord, error)

	// List retrieves run records with pagination and filters
	List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*RunRecord, error)

	// Count returns the total number of records matching the filters
	Count(ctx context.Context, filters map[string]interface{}) (int, error)

	// DeleteBefore deletes records started before the specified time
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteRunHistory implements RunHistoryStorage using SQLite
type SQLiteRunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRunHistory creates a new SQLite-based run history storage
func NewSQLiteRunHistory(logger *zap.Logger, dbPath string) (*SQLiteRunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteRunHistory{
		logger: logger.Named("run-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteRunHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_history (
			id TEXT PRIMARY KEY,
			trigger_kind TEXT NOT NULL,
			command TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER,
			stdout TEXT,
			stderr TEXT,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_trigger ON run_history(trigger_kind);
		CREATE INDEX IF NOT EXISTS idx_run_history_status ON run_history(status);
		CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements RunHistoryStorage.Store
func (s *SQLiteRunHistory) Store(ctx context.Context, record *RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history (
			id, trigger_kind, command, status, started_at
		) VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.Trigger,
		record.Command,
		record.Status,
		record.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store run record: %w", err)
	}
	return nil
}

// Update implements RunHistoryStorage.Update
func (s *SQLiteRunHistory) Update(ctx context.Context, record *RunRecord) error {
	var completedAt sql.NullTime
	if record.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *record.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE run_history SET
			status = ?,
			exit_code = ?,
			stdout = ?,
			stderr = ?,
			error = ?,
			completed_at = ?,
			duration = ?
		WHERE id = ?`,
		record.Status,
		record.ExitCode,
		sql.NullString{String: record.Stdout, Valid: record.Stdout != ""},
		sql.NullString{String: record.Stderr, Valid: record.Stderr != ""},
		sql.NullString{String: record.Error, Valid: record.Error != ""},
		completedAt,
		sql.NullInt64{Int64: int64(record.Duration), Valid: record.Duration != 0},
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run record: %w", err)
	}
	return nil
}

// Get implements RunHistoryStorage.Get
func (s *SQLiteRunHistory) Get(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger_kind, command, status, exit_code, stdout, stderr, error,
			started_at, completed_at, duration
		FROM run_history
		WHERE id = ?`, id)

	record, err := scanRunRecord(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}
	return record, nil
}

// List implements RunHistoryStorage.List
func (s *SQLiteRunHistory) List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*RunRecord, error) {
	query := "SELECT id, trigger_kind, command, status, exit_code, stdout, stderr, error, started_at, completed_at, duration FROM run_history"
	query, args := appendFilters(query, filters)
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanRunRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements RunHistoryStorage.Count
func (s *SQLiteRunHistory) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM run_history"
	query, args := appendFilters(query, filters)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count run history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements RunHistoryStorage.DeleteBefore
func (s *SQLiteRunHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM run_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete run history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old run records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteRunHistory) Close() error {
	return s.db.Close()
}

// appendFilters adds a WHERE clause for each filter key
func appendFilters(query string, filters map[string]interface{}) (string, []interface{}) {
	args := make([]interface{}, 0, len(filters))
	if len(filters) > 0 {
		query += " WHERE"
		first := true
		for key, value := range filters {
			if !first {
				query += " AND"
			}
			query += fmt.Sprintf(" %s = ?", key)
			args = append(args, value)
			first = false
		}
	}
	return query, args
}

// scanRunRecord scans one row into a RunRecord
func scanRunRecord(scan func(dest ...interface{}) error) (*RunRecord, error) {
	record := &RunRecord{}
	var exitCode sql.NullInt64
	var stdout, stderr, errorStr sql.NullString
	var completedAt sql.NullTime
	var durationNanos sql.NullInt64

	err := scan(
		&record.ID,
		&record.Trigger,
		&record.Command,
		&record.Status,
		&exitCode,
		&stdout,
		&stderr,
		&errorStr,
		&record.StartedAt,
		&completedAt,
		&durationNanos,
	)
	if err != nil {
		return nil, err
	}

	if exitCode.Valid {
		record.ExitCode = int(exitCode.Int64)
	}
	if stdout.Valid {
		record.Stdout = stdout.String
	}
	if stderr.Valid {
		record.Stderr = stderr.String
	}
	if errorStr.Valid {
		record.Error = errorStr.String
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	if durationNanos.Valid {
		record.Duration = time.Duration(durationNanos.Int64)
	}

	return record, nil
}
