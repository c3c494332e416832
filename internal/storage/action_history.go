package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hvolkman/stock-report/internal/model"
)

// ActionRun is one completed process/send/capture/test-email run.
type ActionRun struct {
	ID        string           `json:"id"`
	Kind      model.ActionKind `json:"kind"`
	Day       string           `json:"day"`
	Trigger   model.Trigger    `json:"trigger"`
	Status    model.RunStatus  `json:"status"`
	Detail    string           `json:"detail,omitempty"`
	Error     string           `json:"error,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// NewActionRun builds a finished run record from an action's outcome.
func NewActionRun(kind model.ActionKind, day string, trigger model.Trigger, started time.Time, detail string, err error) *ActionRun {
	run := &ActionRun{
		ID:        uuid.New().String(),
		Kind:      kind,
		Day:       day,
		Trigger:   trigger,
		Status:    model.RunStatusCompleted,
		Detail:    detail,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
	}
	return run
}

// ActionHistoryStore defines the interface for action history storage.
type ActionHistoryStore interface {
	// Store records a completed action run.
	Store(ctx context.Context, run *ActionRun) error

	// List retrieves runs with pagination, newest first. Filters match
	// column equality (kind, day, status, trigger).
	List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*ActionRun, error)

	// Count returns the number of runs matching the filters.
	Count(ctx context.Context, filters map[string]interface{}) (int, error)

	// DeleteBefore deletes runs started before the given time.
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteActionHistory implements ActionHistoryStore using SQLite.
type SQLiteActionHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteActionHistory opens (or creates) the history database at dbPath.
func NewSQLiteActionHistory(logger *zap.Logger, dbPath string) (*SQLiteActionHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteActionHistory{
		logger: logger.Named("history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteActionHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS action_history (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			day TEXT NOT NULL,
			trigger_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT,
			error TEXT,
			started_at DATETIME NOT NULL,
			duration INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_action_history_kind ON action_history(kind);
		CREATE INDEX IF NOT EXISTS idx_action_history_day ON action_history(day);
		CREATE INDEX IF NOT EXISTS idx_action_history_status ON action_history(status);
		CREATE INDEX IF NOT EXISTS idx_action_history_started_at ON action_history(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements ActionHistoryStore.Store
func (s *SQLiteActionHistory) Store(ctx context.Context, run *ActionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_history (
			id, kind, day, trigger_kind, status, detail, error, started_at, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		string(run.Kind),
		run.Day,
		string(run.Trigger),
		string(run.Status),
		sql.NullString{String: run.Detail, Valid: run.Detail != ""},
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.StartedAt,
		int64(run.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to store action run: %w", err)
	}
	return nil
}

var filterColumns = map[string]string{
	"kind":    "kind",
	"day":     "day",
	"status":  "status",
	"trigger": "trigger_kind",
}

func buildWhere(filters map[string]interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clause := " WHERE"
	args := make([]interface{}, 0, len(filters))
	first := true
	for key, value := range filters {
		col, ok := filterColumns[key]
		if !ok {
			return "", nil, fmt.Errorf("unknown filter column: %s", key)
		}
		if !first {
			clause += " AND"
		}
		clause += fmt.Sprintf(" %s = ?", col)
		args = append(args, value)
		first = false
	}
	return clause, args, nil
}

// List implements ActionHistoryStore.List
func (s *SQLiteActionHistory) List(ctx context.Context, filters map[string]interface{}, offset, limit int) ([]*ActionRun, error) {
	query := "SELECT id, kind, day, trigger_kind, status, detail, error, started_at, duration FROM action_history"
	where, args, err := buildWhere(filters)
	if err != nil {
		return nil, err
	}
	query += where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list action history: %w", err)
	}
	defer rows.Close()

	var runs []*ActionRun
	for rows.Next() {
		run := &ActionRun{}
		var detail, errStr sql.NullString
		var durationNanos sql.NullInt64

		err := rows.Scan(
			&run.ID,
			&run.Kind,
			&run.Day,
			&run.Trigger,
			&run.Status,
			&detail,
			&errStr,
			&run.StartedAt,
			&durationNanos,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action run: %w", err)
		}

		if detail.Valid {
			run.Detail = detail.String
		}
		if errStr.Valid {
			run.Error = errStr.String
		}
		if durationNanos.Valid {
			run.Duration = time.Duration(durationNanos.Int64)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return runs, nil
}

// Count implements ActionHistoryStore.Count
func (s *SQLiteActionHistory) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM action_history"
	where, args, err := buildWhere(filters)
	if err != nil {
		return 0, err
	}
	query += where

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count action history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements ActionHistoryStore.DeleteBefore
func (s *SQLiteActionHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM action_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete action history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old action history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteActionHistory) Close() error {
	return s.db.Close()
}
