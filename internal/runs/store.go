package runs

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vip/internal/dispatch"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("run not found")

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists runs in a SQLite database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// Open opens or creates runs.db inside dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	dbPath := filepath.Join(dir, "runs.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open runs database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize runs schema: %w", err)
	}

	logger.Debug("Opened runs database", "path", dbPath)
	return store, nil
}

func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			queued_at TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Record inserts a finished run.
func (s *Store) Record(run *Run) error {
	_, err := s.conn.Exec(`
		INSERT INTO runs (id, kind, status, queued_at, started_at, completed_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Kind,
		string(run.Status),
		formatTime(run.QueuedAt),
		formatTime(run.StartedAt),
		formatTime(run.CompletedAt),
		run.DurationMs,
		nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// OnComplete records a dispatcher completion. Storage errors are logged.
func (s *Store) OnComplete(c dispatch.Completion) {
	if err := s.Record(FromCompletion(c)); err != nil {
		s.logger.Warn("Failed to record run", "id", c.ID, "error", err.Error())
	}
}

// Get retrieves a run by id.
func (s *Store) Get(id string) (*Run, error) {
	row := s.conn.QueryRow(`
		SELECT id, kind, status, queued_at, started_at, completed_at, duration_ms, error
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List retrieves runs matching opts, newest first.
func (s *Store) List(opts ListOptions) (*ListResponse, error) {
	var conditions []string
	var args []any

	if opts.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(opts.Status))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM runs %s", whereClause)
	if err := s.conn.QueryRow(countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, kind, status, queued_at, started_at, completed_at, duration_ms, error
		FROM runs %s
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, limit, offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &ListResponse{Runs: []*Run{}, TotalCount: totalCount}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result.Runs = append(result.Runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return result, nil
}

// CleanupOld removes runs that completed more than retention ago.
func (s *Store) CleanupOld(retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-retention))

	result, err := s.conn.Exec(`DELETE FROM runs WHERE completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old runs: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var status, queuedAt, startedAt, completedAt string
	var errMsg sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Kind,
		&status,
		&queuedAt,
		&startedAt,
		&completedAt,
		&run.DurationMs,
		&errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}

	run.Status = Status(status)
	run.Error = errMsg.String
	run.QueuedAt = parseTime(queuedAt)
	run.StartedAt = parseTime(startedAt)
	run.CompletedAt = parseTime(completedAt)

	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
