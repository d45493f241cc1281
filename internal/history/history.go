// Package history records scan runs in the SQLite history database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eargollo/songhash/internal/scan"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("scan run not found")

// Entry is one row of scan_history.
type Entry struct {
	ID              int64      `json:"id"`
	Library         string     `json:"library"`
	Directory       string     `json:"directory"`
	DatabaseFile    string     `json:"database_file"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	Status          string     `json:"status"`
	TriggeredBy     string     `json:"triggered_by"`
	FilesDiscovered int64      `json:"files_discovered"`
	FilesStale      int64      `json:"files_stale"`
	FilesHashed     int64      `json:"files_hashed"`
	BytesRead       int64      `json:"bytes_read"`
	Records         int64      `json:"records"`
	DatabaseWritten bool       `json:"database_written"`
	Error           string     `json:"error,omitempty"`
	DurationMs      *int64     `json:"duration_ms"`
}

// Store reads and writes scan_history. It implements scan.Recorder.
type Store struct {
	db *sql.DB
}

// New creates a Store on an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ scan.Recorder = (*Store)(nil)

// BeginRun inserts a running row and returns its ID.
func (s *Store) BeginRun(ctx context.Context, run scan.Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history
			(library, directory, database_file, started_at, status, triggered_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.Library, run.Directory, run.DatabaseFile,
		run.StartedAt.UnixMilli(), string(scan.StatusRunning), run.TriggeredBy)
	if err != nil {
		return 0, fmt.Errorf("insert scan run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stores the final status and counters of run id.
func (s *Store) FinishRun(ctx context.Context, id int64, status scan.Status, finishedAt time.Time, res scan.Result, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_history
		SET status           = ?,
		    finished_at      = ?,
		    duration_ms      = ? - started_at,
		    files_discovered = ?,
		    files_stale      = ?,
		    files_hashed     = ?,
		    bytes_read       = ?,
		    records          = ?,
		    database_written = ?,
		    error            = ?
		WHERE id = ?`,
		string(status), finishedAt.UnixMilli(), finishedAt.UnixMilli(),
		res.FilesDiscovered, res.FilesStale, res.FilesHashed, res.BytesRead,
		res.Records, res.Written, errText, id)
	if err != nil {
		return fmt.Errorf("finish scan run %d: %w", id, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, library, directory, database_file, started_at, finished_at,
	       status, triggered_by, files_discovered, files_stale, files_hashed,
	       bytes_read, records, database_written, error, duration_ms
	FROM scan_history`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e          Entry
		startedAt  int64
		finishedAt sql.NullInt64
		errText    sql.NullString
		durMs      sql.NullInt64
	)
	if err := row.Scan(
		&e.ID, &e.Library, &e.Directory, &e.DatabaseFile, &startedAt, &finishedAt,
		&e.Status, &e.TriggeredBy, &e.FilesDiscovered, &e.FilesStale, &e.FilesHashed,
		&e.BytesRead, &e.Records, &e.DatabaseWritten, &errText, &durMs,
	); err != nil {
		return Entry{}, err
	}
	e.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		e.FinishedAt = &t
	}
	e.Error = errText.String
	if durMs.Valid {
		e.DurationMs = &durMs.Int64
	}
	return e, nil
}

// List returns runs newest first along with the total row count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list scan runs: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scan runs: %w", err)
	}
	return entries, total, nil
}

// Get returns run id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get scan run %d: %w", id, err)
	}
	return e, nil
}

// LastCompleted returns the most recently finished completed run, or nil.
func (s *Store) LastCompleted(ctx context.Context) (*Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectColumns+`
		WHERE status = 'completed'
		ORDER BY finished_at DESC, id DESC
		LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last completed scan run: %w", err)
	}
	return &e, nil
}

// MarkStaleRunsFailed marks any rows still in 'running' state as 'failed'.
// This should be called once at startup in case a previous process crashed
// mid-scan.
func (s *Store) MarkStaleRunsFailed(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_history
		SET status = 'failed', finished_at = ?, error = 'interrupted'
		WHERE status = 'running'`,
		time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark stale scan runs failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale scan runs as failed", "count", n)
	}
	return nil
}
