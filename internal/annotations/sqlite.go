package annotations

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"elicit/internal/config"
)

//go:embed schema_sqlite.sql
var sqliteSchemaSQL string

// schemaVersion is the current schema version for both backends. Bump it when
// either schema changes; existing databases must then be recreated.
const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists media and jobs in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite initializes or connects to the job database under data_dir.
func OpenSQLite(cfg *config.Config) (*SQLiteStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return openSQLitePath(cfg.DatabasePath())
}

func openSQLitePath(path string) (*SQLiteStore, error) {
	// Pragmas go in the DSN so every pooled connection gets them, including
	// the dedicated connections handed to stage tasks.
	query := url.Values{}
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "busy_timeout(5000)")
	dsn := "file:" + path + "?" + query.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// RegisterMedia records a media file, returning the existing row when the
// path is already registered.
func (s *SQLiteStore) RegisterMedia(ctx context.Context, path, title string) (*Media, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("register media: path is required")
	}
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO media_files (path, title, created_at) VALUES (?, ?, ?)
             ON CONFLICT(path) DO NOTHING`,
			path, title, sqliteNow())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert media: %w", err)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media_files WHERE path = ?", path)
	return scanSQLiteMedia(row)
}

// GetMedia fetches a media file by id.
func (s *SQLiteStore) GetMedia(ctx context.Context, id int64) (*Media, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+mediaColumns+" FROM media_files WHERE id = ?", id)
	return scanSQLiteMedia(row)
}

// ListMedia returns every registered media file ordered by id.
func (s *SQLiteStore) ListMedia(ctx context.Context) ([]*Media, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+mediaColumns+" FROM media_files ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []*Media
	for rows.Next() {
		media, err := scanSQLiteMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, media)
	}
	return out, rows.Err()
}

// CreateJob inserts a job with both stages pending.
func (s *SQLiteStore) CreateJob(ctx context.Context, job NewJob) (*Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetMedia(ctx, job.MediaID); err != nil {
		return nil, err
	}
	now := sqliteNow()
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO annotation_jobs (
                media_id, start_time, end_time, audio_path, language,
                transcription_status, enhancement_status, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.MediaID, job.StartTime, job.EndTime, job.AudioPath, nullableString(job.Language),
			string(StatusPending), string(StatusPending), now, now,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*Job, error) {
	return getSQLiteJob(ctx, s.db, id)
}

// ListJobs returns jobs for one media file, or all jobs when mediaID is 0.
func (s *SQLiteStore) ListJobs(ctx context.Context, mediaID int64) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if mediaID > 0 {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+jobColumns+" FROM annotation_jobs WHERE media_id = ? ORDER BY start_time, id", mediaID)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT "+jobColumns+" FROM annotation_jobs ORDER BY id")
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// DeleteJob removes a job and returns the deleted record.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id int64) (*Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	var affected int64
	err = retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM annotation_jobs WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delete job: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return job, nil
}

// Summary counts jobs per stage status.
func (s *SQLiteStore) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transcription_status, enhancement_status, COUNT(1)
         FROM annotation_jobs GROUP BY transcription_status, enhancement_status`)
	if err != nil {
		return nil, fmt.Errorf("summarize jobs: %w", err)
	}
	defer rows.Close()

	summary := newSummary()
	for rows.Next() {
		var (
			transcription, enhancement string
			count                      int
		)
		if err := rows.Scan(&transcription, &enhancement, &count); err != nil {
			return nil, err
		}
		addSummaryRow(summary, transcription, enhancement, count)
	}
	return summary, rows.Err()
}

// Acquire reserves a dedicated pooled connection for one stage task.
func (s *SQLiteStore) Acquire(ctx context.Context) (Handle, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqliteHandle{conn: conn}, nil
}

type sqliteHandle struct {
	conn *sql.Conn
}

func (h *sqliteHandle) Job(ctx context.Context, id int64) (*Job, error) {
	return getSQLiteJob(ctx, h.conn, id)
}

func (h *sqliteHandle) Begin(ctx context.Context, id int64, stage Stage) error {
	return h.transition(ctx, id, stage, StatusProcessing, "")
}

func (h *sqliteHandle) Complete(ctx context.Context, id int64, stage Stage, text string) error {
	return h.transition(ctx, id, stage, StatusCompleted, text)
}

func (h *sqliteHandle) Fail(ctx context.Context, id int64, stage Stage, message string) error {
	return h.transition(ctx, id, stage, StatusFailed, message)
}

func (h *sqliteHandle) Close() error {
	return h.conn.Close()
}

func (h *sqliteHandle) transition(ctx context.Context, id int64, stage Stage, to Status, detail string) error {
	query, args, err := buildTransition(id, stage, to, detail, sqliteNow())
	if err != nil {
		return err
	}
	var affected int64
	err = retryOnBusy(ctx, func() error {
		res, err := h.conn.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("%s -> %s: %w", stage, to, err)
	}
	if affected == 1 {
		return nil
	}

	var exists int
	if err := h.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM annotation_jobs WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("check job %d: %w", id, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s for job %d", ErrTransitionRejected, stage, to, id)
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLiteJob(ctx context.Context, q sqlQueryer, id int64) (*Job, error) {
	row := q.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM annotation_jobs WHERE id = ?", id)
	return scanSQLiteJob(row)
}

func scanSQLiteJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		row                    jobRow
		createdRaw, updatedRaw string
	)
	if err := scanner.Scan(row.dest(&createdRaw, &updatedRaw)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job := row.job()
	job.CreatedAt = parseTimeString(createdRaw)
	job.UpdatedAt = parseTimeString(updatedRaw)
	return job, nil
}

func scanSQLiteMedia(scanner interface{ Scan(dest ...any) error }) (*Media, error) {
	var (
		media      Media
		createdRaw string
	)
	if err := scanner.Scan(&media.ID, &media.Path, &media.Title, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	media.CreatedAt = parseTimeString(createdRaw)
	return &media, nil
}

func sqliteNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", value)
	return t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
