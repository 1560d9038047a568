package annotations

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchemaSQL string

// PostgresStore persists media and jobs in a shared PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database and creates the schema when absent.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("open postgres: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'schema_version')",
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if !exists {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()
		if _, err := tx.Exec(ctx, postgresSchemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit(ctx)
	}

	var version int
	if err := s.pool.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// RegisterMedia records a media file, returning the existing row when the
// path is already registered.
func (s *PostgresStore) RegisterMedia(ctx context.Context, path, title string) (*Media, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("register media: path is required")
	}
	if _, err := s.pool.Exec(ctx,
		"INSERT INTO media_files (path, title) VALUES ($1, $2) ON CONFLICT (path) DO NOTHING",
		path, title,
	); err != nil {
		return nil, fmt.Errorf("insert media: %w", err)
	}
	return scanPostgresMedia(s.pool.QueryRow(ctx, "SELECT "+mediaColumns+" FROM media_files WHERE path = $1", path))
}

// GetMedia fetches a media file by id.
func (s *PostgresStore) GetMedia(ctx context.Context, id int64) (*Media, error) {
	return scanPostgresMedia(s.pool.QueryRow(ctx, "SELECT "+mediaColumns+" FROM media_files WHERE id = $1", id))
}

// ListMedia returns every registered media file ordered by id.
func (s *PostgresStore) ListMedia(ctx context.Context) ([]*Media, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+mediaColumns+" FROM media_files ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []*Media
	for rows.Next() {
		media, err := scanPostgresMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, media)
	}
	return out, rows.Err()
}

// CreateJob inserts a job with both stages pending.
func (s *PostgresStore) CreateJob(ctx context.Context, job NewJob) (*Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.GetMedia(ctx, job.MediaID); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO annotation_jobs (
            media_id, start_time, end_time, audio_path, language,
            transcription_status, enhancement_status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+jobColumns,
		job.MediaID, job.StartTime, job.EndTime, job.AudioPath, nullableString(job.Language),
		string(StatusPending), string(StatusPending),
	)
	created, err := scanPostgresJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return created, nil
}

// GetJob fetches a job by id.
func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*Job, error) {
	return scanPostgresJob(s.pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM annotation_jobs WHERE id = $1", id))
}

// ListJobs returns jobs for one media file, or all jobs when mediaID is 0.
func (s *PostgresStore) ListJobs(ctx context.Context, mediaID int64) ([]*Job, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if mediaID > 0 {
		rows, err = s.pool.Query(ctx,
			"SELECT "+jobColumns+" FROM annotation_jobs WHERE media_id = $1 ORDER BY start_time, id", mediaID)
	} else {
		rows, err = s.pool.Query(ctx, "SELECT "+jobColumns+" FROM annotation_jobs ORDER BY id")
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanPostgresJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// DeleteJob removes a job and returns the deleted record.
func (s *PostgresStore) DeleteJob(ctx context.Context, id int64) (*Job, error) {
	row := s.pool.QueryRow(ctx, "DELETE FROM annotation_jobs WHERE id = $1 RETURNING "+jobColumns, id)
	job, err := scanPostgresJob(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete job: %w", err)
	}
	return job, nil
}

// Summary counts jobs per stage status.
func (s *PostgresStore) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.pool.Query(ctx,
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
			count                      int64
		)
		if err := rows.Scan(&transcription, &enhancement, &count); err != nil {
			return nil, err
		}
		addSummaryRow(summary, transcription, enhancement, int(count))
	}
	return summary, rows.Err()
}

// Acquire reserves a dedicated pooled connection for one stage task.
func (s *PostgresStore) Acquire(ctx context.Context) (Handle, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &pgHandle{conn: conn}, nil
}

type pgHandle struct {
	conn *pgxpool.Conn
}

func (h *pgHandle) Job(ctx context.Context, id int64) (*Job, error) {
	return scanPostgresJob(h.conn.QueryRow(ctx, "SELECT "+jobColumns+" FROM annotation_jobs WHERE id = $1", id))
}

func (h *pgHandle) Begin(ctx context.Context, id int64, stage Stage) error {
	return h.transition(ctx, id, stage, StatusProcessing, "")
}

func (h *pgHandle) Complete(ctx context.Context, id int64, stage Stage, text string) error {
	return h.transition(ctx, id, stage, StatusCompleted, text)
}

func (h *pgHandle) Fail(ctx context.Context, id int64, stage Stage, message string) error {
	return h.transition(ctx, id, stage, StatusFailed, message)
}

func (h *pgHandle) Close() error {
	h.conn.Release()
	return nil
}

func (h *pgHandle) transition(ctx context.Context, id int64, stage Stage, to Status, detail string) error {
	query, args, err := buildTransition(id, stage, to, detail, time.Now().UTC())
	if err != nil {
		return err
	}
	tag, err := h.conn.Exec(ctx, rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%s -> %s: %w", stage, to, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := h.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM annotation_jobs WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("check job %d: %w", id, err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s -> %s for job %d", ErrTransitionRejected, stage, to, id)
}

func scanPostgresJob(row pgx.Row) (*Job, error) {
	var (
		r                jobRow
		created, updated time.Time
	)
	if err := row.Scan(r.dest(&created, &updated)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job := r.job()
	job.CreatedAt = created
	job.UpdatedAt = updated
	return job, nil
}

func scanPostgresMedia(row pgx.Row) (*Media, error) {
	var media Media
	if err := row.Scan(&media.ID, &media.Path, &media.Title, &media.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &media, nil
}
