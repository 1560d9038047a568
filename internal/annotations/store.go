package annotations

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"elicit/internal/config"
)

// Store is the durable record of media files and annotation jobs.
//
// Request handlers read through it; only the pipeline mutates stage state, and
// it does so through a Handle so each stage task owns its own connection.
type Store interface {
	RegisterMedia(ctx context.Context, path, title string) (*Media, error)
	GetMedia(ctx context.Context, id int64) (*Media, error)
	ListMedia(ctx context.Context) ([]*Media, error)

	CreateJob(ctx context.Context, job NewJob) (*Job, error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	// ListJobs returns jobs for one media file ordered by start time, or every
	// job ordered by id when mediaID is 0.
	ListJobs(ctx context.Context, mediaID int64) ([]*Job, error)
	// DeleteJob removes the record and returns it so the caller can release
	// the audio it owned.
	DeleteJob(ctx context.Context, id int64) (*Job, error)
	Summary(ctx context.Context) (Summary, error)

	// Acquire reserves a dedicated connection for one stage task.
	Acquire(ctx context.Context) (Handle, error)
	Close() error
}

// Handle is a single-owner connection used by one stage task. Transitions are
// guarded in the UPDATE itself: a stage moves pending -> processing ->
// completed|failed, and enhancement may only leave pending once transcription
// is completed. A rejected transition returns ErrTransitionRejected, and a
// transition on a deleted job returns ErrNotFound.
type Handle interface {
	Job(ctx context.Context, id int64) (*Job, error)
	Begin(ctx context.Context, id int64, stage Stage) error
	Complete(ctx context.Context, id int64, stage Stage, text string) error
	Fail(ctx context.Context, id int64, stage Stage, message string) error
	Close() error
}

// Open connects to the backend selected by storage.driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open job store: config is required")
	}
	switch cfg.Storage.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.Storage.PostgresDSN)
	case "sqlite", "":
		return OpenSQLite(cfg)
	default:
		return nil, fmt.Errorf("open job store: unsupported driver %q", cfg.Storage.Driver)
	}
}

const (
	mediaColumns = "id, path, title, created_at"
	jobColumns   = "id, media_id, start_time, end_time, audio_path, language, transcription_status, transcript, transcription_error, enhancement_status, enhanced_transcript, enhancement_error, created_at, updated_at"
)

type stageColumns struct {
	status string
	text   string
	err    string
}

var columnsByStage = map[Stage]stageColumns{
	StageTranscription: {status: "transcription_status", text: "transcript", err: "transcription_error"},
	StageEnhancement:   {status: "enhancement_status", text: "enhanced_transcript", err: "enhancement_error"},
}

// buildTransition renders the guarded UPDATE for one stage transition. now is
// the backend-specific timestamp argument.
func buildTransition(id int64, stage Stage, to Status, detail string, now any) (string, []any, error) {
	cols, ok := columnsByStage[stage]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown stage %q", ErrTransitionRejected, stage)
	}

	args := []any{string(to)}
	var (
		set  string
		from Status
	)
	switch to {
	case StatusProcessing:
		set = cols.err + " = NULL"
		from = StatusPending
	case StatusCompleted:
		set = cols.text + " = ?, " + cols.err + " = NULL"
		args = append(args, detail)
		from = StatusProcessing
	case StatusFailed:
		set = cols.err + " = ?"
		args = append(args, detail)
		from = StatusProcessing
	default:
		return "", nil, fmt.Errorf("%w: cannot move %s to %q", ErrTransitionRejected, stage, to)
	}

	query := "UPDATE annotation_jobs SET " + cols.status + " = ?, " + set + ", updated_at = ? WHERE id = ? AND " + cols.status + " = ?"
	args = append(args, now, id, string(from))
	if stage == StageEnhancement && to == StatusProcessing {
		query += " AND transcription_status = ?"
		args = append(args, string(StatusCompleted))
	}
	return query, args, nil
}

// rebind rewrites ? placeholders into PostgreSQL $n form.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// jobRow holds the backend-neutral columns of a job row; timestamps are
// scanned separately because each backend stores them differently.
type jobRow struct {
	id                  int64
	mediaID             int64
	startTime           float64
	endTime             float64
	audioPath           string
	language            sql.NullString
	transcriptionStatus string
	transcript          sql.NullString
	transcriptionError  sql.NullString
	enhancementStatus   string
	enhancedTranscript  sql.NullString
	enhancementError    sql.NullString
}

func (r *jobRow) dest(created, updated any) []any {
	return []any{
		&r.id,
		&r.mediaID,
		&r.startTime,
		&r.endTime,
		&r.audioPath,
		&r.language,
		&r.transcriptionStatus,
		&r.transcript,
		&r.transcriptionError,
		&r.enhancementStatus,
		&r.enhancedTranscript,
		&r.enhancementError,
		created,
		updated,
	}
}

func (r *jobRow) job() *Job {
	return &Job{
		ID:                  r.id,
		MediaID:             r.mediaID,
		StartTime:           r.startTime,
		EndTime:             r.endTime,
		AudioPath:           r.audioPath,
		Language:            r.language.String,
		TranscriptionStatus: Status(r.transcriptionStatus),
		Transcript:          r.transcript.String,
		TranscriptionError:  r.transcriptionError.String,
		EnhancementStatus:   Status(r.enhancementStatus),
		EnhancedTranscript:  r.enhancedTranscript.String,
		EnhancementError:    r.enhancementError.String,
	}
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func addSummaryRow(summary Summary, transcription, enhancement string, count int) {
	summary[StageTranscription][Status(transcription)] += count
	summary[StageEnhancement][Status(enhancement)] += count
}
