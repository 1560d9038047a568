package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"elicit/internal/annotations"
	"elicit/internal/events"
	"elicit/internal/language"
	"elicit/internal/logging"
	"elicit/internal/services"
)

// Submission is one recorded annotation as received from a client.
type Submission struct {
	MediaID   int64
	StartTime float64
	EndTime   float64
	Language  string
	// AudioName is the client's file name; only its extension is kept.
	AudioName string
	Audio     io.Reader
}

// Submit persists the audio and the job record, then schedules stage one.
// It returns as soon as the record exists; stage results arrive as events.
func (s *Scheduler) Submit(ctx context.Context, sub Submission) (*annotations.Job, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return nil, ErrStopped
	}

	probe := annotations.NewJob{
		MediaID:   sub.MediaID,
		StartTime: sub.StartTime,
		EndTime:   sub.EndTime,
		AudioPath: "-",
	}
	if err := probe.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "", err)
	}
	if sub.Audio == nil {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "audio is required", nil)
	}
	lang, err := language.Hint(sub.Language)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "submit", "validate", "", err)
	}
	if _, err := s.store.GetMedia(ctx, sub.MediaID); err != nil {
		return nil, fmt.Errorf("lookup media %d: %w", sub.MediaID, err)
	}

	audioPath, err := s.saveAudio(sub)
	if err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, annotations.NewJob{
		MediaID:   sub.MediaID,
		StartTime: sub.StartTime,
		EndTime:   sub.EndTime,
		AudioPath: audioPath,
		Language:  lang,
	})
	if err != nil {
		s.removeAudio(audioPath)
		return nil, fmt.Errorf("create job: %w", err)
	}

	logger := logging.WithContext(services.WithJobID(ctx, job.ID), s.logger)
	if err := s.launch(job); err != nil {
		// Stop won the race; the caller is told nothing was created, so the
		// record and its audio go too.
		if _, delErr := s.store.DeleteJob(context.WithoutCancel(ctx), job.ID); delErr != nil {
			logging.WarnWithContext(logger, "discard unlaunched job failed", "job_discard_failed",
				logging.Error(delErr),
				logging.String(logging.FieldErrorHint, "delete the annotation manually"),
				logging.String(logging.FieldImpact, "annotation stays pending"),
			)
		}
		s.removeAudio(audioPath)
		return nil, err
	}
	logger.Info("annotation submitted",
		logging.Int64(logging.FieldMediaID, job.MediaID),
		logging.Float64("start_time", job.StartTime),
		logging.Float64("end_time", job.EndTime),
		logging.String(logging.FieldEventType, "job_created"),
	)
	return job, nil
}

// Delete removes a job and the audio it owns. A stage task still running for
// the job finishes its remote call, but its result is discarded and no stage
// event follows the deleted event.
func (s *Scheduler) Delete(ctx context.Context, id int64) (*annotations.Job, error) {
	defer s.lockJob(id)()
	job, err := s.store.DeleteJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.removeAudio(job.AudioPath)
	logging.WithContext(services.WithJobID(ctx, id), s.logger).Info("annotation deleted",
		logging.String(logging.FieldEventType, "job_deleted"),
	)
	s.publish(events.Event{JobID: job.ID, MediaID: job.MediaID, Status: events.StatusDeleted})
	return job, nil
}

func (s *Scheduler) saveAudio(sub Submission) (string, error) {
	dir := s.opts.AudioDir
	if strings.TrimSpace(dir) == "" {
		return "", services.Wrap(services.ErrConfiguration, "submit", "save audio", "audio directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(sub.AudioName))
	if ext == "" || len(ext) > 6 {
		ext = ".webm"
	}
	path := filepath.Join(dir, "annotation_"+uuid.NewString()+ext)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	reader := sub.Audio
	if s.opts.MaxAudioBytes > 0 {
		reader = io.LimitReader(sub.Audio, s.opts.MaxAudioBytes+1)
	}
	written, copyErr := io.Copy(file, reader)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		s.removeAudio(path)
		return "", fmt.Errorf("write audio: %w", copyErr)
	case closeErr != nil:
		s.removeAudio(path)
		return "", fmt.Errorf("close audio: %w", closeErr)
	case written == 0:
		s.removeAudio(path)
		return "", services.Wrap(services.ErrValidation, "submit", "save audio", "audio is empty", nil)
	case s.opts.MaxAudioBytes > 0 && written > s.opts.MaxAudioBytes:
		s.removeAudio(path)
		return "", services.Wrap(services.ErrValidation, "submit", "save audio",
			fmt.Sprintf("audio exceeds %d bytes", s.opts.MaxAudioBytes), nil)
	}
	return path, nil
}

func (s *Scheduler) removeAudio(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("remove audio failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "audio_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "delete the file manually"),
			logging.String(logging.FieldImpact, "orphaned audio file left in audio_dir"),
		)
	}
}
