package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"elicit/internal/annotations"
	"elicit/internal/events"
	"elicit/internal/logging"
	"elicit/internal/services"
)

type stageCall func(ctx context.Context) (string, error)

// run drives one job through both stages. Every guarded transition takes its
// own store handle, so no connection is held across a remote call.
func (s *Scheduler) run(job *annotations.Job) {
	defer s.guards.Delete(job.ID)
	ctx := services.WithMediaID(services.WithJobID(s.baseCtx, job.ID), job.MediaID)

	transcript, ok := s.runStage(ctx, job, annotations.StageTranscription, s.opts.TranscriptionTimeout,
		func(callCtx context.Context) (string, error) {
			audio, err := os.Open(job.AudioPath)
			if err != nil {
				return "", services.Wrap(services.ErrUnknown, string(annotations.StageTranscription), "open audio", "", err)
			}
			defer audio.Close()
			return s.transcriber.Transcribe(callCtx, audio, filepath.Base(job.AudioPath), job.Language)
		})
	if !ok {
		return
	}

	s.runStage(ctx, job, annotations.StageEnhancement, s.opts.EnhancementTimeout,
		func(callCtx context.Context) (string, error) {
			return s.enhancer.Enhance(callCtx, transcript)
		})
}

// runStage performs one guarded stage: Begin, the remote call, then Complete
// or Fail. It returns the stage output and whether the stage completed.
func (s *Scheduler) runStage(ctx context.Context, job *annotations.Job, stage annotations.Stage, timeout time.Duration, call stageCall) (string, bool) {
	ctx = services.WithStage(ctx, string(stage))
	logger := logging.WithContext(ctx, s.logger)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, 1); err != nil {
			logger.Debug("stage not started; scheduler shutting down", logging.Error(err))
			return "", false
		}
		defer s.limiter.Release(1)
	}

	err := s.record(ctx, job.ID, func(handle annotations.Handle) error {
		return handle.Begin(ctx, job.ID, stage)
	}, events.Event{JobID: job.ID, MediaID: job.MediaID, Stage: string(stage), Status: events.StatusProcessing})
	if err != nil {
		s.logTransitionError(logger, "begin", err)
		return "", false
	}
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	callCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	started := time.Now()
	output, callErr := call(callCtx)
	cancel()
	elapsed := time.Since(started)

	if callErr == nil && strings.TrimSpace(output) == "" {
		callErr = services.Wrap(services.ErrUnknown, string(stage), "remote call", "empty result", nil)
	}
	if callErr != nil {
		return "", s.failStage(ctx, logger, job, stage, callErr, elapsed)
	}

	err = s.record(ctx, job.ID, func(handle annotations.Handle) error {
		return handle.Complete(ctx, job.ID, stage, output)
	}, events.Event{JobID: job.ID, MediaID: job.MediaID, Stage: string(stage), Status: events.StatusCompleted, Payload: output})
	if err != nil {
		s.logTransitionError(logger, "complete", err)
		return "", false
	}
	logger.Info("stage completed",
		logging.Duration("elapsed", elapsed),
		logging.Int("chars", len(output)),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	return output, true
}

// failStage records a remote failure and always reports the stage as not completed.
func (s *Scheduler) failStage(ctx context.Context, logger *slog.Logger, job *annotations.Job, stage annotations.Stage, callErr error, elapsed time.Duration) bool {
	kind := services.Kind(callErr)
	message := failureMessage(stage, kind, callErr)

	err := s.record(ctx, job.ID, func(handle annotations.Handle) error {
		return handle.Fail(ctx, job.ID, stage, message)
	}, events.Event{
		JobID:     job.ID,
		MediaID:   job.MediaID,
		Stage:     string(stage),
		Status:    events.StatusFailed,
		Payload:   message,
		ErrorKind: string(kind),
	})
	if err != nil {
		s.logTransitionError(logger, "fail", err)
		return false
	}
	logging.WarnWithContext(logger, "stage failed", "stage_failure",
		logging.String(logging.FieldFailureKind, string(kind)),
		logging.Duration("elapsed", elapsed),
		logging.Error(callErr),
		logging.String(logging.FieldErrorHint, failureHint(kind)),
		logging.String(logging.FieldImpact, fmt.Sprintf("%s unavailable for this annotation", stage)),
	)
	return false
}

// record applies one transition on a handle acquired for it alone and, if the
// store accepts it, publishes evt. The job guard spans both, so a concurrent
// Delete lands entirely before or entirely after.
func (s *Scheduler) record(ctx context.Context, jobID int64, apply func(annotations.Handle) error, evt events.Event) error {
	defer s.lockJob(jobID)()

	handle, err := s.store.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire store handle: %w", err)
	}
	defer handle.Close()
	if err := apply(handle); err != nil {
		return err
	}
	s.publish(evt)
	return nil
}

func (s *Scheduler) logTransitionError(logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, annotations.ErrNotFound):
		logger.Info("job deleted; stage result discarded",
			logging.String("transition", op),
			logging.String(logging.FieldEventType, "stage_discarded"),
		)
	case errors.Is(err, annotations.ErrTransitionRejected):
		logging.WarnWithContext(logger, "stage transition rejected", "stage_transition_rejected",
			logging.String("transition", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another task already advanced this stage"),
			logging.String(logging.FieldImpact, "stage result not recorded"),
		)
	case errors.Is(err, context.Canceled):
		logger.Debug("scheduler shutting down, stage state not recorded", logging.String("transition", op))
	default:
		logging.ErrorWithContext(logger, "stage transition failed", "stage_transition_failed",
			logging.String("transition", op),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database connectivity"),
		)
	}
}

// failureMessage is the human-readable string stored on the job and sent to
// observers. It names the category first so clients can show it as-is.
func failureMessage(stage annotations.Stage, kind services.FailureKind, err error) string {
	var summary string
	switch kind {
	case services.KindUnreachable:
		summary = "service unreachable"
	case services.KindRejected:
		summary = "input rejected"
	case services.KindQuota:
		summary = "quota exceeded"
	default:
		summary = "failed"
	}
	detail := strings.TrimSpace(err.Error())
	if detail == "" {
		return fmt.Sprintf("%s %s", stage, summary)
	}
	return fmt.Sprintf("%s %s: %s", stage, summary, detail)
}

func failureHint(kind services.FailureKind) string {
	switch kind {
	case services.KindUnreachable:
		return "check base_url and network access, or raise timeout_seconds"
	case services.KindRejected:
		return "check the audio format and the model name"
	case services.KindQuota:
		return "check the API account quota"
	default:
		return "check the remote service logs"
	}
}
