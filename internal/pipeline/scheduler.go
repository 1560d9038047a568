package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"elicit/internal/annotations"
	"elicit/internal/config"
	"elicit/internal/events"
	"elicit/internal/logging"
)

// ErrStopped is returned by Submit once Stop has begun.
var ErrStopped = errors.New("scheduler stopped")

// Transcriber is the stage one remote client.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, name, language string) (string, error)
}

// Enhancer is the stage two remote client.
type Enhancer interface {
	Enhance(ctx context.Context, transcript string) (string, error)
}

// Publisher receives job events. *events.Hub satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Options tunes the scheduler. Zero values disable the corresponding limit.
type Options struct {
	AudioDir             string
	MaxAudioBytes        int64
	TranscriptionTimeout time.Duration
	EnhancementTimeout   time.Duration
	// MaxConcurrentStages caps in-flight remote calls across all jobs.
	MaxConcurrentStages int
	ShutdownGrace       time.Duration
	Logger              *slog.Logger
}

// OptionsFromConfig maps the pipeline-related configuration sections.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		AudioDir:             cfg.Paths.AudioDir,
		MaxAudioBytes:        cfg.MaxAudioBytes(),
		TranscriptionTimeout: cfg.TranscriptionTimeout(),
		EnhancementTimeout:   cfg.EnhancementTimeout(),
		MaxConcurrentStages:  cfg.Pipeline.MaxConcurrentStages,
		ShutdownGrace:        time.Duration(cfg.Pipeline.ShutdownGraceSecs) * time.Second,
		Logger:               logger,
	}
}

// Scheduler owns background stage execution for annotation jobs.
type Scheduler struct {
	store       annotations.Store
	transcriber Transcriber
	enhancer    Enhancer
	publisher   Publisher
	opts        Options
	logger      *slog.Logger
	limiter     *semaphore.Weighted

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	// guards holds a *sync.Mutex per running job, serializing its recorded
	// transitions and events against Delete.
	guards sync.Map
}

// New constructs a scheduler. It starts no goroutines until jobs are submitted.
func New(store annotations.Store, transcriber Transcriber, enhancer Enhancer, publisher Publisher, opts Options) *Scheduler {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:       store,
		transcriber: transcriber,
		enhancer:    enhancer,
		publisher:   publisher,
		opts:        opts,
		logger:      logging.NewComponentLogger(opts.Logger, "pipeline"),
		baseCtx:     baseCtx,
		cancel:      cancel,
	}
	if opts.MaxConcurrentStages > 0 {
		s.limiter = semaphore.NewWeighted(int64(opts.MaxConcurrentStages))
	}
	return s
}

// Stop refuses new submissions and waits for in-flight jobs. Jobs still
// running after the shutdown grace (immediately, when it is zero) have their
// remote calls canceled; their records may stay in processing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := s.opts.ShutdownGrace
	if grace > 0 {
		select {
		case <-done:
			s.cancel()
			return
		case <-time.After(grace):
			logging.WarnWithContext(s.logger, "stage tasks still running at shutdown; canceling", "pipeline_shutdown_timeout",
				logging.Duration("grace", grace),
				logging.String(logging.FieldImpact, "interrupted jobs remain in processing"),
				logging.String(logging.FieldErrorHint, "delete and resubmit the affected annotations"),
			)
		}
	}
	s.cancel()
	<-done
}

// Wait blocks until every launched job task has returned. Intended for tests
// and for callers that drain before exit.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// launch publishes the created event and starts the job's task. Once Stop has
// begun it refuses before anything is published.
func (s *Scheduler) launch(job *annotations.Job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	s.guards.Store(job.ID, &sync.Mutex{})
	s.publish(events.Event{JobID: job.ID, MediaID: job.MediaID, Status: events.StatusCreated})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(job)
	}()
	return nil
}

// lockJob holds the guard of a running job until the returned func is called.
// Jobs without a running task have nothing to serialize against.
func (s *Scheduler) lockJob(id int64) func() {
	value, ok := s.guards.Load(id)
	if !ok {
		return func() {}
	}
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Scheduler) publish(evt events.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(evt)
}
