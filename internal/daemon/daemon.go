package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"elicit/internal/annotations"
	"elicit/internal/config"
	"elicit/internal/events"
	"elicit/internal/logging"
	"elicit/internal/mediastream"
	"elicit/internal/pipeline"
	"elicit/internal/services"
)

// Daemon coordinates the HTTP API, the pipeline scheduler and the event hub,
// and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     annotations.Store
	scheduler *pipeline.Scheduler
	hub       *events.Hub
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	Address      string
	Observers    int
	Jobs         annotations.Summary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store annotations.Store, scheduler *pipeline.Scheduler, hub *events.Hub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || scheduler == nil || hub == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and event hub")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		scheduler: scheduler,
		hub:       hub,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another elicit daemon instance is already running")
	}

	apiCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(apiCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("elicit daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts the API down first so no new jobs arrive, then drains the
// scheduler and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("elicit daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Address returns the bound API address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Handler exposes the API routes without binding a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// AddMedia registers a local media file.
func (d *Daemon) AddMedia(ctx context.Context, path, title string) (*annotations.Media, error) {
	media, err := RegisterMediaFile(ctx, d.store, path, title)
	if err != nil {
		return nil, err
	}
	logging.WithContext(ctx, d.logger).Info("media registered",
		logging.Int64(logging.FieldMediaID, media.ID),
		logging.String("path", media.Path),
		logging.String(logging.FieldEventType, "media_registered"),
	)
	return media, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		StartedAt:    d.startedAt,
		Address:      d.api.address(),
		Observers:    d.hub.Count(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if summary, err := d.store.Summary(ctx); err == nil {
		status.Jobs = summary
	} else {
		d.logger.Warn("job summary unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "summary_failed"),
		)
	}
	return status
}

// RegisterMediaFile validates that path names a playable local file and
// records it. An empty title is derived from the file name. Registering the
// same path twice returns the existing record.
func RegisterMediaFile(ctx context.Context, store annotations.Store, path, title string) (*annotations.Media, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "media", "register", "path is required", nil)
	}
	absPath, err := config.ExpandPath(trimmed)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "register", "resolve path", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "media", "register", "stat media file", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "media", "register", fmt.Sprintf("%q is a directory", absPath), nil)
	}
	if !mediastream.Supported(absPath) {
		return nil, services.Wrap(services.ErrValidation, "media", "register",
			fmt.Sprintf("unsupported file extension %q", strings.ToLower(filepath.Ext(absPath))), nil)
	}
	if strings.TrimSpace(title) == "" {
		title = annotations.TitleFromPath(absPath)
	}
	media, err := store.RegisterMedia(ctx, absPath, strings.TrimSpace(title))
	if err != nil {
		return nil, fmt.Errorf("register media: %w", err)
	}
	return media, nil
}

// LockHeld reports whether a daemon currently holds the instance lock.
func LockHeld(cfg *config.Config) (bool, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
