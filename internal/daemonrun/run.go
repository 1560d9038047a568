package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"elicit/internal/annotations"
	"elicit/internal/config"
	"elicit/internal/daemon"
	"elicit/internal/events"
	"elicit/internal/logging"
	"elicit/internal/pipeline"
	"elicit/internal/preflight"
	"elicit/internal/remote"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the elicit daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("elicit-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update elicit.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "elicit-*.log", Exclude: []string{logPath}},
	)
	logStartupSnapshot(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.DataDir, "elicit.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := annotations.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open annotation store", logging.Error(err))
		return err
	}

	transcriber := remote.NewTranscriber(cfg.Transcription, remote.WithLogger(logger))
	enhancer := remote.NewEnhancer(cfg.Enhancement, remote.WithLogger(logger))
	hub := events.NewHub(logger)
	scheduler := pipeline.New(store, transcriber, enhancer, hub, pipeline.OptionsFromConfig(cfg, logger))

	d, err := daemon.New(cfg, store, scheduler, hub, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other elicit daemon is running and api_bind is free"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("elicit daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logStartupSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("storage_driver", cfg.Storage.Driver),
		logging.String("transcription_model", cfg.Transcription.Model),
		logging.String("transcription_base_url", cfg.Transcription.BaseURL),
		logging.String("enhancement_model", cfg.Enhancement.Model),
		logging.String("enhancement_base_url", cfg.Enhancement.BaseURL),
		logging.Int("max_concurrent_stages", cfg.Pipeline.MaxConcurrentStages),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "annotations may fail until resolved"),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "elicit.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
