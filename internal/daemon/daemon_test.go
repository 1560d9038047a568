package daemon_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"elicit/internal/config"
	"elicit/internal/daemon"
	"elicit/internal/events"
	"elicit/internal/pipeline"
	"elicit/internal/services"
	"elicit/internal/testsupport"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(_ context.Context, audio io.Reader, _, _ string) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return "heard " + string(data), nil
}

type stubEnhancer struct{}

func (stubEnhancer) Enhance(_ context.Context, transcript string) (string, error) {
	return "enhanced " + transcript, nil
}

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(nil)
	scheduler := pipeline.New(store, stubTranscriber{}, stubEnhancer{}, hub, pipeline.OptionsFromConfig(cfg, nil))
	d, err := daemon.New(cfg, store, scheduler, hub, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		scheduler.Stop()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Address == "" {
		t.Fatal("expected bound address")
	}

	resp, err := http.Get("http://" + status.Address + "/api/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	held, err := daemon.LockHeld(cfg)
	if err != nil {
		t.Fatalf("LockHeld: %v", err)
	}
	if !held {
		t.Fatal("expected lock to be held while running")
	}

	second := newDaemon(t, cfg)
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to be refused")
	}

	first.Stop()
	held, err = daemon.LockHeld(cfg)
	if err != nil {
		t.Fatalf("LockHeld after stop: %v", err)
	}
	if held {
		t.Fatal("expected lock to be released after stop")
	}
}

func TestRegisterMediaFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	dir := testsupport.BaseDir(cfg)

	video := filepath.Join(dir, "glass_blowing-demo.mp4")
	testsupport.WriteMedia(t, video, 128)
	media, err := daemon.RegisterMediaFile(ctx, store, video, "")
	if err != nil {
		t.Fatalf("RegisterMediaFile: %v", err)
	}
	if media.Title != "Glass Blowing Demo" {
		t.Fatalf("unexpected derived title %q", media.Title)
	}
	again, err := daemon.RegisterMediaFile(ctx, store, video, "Other")
	if err != nil {
		t.Fatalf("second RegisterMediaFile: %v", err)
	}
	if again.ID != media.ID {
		t.Fatalf("expected same record, got %d and %d", media.ID, again.ID)
	}

	text := filepath.Join(dir, "notes.txt")
	testsupport.WriteFile(t, text, []byte("x"))
	cases := map[string]string{
		"empty":       "",
		"missing":     filepath.Join(dir, "absent.mp4"),
		"directory":   dir,
		"unsupported": text,
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := daemon.RegisterMediaFile(ctx, store, path, ""); !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
