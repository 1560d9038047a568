package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"elicit/internal/annotations"
	"elicit/internal/config"
)

// MustOpenStore opens a SQLite annotations store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *annotations.SQLiteStore {
	t.Helper()

	store, err := annotations.OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("annotations.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMedia registers a media file under the config's data directory. The file
// itself is written with WriteMedia when size > 0.
func NewMedia(t testing.TB, store annotations.Store, cfg *config.Config, name string, size int64) *annotations.Media {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "media", name)
	if size > 0 {
		WriteMedia(t, path, size)
	}
	media, err := store.RegisterMedia(context.Background(), path, annotations.TitleFromPath(path))
	if err != nil {
		t.Fatalf("store.RegisterMedia: %v", err)
	}
	return media
}

// NewJob inserts a job for media with a placeholder audio path.
func NewJob(t testing.TB, store annotations.Store, mediaID int64, start, end float64) *annotations.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), annotations.NewJob{
		MediaID:   mediaID,
		StartTime: start,
		EndTime:   end,
		AudioPath: filepath.Join(t.TempDir(), "annotation.webm"),
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
