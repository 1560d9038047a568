package preflight

import (
	"context"
	"strings"

	"elicit/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minAudioFreeBytes is the free space below which new recordings may fail to save.
const minAudioFreeBytes = 100 << 20

// RunAll executes the local checks: directory access, audio disk space and
// API key presence.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Audio directory", cfg.Paths.AudioDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results,
		CheckFreeSpace("Audio disk space", cfg.Paths.AudioDir, minAudioFreeBytes),
		CheckAPIKey("Transcription API key", cfg.Transcription.APIKey),
		CheckAPIKey("Enhancement API key", cfg.Enhancement.APIKey),
	)
	return results
}

// RunRemote probes the configured remote endpoints. The enhancement endpoint
// is skipped when it shares base URL and key with transcription.
func RunRemote(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckEndpoint(ctx, "Transcription API", cfg.Transcription.BaseURL, cfg.Transcription.APIKey),
	}
	if enhancementUsesDistinctEndpoint(cfg) {
		results = append(results, CheckEndpoint(ctx, "Enhancement API", cfg.Enhancement.BaseURL, cfg.Enhancement.APIKey))
	}
	return results
}

func enhancementUsesDistinctEndpoint(cfg *config.Config) bool {
	return strings.TrimRight(cfg.Transcription.BaseURL, "/") != strings.TrimRight(cfg.Enhancement.BaseURL, "/") ||
		cfg.Transcription.APIKey != cfg.Enhancement.APIKey
}
