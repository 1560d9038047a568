package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AudioDir string `toml:"audio_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// Storage selects the job store backend.
type Storage struct {
	Driver      string `toml:"driver"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Transcription contains settings for the remote speech-to-text endpoint.
// Any OpenAI-compatible /audio/transcriptions API works.
type Transcription struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Language       string  `toml:"language"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Enhancement contains settings for the chat completion endpoint that
// elaborates raw transcripts.
type Enhancement struct {
	APIKey           string   `toml:"api_key"`
	BaseURL          string   `toml:"base_url"`
	Model            string   `toml:"model"`
	MaxTokens        int      `toml:"max_tokens"`
	Temperature      float64  `toml:"temperature"`
	TopP             float64  `toml:"top_p"`
	FrequencyPenalty float64  `toml:"frequency_penalty"`
	PresencePenalty  float64  `toml:"presence_penalty"`
	Stop             []string `toml:"stop"`
	SystemPrompt     string   `toml:"system_prompt"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
}

// Pipeline contains knobs for background stage execution.
type Pipeline struct {
	// MaxConcurrentStages caps in-flight remote calls across all jobs. 0 means unlimited.
	MaxConcurrentStages int `toml:"max_concurrent_stages"`
	MaxAudioMiB         int `toml:"max_audio_mib"`
	ShutdownGraceSecs   int `toml:"shutdown_grace_seconds"`
}

// Streaming contains media streaming settings.
type Streaming struct {
	ChunkSizeKiB int `toml:"chunk_size_kib"`
}

// Events contains settings for the websocket event channel.
type Events struct {
	SendBuffer          int `toml:"send_buffer"`
	WriteTimeoutSeconds int `toml:"write_timeout_seconds"`
	PingIntervalSeconds int `toml:"ping_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Elicit.
//
// Configuration sections by subsystem:
//   - Paths: data, audio, and log directories plus the API bind address
//   - Storage: job store backend (sqlite or postgres)
//   - Transcription: remote speech-to-text endpoint
//   - Enhancement: remote chat completion endpoint
//   - Pipeline: stage concurrency and upload limits
//   - Streaming: media chunk size
//   - Events: websocket buffering and keepalive
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	Transcription Transcription `toml:"transcription"`
	Enhancement   Enhancement   `toml:"enhancement"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Streaming     Streaming     `toml:"streaming"`
	Events        Events        `toml:"events"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/elicit/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("elicit.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AudioDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "elicit.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "elicit.lock")
}

// TranscriptionTimeout is the per-call deadline for stage one.
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
}

// EnhancementTimeout is the per-call deadline for stage two.
func (c *Config) EnhancementTimeout() time.Duration {
	return time.Duration(c.Enhancement.TimeoutSeconds) * time.Second
}

// ChunkSize returns the streaming chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Streaming.ChunkSizeKiB * 1024
}

// MaxAudioBytes returns the upload ceiling for annotation audio.
func (c *Config) MaxAudioBytes() int64 {
	return int64(c.Pipeline.MaxAudioMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
