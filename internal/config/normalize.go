package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeTranscription()
	c.normalizeEnhancement()
	c.normalizeRuntime()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AudioDir) == "" {
		c.Paths.AudioDir = filepath.Join(c.Paths.DataDir, "audio")
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaultStorageDriver
	}
	c.Storage.PostgresDSN = strings.TrimSpace(c.Storage.PostgresDSN)
	if c.Storage.PostgresDSN == "" {
		if value, ok := os.LookupEnv("ELICIT_POSTGRES_DSN"); ok {
			c.Storage.PostgresDSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = lookupAPIKey()
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
}

func (c *Config) normalizeEnhancement() {
	// The enhancement endpoint usually shares the transcription provider account.
	c.Enhancement.APIKey = strings.TrimSpace(c.Enhancement.APIKey)
	if c.Enhancement.APIKey == "" {
		c.Enhancement.APIKey = c.Transcription.APIKey
	}
	c.Enhancement.BaseURL = strings.TrimRight(strings.TrimSpace(c.Enhancement.BaseURL), "/")
	if c.Enhancement.BaseURL == "" {
		c.Enhancement.BaseURL = defaultEnhancementBaseURL
	}
	c.Enhancement.Model = strings.TrimSpace(c.Enhancement.Model)
	if c.Enhancement.Model == "" {
		c.Enhancement.Model = defaultEnhancementModel
	}
	if c.Enhancement.MaxTokens <= 0 {
		c.Enhancement.MaxTokens = defaultEnhancementMaxTokens
	}
	if strings.TrimSpace(c.Enhancement.SystemPrompt) == "" {
		c.Enhancement.SystemPrompt = DefaultSystemPrompt
	}
	if c.Enhancement.TimeoutSeconds <= 0 {
		c.Enhancement.TimeoutSeconds = defaultEnhancementTimeout
	}
}

func (c *Config) normalizeRuntime() {
	if c.Pipeline.MaxConcurrentStages < 0 {
		c.Pipeline.MaxConcurrentStages = 0
	}
	if c.Pipeline.MaxAudioMiB <= 0 {
		c.Pipeline.MaxAudioMiB = defaultMaxAudioMiB
	}
	if c.Pipeline.ShutdownGraceSecs <= 0 {
		c.Pipeline.ShutdownGraceSecs = defaultShutdownGraceSeconds
	}
	if c.Streaming.ChunkSizeKiB <= 0 {
		c.Streaming.ChunkSizeKiB = defaultChunkSizeKiB
	}
	if c.Events.SendBuffer <= 0 {
		c.Events.SendBuffer = defaultEventSendBuffer
	}
	if c.Events.WriteTimeoutSeconds <= 0 {
		c.Events.WriteTimeoutSeconds = defaultEventWriteTimeoutSeconds
	}
	if c.Events.PingIntervalSeconds <= 0 {
		c.Events.PingIntervalSeconds = defaultEventPingIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func lookupAPIKey() string {
	for _, name := range []string{"ELICIT_API_KEY", "FIREWORKS_API_KEY"} {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
