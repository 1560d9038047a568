package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateEnhancement(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn must be set when storage.driver is postgres (or export ELICIT_POSTGRES_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver: unsupported value %q (use sqlite or postgres)", c.Storage.Driver)
	}
}

func (c *Config) validateTranscription() error {
	if c.Transcription.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/elicit/config.toml"
		}
		return fmt.Errorf("transcription.api_key is required. Set ELICIT_API_KEY or FIREWORKS_API_KEY, or edit %s (create with 'elicit config init')", defaultPath)
	}
	if err := validateBaseURL("transcription.base_url", c.Transcription.BaseURL); err != nil {
		return err
	}
	if c.Transcription.Temperature < 0 || c.Transcription.Temperature > 1 {
		return errors.New("transcription.temperature must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateEnhancement() error {
	if err := validateBaseURL("enhancement.base_url", c.Enhancement.BaseURL); err != nil {
		return err
	}
	if c.Enhancement.Temperature < 0 || c.Enhancement.Temperature > 2 {
		return errors.New("enhancement.temperature must be between 0 and 2")
	}
	if c.Enhancement.TopP <= 0 || c.Enhancement.TopP > 1 {
		return errors.New("enhancement.top_p must be in (0, 1]")
	}
	for name, value := range map[string]float64{
		"enhancement.frequency_penalty": c.Enhancement.FrequencyPenalty,
		"enhancement.presence_penalty":  c.Enhancement.PresencePenalty,
	} {
		if value < -2 || value > 2 {
			return fmt.Errorf("%s must be between -2 and 2", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func validateBaseURL(field, value string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got %q", field, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
