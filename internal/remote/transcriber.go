package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"elicit/internal/config"
	"elicit/internal/logging"
	"elicit/internal/services"
)

const transcriptionStage = "transcription"

// Transcriber converts recorded audio into literal text.
type Transcriber struct {
	client      *openai.Client
	model       string
	language    string
	temperature float32
	logger      *slog.Logger
}

// NewTranscriber builds a client for an OpenAI-compatible transcription endpoint.
func NewTranscriber(cfg config.Transcription, opts ...Option) *Transcriber {
	o := applyOptions("transcriber", opts)
	return &Transcriber{
		client:      newOpenAIClient(cfg.APIKey, cfg.BaseURL, o),
		model:       cfg.Model,
		language:    cfg.Language,
		temperature: float32(cfg.Temperature),
		logger:      o.logger,
	}
}

// Model returns the configured model name.
func (t *Transcriber) Model() string {
	return t.model
}

// Transcribe uploads audio and returns the recognized text. name is the file
// name reported to the endpoint, which uses its extension to detect the
// container. An empty language falls back to the configured hint.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, name, language string) (string, error) {
	if audio == nil {
		return "", services.Wrap(services.ErrValidation, transcriptionStage, "transcribe", "audio is required", nil)
	}
	if strings.TrimSpace(name) == "" {
		name = "annotation.webm"
	}
	if strings.TrimSpace(language) == "" {
		language = t.language
	}

	logger := logging.WithContext(ctx, t.logger)
	started := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       t.model,
		FilePath:    name,
		Reader:      audio,
		Language:    language,
		Temperature: t.temperature,
	})
	if err != nil {
		classified := classify(err, transcriptionStage, "create transcription")
		logger.Debug("transcription request failed",
			logging.String(logging.FieldFailureKind, string(services.Kind(classified))),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return "", classified
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", services.Wrap(services.ErrUnknown, transcriptionStage, "create transcription", "empty transcription result", errors.New("no text returned"))
	}
	logger.Debug("transcription received",
		logging.Int("chars", len(text)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return text, nil
}
