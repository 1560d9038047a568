package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"elicit/internal/config"
	"elicit/internal/logging"
	"elicit/internal/services"
)

const enhancementStage = "enhancement"

// Enhancer elaborates a literal transcript with domain commentary.
type Enhancer struct {
	client *openai.Client
	cfg    config.Enhancement
	logger *slog.Logger
}

// NewEnhancer builds a client for an OpenAI-compatible chat completion endpoint.
func NewEnhancer(cfg config.Enhancement, opts ...Option) *Enhancer {
	o := applyOptions("enhancer", opts)
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = config.DefaultSystemPrompt
	}
	return &Enhancer{
		client: newOpenAIClient(cfg.APIKey, cfg.BaseURL, o),
		cfg:    cfg,
		logger: o.logger,
	}
}

// Model returns the configured model name.
func (e *Enhancer) Model() string {
	return e.cfg.Model
}

// Enhance sends the transcript text, never the audio, to the model.
func (e *Enhancer) Enhance(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", services.Wrap(services.ErrValidation, enhancementStage, "enhance", "transcript is empty", nil)
	}

	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: e.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(transcript)},
		},
		MaxTokens:        e.cfg.MaxTokens,
		Temperature:      float32(e.cfg.Temperature),
		TopP:             float32(e.cfg.TopP),
		FrequencyPenalty: float32(e.cfg.FrequencyPenalty),
		PresencePenalty:  float32(e.cfg.PresencePenalty),
		Stop:             e.cfg.Stop,
	})
	if err != nil {
		classified := classify(err, enhancementStage, "chat completion")
		logger.Debug("enhancement request failed",
			logging.String(logging.FieldFailureKind, string(services.Kind(classified))),
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(err),
		)
		return "", classified
	}
	if len(resp.Choices) == 0 {
		return "", services.Wrap(services.ErrUnknown, enhancementStage, "chat completion", "no choices returned", nil)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", services.Wrap(services.ErrUnknown, enhancementStage, "chat completion", "empty completion", nil)
	}
	logger.Debug("enhancement received",
		logging.Int("chars", len(text)),
		logging.String("finish_reason", string(resp.Choices[0].FinishReason)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return text, nil
}

func userPrompt(transcript string) string {
	return fmt.Sprintf("Transcription originale:\n\"%s\"\n\nTranscription étendue (ajouter des détails sur les gestes, les erreurs courantes et les conseils d'experts):", transcript)
}
