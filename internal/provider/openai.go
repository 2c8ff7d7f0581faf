package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	Token       string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// openAIAdapter implements Adapter over the OpenAI chat completions API.
type openAIAdapter struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI provider adapter.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("openai token is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clientCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openAIAdapter{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With("component", "openai_adapter"),
	}, nil
}

func (a *openAIAdapter) Name() string {
	return "openai"
}

func (a *openAIAdapter) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	temperature := a.cfg.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := a.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    chatMessages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "OpenAI completion failed", "model", a.cfg.Model, "error", err)
		return "", fmt.Errorf("openai completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(role string) string {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
