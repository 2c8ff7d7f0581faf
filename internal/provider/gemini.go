package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

// geminiAdapter implements Adapter over the Gemini API.
type geminiAdapter struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *slog.Logger
}

// NewGemini creates a Gemini provider adapter.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiAdapter{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "gemini_adapter"),
	}, nil
}

func (a *geminiAdapter) Name() string {
	return "gemini"
}

func (a *geminiAdapter) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	temperature := a.cfg.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := a.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int32(opts.MaxTokens)
	}

	contentCfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: maxTokens,
	}

	// Gemini takes the system instruction out of band rather than as a
	// message list entry.
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			contentCfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.Model, contents, contentCfg)
	if err != nil {
		a.logger.WarnContext(ctx, "Gemini completion failed", "model", a.cfg.Model, "error", err)
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	return extractGeminiText(resp)
}

func extractGeminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		return "", fmt.Errorf("gemini request blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned empty content")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
