package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/talkpipe/talkpipe/internal/conversation"
	"github.com/talkpipe/talkpipe/internal/provider"
)

// aiConfidenceThreshold gates the AI override: below it the rule-based
// classification wins.
const aiConfidenceThreshold = 0.7

// Completer runs a single short completion. Failures are acceptable; the
// analyzer always has its rule-based fallback.
type Completer interface {
	Complete(ctx context.Context, systemInstruction, prompt string, opts provider.Options) (string, error)
}

// Result is the full analysis of one inbound message.
type Result struct {
	Intent   Intent
	Emotion  Emotion
	Entities map[string][]string
	Strategy Strategy
}

// Analyzer classifies intent and emotion, extracts entities, and derives a
// response strategy. A nil Completer disables the AI path entirely.
type Analyzer struct {
	completer Completer
	logger    *slog.Logger
}

// NewAnalyzer creates an Analyzer. completer may be nil for rule-only mode.
func NewAnalyzer(completer Completer, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{
		completer: completer,
		logger:    logger.With("component", "nlu_analyzer"),
	}
}

// Analyze runs the full NLU pass. It never returns an error: any failure
// degrades to the rule-based or neutral result.
func (a *Analyzer) Analyze(ctx context.Context, text string, history *conversation.Context) Result {
	intent := a.DetectIntent(ctx, text, history)
	emotion := a.DetectEmotion(ctx, text, history)
	entities := ExtractEntities(text)
	analysis := AnalyzeContext(text, entities, history)

	return Result{
		Intent:   intent,
		Emotion:  emotion,
		Entities: entities,
		Strategy: DeriveStrategy(intent, emotion, entities, analysis),
	}
}

// DetectIntent combines rule-based and AI classification: the AI result is
// used only when its confidence exceeds the threshold; an AI failure falls
// back to rules alone.
func (a *Analyzer) DetectIntent(ctx context.Context, text string, history *conversation.Context) Intent {
	ruleIntent := classifyIntentByRules(text)

	aiIntent, err := a.classifyIntentByAI(ctx, text, history)
	if err != nil {
		a.logger.DebugContext(ctx, "AI intent classification unavailable, using rules",
			"rule_intent", ruleIntent.Name, "error", err)
		return ruleIntent
	}

	if aiIntent.Confidence > aiConfidenceThreshold {
		return aiIntent
	}
	return ruleIntent
}

// DetectEmotion applies the same combination policy as DetectIntent.
func (a *Analyzer) DetectEmotion(ctx context.Context, text string, history *conversation.Context) Emotion {
	ruleEmotion := classifyEmotionByRules(text)

	aiEmotion, err := a.classifyEmotionByAI(ctx, text, history)
	if err != nil {
		a.logger.DebugContext(ctx, "AI emotion classification unavailable, using rules",
			"rule_emotion", ruleEmotion.Name, "error", err)
		return ruleEmotion
	}

	if aiEmotion.Confidence > aiConfidenceThreshold {
		return aiEmotion
	}
	return ruleEmotion
}

type intentClassification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

type emotionClassification struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Intensity  float64 `json:"intensity"`
}

func (a *Analyzer) classifyIntentByAI(ctx context.Context, text string, history *conversation.Context) (Intent, error) {
	if a.completer == nil {
		return Intent{}, fmt.Errorf("no completer configured")
	}

	system := fmt.Sprintf(
		"You classify chat messages. Reply with only a JSON object %s where intent is one of: %s.",
		`{"intent": "...", "confidence": 0.0}`,
		strings.Join(intentLabels(), ", "))

	raw, err := a.completer.Complete(ctx, system, classificationPrompt(text, history), provider.Options{MaxTokens: 64})
	if err != nil {
		return Intent{}, err
	}

	var parsed intentClassification
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return Intent{}, fmt.Errorf("unparseable intent classification %q: %w", raw, err)
	}
	if !knownIntent(parsed.Intent) {
		return Intent{}, fmt.Errorf("unknown intent label %q", parsed.Intent)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return Intent{}, fmt.Errorf("intent confidence %f out of range", parsed.Confidence)
	}

	return Intent{Name: parsed.Intent, Confidence: parsed.Confidence, Method: MethodAI}, nil
}

func (a *Analyzer) classifyEmotionByAI(ctx context.Context, text string, history *conversation.Context) (Emotion, error) {
	if a.completer == nil {
		return Emotion{}, fmt.Errorf("no completer configured")
	}

	system := fmt.Sprintf(
		"You classify the emotion of chat messages. Reply with only a JSON object %s where emotion is one of: %s.",
		`{"emotion": "...", "confidence": 0.0, "intensity": 0.0}`,
		strings.Join(emotionLabels(), ", "))

	raw, err := a.completer.Complete(ctx, system, classificationPrompt(text, history), provider.Options{MaxTokens: 64})
	if err != nil {
		return Emotion{}, err
	}

	var parsed emotionClassification
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return Emotion{}, fmt.Errorf("unparseable emotion classification %q: %w", raw, err)
	}
	if !knownEmotion(parsed.Emotion) {
		return Emotion{}, fmt.Errorf("unknown emotion label %q", parsed.Emotion)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return Emotion{}, fmt.Errorf("emotion confidence %f out of range", parsed.Confidence)
	}
	if parsed.Intensity < 0 {
		parsed.Intensity = 0
	}
	if parsed.Intensity > 1 {
		parsed.Intensity = 1
	}

	return Emotion{
		Name:       parsed.Emotion,
		Confidence: parsed.Confidence,
		Intensity:  parsed.Intensity,
		Method:     MethodAI,
	}, nil
}

// classificationPrompt includes a short tail of history so the classifier
// sees the conversational frame without blowing the token budget.
func classificationPrompt(text string, history *conversation.Context) string {
	var sb strings.Builder
	if history != nil {
		recent := history.RecentMessages(4)
		if len(recent) > 0 {
			sb.WriteString("Recent conversation:\n")
			for _, m := range recent {
				sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, m.Content))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Message: ")
	sb.WriteString(text)
	return sb.String()
}

// extractJSONObject tolerates models that wrap the JSON in prose or fences.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
