package nlu

import (
	"strings"

	"github.com/talkpipe/talkpipe/internal/conversation"
)

// Strategy tones, lengths, and urgency levels.
const (
	ToneCalming      = "calming"
	ToneFriendly     = "friendly"
	ToneProfessional = "professional"
	ToneReassuring   = "reassuring"
	ToneEnthusiastic = "enthusiastic"

	LengthConcise  = "concise"
	LengthDetailed = "detailed"
	LengthBalanced = "balanced"

	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Strategy is the derived guidance for response generation and rewriting.
type Strategy struct {
	Tone            string
	Length          string
	PersonalityType string
	Urgency         string
	FollowUpNeeded  bool
}

// ContextAnalysis summarizes the conversation signals the strategy table
// keys on alongside intent and emotion.
type ContextAnalysis struct {
	Urgency    string
	Complexity string
	Stage      string
}

// AnalyzeContext derives urgency and complexity cues from the message text,
// extracted entities, and conversation history.
func AnalyzeContext(text string, entities map[string][]string, history *conversation.Context) ContextAnalysis {
	urgency := UrgencyLow
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "urgent") || strings.Contains(lower, "emergency") ||
		strings.Contains(lower, "asap") || strings.Contains(lower, "right away") ||
		strings.Contains(lower, "immediately"):
		urgency = UrgencyHigh
	case strings.Contains(lower, "soon") || strings.Contains(lower, "today") ||
		strings.Count(text, "!") >= 2:
		urgency = UrgencyMedium
	}

	complexity := "simple"
	if len(entities) >= 3 || len(strings.Fields(text)) > 40 {
		complexity = "complex"
	} else if len(entities) >= 1 || len(strings.Fields(text)) > 15 {
		complexity = "moderate"
	}

	stage := conversation.StageInitial
	if history != nil {
		stage = stageForHistory(len(history.Messages))
	}

	return ContextAnalysis{Urgency: urgency, Complexity: complexity, Stage: stage}
}

func stageForHistory(messageCount int) string {
	switch {
	case messageCount == 0:
		return conversation.StageInitial
	case messageCount <= 3:
		return conversation.StageGreeting
	case messageCount <= 10:
		return conversation.StageInquiry
	case messageCount <= 20:
		return conversation.StageEngagement
	default:
		return conversation.StageAdvanced
	}
}

// DeriveStrategy maps (intent, emotion, urgency, complexity) to response
// guidance through a deterministic table.
func DeriveStrategy(intent Intent, emotion Emotion, entities map[string][]string, analysis ContextAnalysis) Strategy {
	strategy := Strategy{
		Tone:            ToneFriendly,
		Length:          LengthBalanced,
		PersonalityType: "friendly",
		Urgency:         analysis.Urgency,
		FollowUpNeeded:  false,
	}

	switch intent.Name {
	case IntentComplaint:
		strategy.Tone = ToneCalming
		strategy.PersonalityType = "caring"
		strategy.FollowUpNeeded = true
	case IntentSupport:
		strategy.Tone = ToneReassuring
		strategy.PersonalityType = "expert"
		strategy.Length = LengthDetailed
	case IntentPricing, IntentPurchase:
		strategy.Tone = ToneProfessional
		strategy.PersonalityType = "professional"
	case IntentAppointment:
		strategy.Tone = ToneProfessional
		strategy.PersonalityType = "professional"
		strategy.FollowUpNeeded = true
	case IntentQuestion:
		strategy.Tone = ToneProfessional
		strategy.Length = LengthDetailed
	case IntentGreeting, IntentThanks, IntentFarewell:
		strategy.Tone = ToneFriendly
		strategy.Length = LengthConcise
	}

	// Emotional state overrides intent-driven personality.
	switch emotion.Name {
	case EmotionSad, EmotionWorried:
		strategy.PersonalityType = "caring"
		strategy.Tone = ToneReassuring
	case EmotionAngry:
		strategy.Tone = ToneCalming
		strategy.PersonalityType = "caring"
		strategy.FollowUpNeeded = true
	case EmotionExcited:
		strategy.Tone = ToneEnthusiastic
	}

	if analysis.Urgency == UrgencyHigh {
		strategy.Length = LengthConcise
		strategy.FollowUpNeeded = true
	}
	if analysis.Complexity == "complex" && strategy.Length != LengthConcise {
		strategy.Length = LengthDetailed
	}

	return strategy
}
