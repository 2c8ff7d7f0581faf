// Package personality implements the configurable reply-rewrite layer: a
// validated personality profile and a four-stage text transformation
// pipeline driven by it.
package personality

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/talkpipe/talkpipe/internal/config"
)

// Personality types.
const (
	TypeProfessional = "professional"
	TypeFriendly     = "friendly"
	TypeExpert       = "expert"
	TypeCaring       = "caring"
	TypeTrendy       = "trendy"
)

// Emotional tones.
const (
	ToneEnthusiastic = "enthusiastic"
	ToneCalm         = "calm"
	ToneEmpathetic   = "empathetic"
	ToneConfident    = "confident"
)

// Profile describes how generated replies are rewritten. Profiles are
// validated once at construction; downstream stages can rely on the enums.
type Profile struct {
	Type               string `validate:"oneof=professional friendly expert caring trendy"`
	CommunicationStyle string `validate:"oneof=formal casual mixed"`
	ResponseLength     string `validate:"oneof=concise detailed balanced"`
	EmotionalTone      string `validate:"oneof=enthusiastic calm empathetic confident"`

	IndustryType       string
	BrandVoice         map[string]string
	CustomInstructions string
	GreetingMessage    string
	FallbackResponses  []string
}

// Default returns the profile used when none is configured for a
// conversation.
func Default() Profile {
	return Profile{
		Type:               TypeFriendly,
		CommunicationStyle: "casual",
		ResponseLength:     "balanced",
		EmotionalTone:      ToneCalm,
		GreetingMessage:    "Hi there! How can I help you today?",
		FallbackResponses: []string{
			"I'm not sure I caught that. Could you rephrase?",
			"Let me make sure I understand. Could you tell me a bit more?",
		},
	}
}

// FromConfig builds a Profile from configuration, filling unset fields from
// the default profile and validating the result once at load time.
func FromConfig(cfg config.PersonalityConfig) (Profile, error) {
	profile := Default()

	if cfg.Type != "" {
		profile.Type = cfg.Type
	}
	if cfg.CommunicationStyle != "" {
		profile.CommunicationStyle = cfg.CommunicationStyle
	}
	if cfg.ResponseLength != "" {
		profile.ResponseLength = cfg.ResponseLength
	}
	if cfg.EmotionalTone != "" {
		profile.EmotionalTone = cfg.EmotionalTone
	}
	if cfg.IndustryType != "" {
		profile.IndustryType = cfg.IndustryType
	}
	if len(cfg.BrandVoice) > 0 {
		profile.BrandVoice = cfg.BrandVoice
	}
	if cfg.CustomInstructions != "" {
		profile.CustomInstructions = cfg.CustomInstructions
	}
	if cfg.GreetingMessage != "" {
		profile.GreetingMessage = cfg.GreetingMessage
	}
	if len(cfg.FallbackResponses) > 0 {
		profile.FallbackResponses = cfg.FallbackResponses
	}

	if err := validator.New().Struct(profile); err != nil {
		return Profile{}, fmt.Errorf("invalid personality profile: %w", err)
	}

	return profile, nil
}
