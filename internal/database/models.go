package database

import (
	"time"
)

// Conversation is the persisted form of a conversation context, keyed by
// (user_id, address). The log fields hold JSON-serialized payloads owned by
// the conversation package; the store treats them as opaque text.
type Conversation struct {
	UserID  int64  `db:"user_id"`
	Address string `db:"address"`

	Messages       string `db:"messages"`
	Intents        string `db:"intents"`
	EmotionalState string `db:"emotional_state"`
	EmotionHistory string `db:"emotion_history"`
	ContextData    string `db:"context_data"`

	StartedAt       time.Time `db:"started_at"`
	LastInteraction time.Time `db:"last_interaction"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// AnalyticsEvent is a single fire-and-forget pipeline event.
type AnalyticsEvent struct {
	ID         string    `db:"id"`
	EventType  string    `db:"event_type"`
	ProviderID string    `db:"provider_id"`
	LatencyMS  int64     `db:"latency_ms"`
	Success    bool      `db:"success"`
	Metadata   string    `db:"metadata"`
	CreatedAt  time.Time `db:"created_at"`
}
