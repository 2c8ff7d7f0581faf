// Package conversation implements the conversation memory layer: an
// in-memory cache of per-user contexts backed by the persistent store,
// with capped message/intent/emotion logs and periodic idle eviction.
package conversation

import (
	"time"
)

// Roles for entries in the conversation message log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single entry in the conversation message log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentEntry records one detected intent for the conversation.
type IntentEntry struct {
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// EmotionEntry records one detected emotional state for the conversation.
type EmotionEntry struct {
	Name      string    `json:"name"`
	Intensity float64   `json:"intensity"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the accumulated per-conversation state, keyed by
// (UserID, Address). Log lengths never exceed their caps; trimming always
// removes the oldest entries first.
type Context struct {
	UserID  int64
	Address string

	Messages       []Message
	Intents        []IntentEntry
	EmotionalState string
	EmotionHistory []EmotionEntry

	Preferences     map[string]string
	BusinessContext map[string]string

	StartedAt       time.Time
	LastInteraction time.Time
}

// NewContext constructs an empty context for a conversation key.
func NewContext(userID int64, address string) *Context {
	now := time.Now().UTC()
	return &Context{
		UserID:          userID,
		Address:         address,
		Preferences:     make(map[string]string),
		BusinessContext: make(map[string]string),
		StartedAt:       now,
		LastInteraction: now,
	}
}

// Clone returns a deep copy of the context so callers can read and mutate
// it without racing the cache.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}

	out := &Context{
		UserID:          c.UserID,
		Address:         c.Address,
		EmotionalState:  c.EmotionalState,
		StartedAt:       c.StartedAt,
		LastInteraction: c.LastInteraction,
		Messages:        make([]Message, len(c.Messages)),
		Intents:         make([]IntentEntry, len(c.Intents)),
		EmotionHistory:  make([]EmotionEntry, len(c.EmotionHistory)),
		Preferences:     make(map[string]string, len(c.Preferences)),
		BusinessContext: make(map[string]string, len(c.BusinessContext)),
	}
	copy(out.Messages, c.Messages)
	copy(out.Intents, c.Intents)
	copy(out.EmotionHistory, c.EmotionHistory)
	for k, v := range c.Preferences {
		out.Preferences[k] = v
	}
	for k, v := range c.BusinessContext {
		out.BusinessContext[k] = v
	}
	return out
}

// RecentMessages returns up to n of the newest messages in original order.
func (c *Context) RecentMessages(n int) []Message {
	if n <= 0 || len(c.Messages) == 0 {
		return nil
	}
	if n > len(c.Messages) {
		n = len(c.Messages)
	}
	out := make([]Message, n)
	copy(out, c.Messages[len(c.Messages)-n:])
	return out
}

// trimOldest keeps the newest max entries of a slice, dropping the oldest
// first and preserving the relative order of survivors.
func trimOldest[T any](entries []T, max int) []T {
	if max <= 0 || len(entries) <= max {
		return entries
	}
	return entries[len(entries)-max:]
}
