// Package provider implements the multi-backend text generation layer:
// interchangeable provider adapters behind one contract, per-provider rate
// limiting and circuit breaking, and a prioritized fallback pool.
package provider

import (
	"context"
	"time"
)

// Message roles for the abstract generation request.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in a generation request.
type Message struct {
	Role    string
	Content string
}

// Options tune a single generation call. Zero values defer to the adapter's
// configured defaults.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// Adapter is the abstract contract every generation backend implements.
// Adapters are interchangeable behind this interface.
type Adapter interface {
	// Name returns the stable provider identifier (e.g. "openai").
	Name() string

	// Generate produces a completion for the role-tagged message list.
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Response is the result of a pool generation call. Success is false only
// when every eligible provider was skipped or failed and the content was
// drawn from the static fallback set.
type Response struct {
	Content        string
	ProviderID     string
	Success        bool
	Confidence     float64
	Timestamp      time.Time
	ProcessingTime time.Duration
}

// Request carries the pieces the pool assembles into a role-tagged message
// list: a system instruction, the conversation's recent history, and the
// user prompt.
type Request struct {
	SystemInstruction string
	History           []Message
	Prompt            string
	Options           Options
}

// BuildMessages assembles the role-tagged list sent to adapters.
func (r Request) BuildMessages() []Message {
	messages := make([]Message, 0, len(r.History)+2)
	if r.SystemInstruction != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: r.SystemInstruction})
	}
	messages = append(messages, r.History...)
	if r.Prompt != "" {
		messages = append(messages, Message{Role: RoleUser, Content: r.Prompt})
	}
	return messages
}
