package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/talkpipe/talkpipe/internal/conversation"
	"github.com/talkpipe/talkpipe/internal/knowledge"
	"github.com/talkpipe/talkpipe/internal/nlu"
	"github.com/talkpipe/talkpipe/internal/personality"
	"github.com/talkpipe/talkpipe/internal/provider"
)

// historyWindow caps how many prior messages are replayed to the provider.
const historyWindow = 10

// buildRequest assembles the provider request: a system instruction derived
// from the personality profile, the NLU strategy, and any knowledge snapshot,
// followed by the recent conversation history and the inbound text.
func buildRequest(text string, cctx *conversation.Context, analysis nlu.Result, profile personality.Profile, snapshot knowledge.Snapshot) provider.Request {
	return provider.Request{
		SystemInstruction: buildSystemInstruction(analysis, profile, snapshot),
		History:           buildHistory(cctx),
		Prompt:            text,
	}
}

func buildSystemInstruction(analysis nlu.Result, profile personality.Profile, snapshot knowledge.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a %s assistant for customer conversations.\n", profile.Type)
	fmt.Fprintf(&b, "Communication style: %s. Emotional tone: %s.\n",
		profile.CommunicationStyle, profile.EmotionalTone)
	if profile.IndustryType != "" {
		fmt.Fprintf(&b, "Industry: %s.\n", profile.IndustryType)
	}
	if profile.CustomInstructions != "" {
		b.WriteString(profile.CustomInstructions)
		b.WriteString("\n")
	}

	strategy := analysis.Strategy
	fmt.Fprintf(&b, "The user's intent is %q and their emotional state is %q.\n",
		analysis.Intent.Name, analysis.Emotion.Name)
	fmt.Fprintf(&b, "Respond with a %s tone and keep the answer %s.\n",
		strategy.Tone, lengthHint(strategy.Length))
	if strategy.FollowUpNeeded {
		b.WriteString("End with a short follow-up question to keep the conversation going.\n")
	}

	if !snapshot.Empty() {
		b.WriteString("\nUse the following business data when it is relevant:\n")
		writeSnapshotRows(&b, snapshot)
	}

	return b.String()
}

// maxSnapshotRows bounds how much business data is inlined into the prompt.
const maxSnapshotRows = 20

func writeSnapshotRows(b *strings.Builder, snapshot knowledge.Snapshot) {
	rows := snapshot.Rows
	if len(rows) > maxSnapshotRows {
		rows = rows[:maxSnapshotRows]
	}
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for key := range row {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			if row[key] == "" {
				continue
			}
			parts = append(parts, key+": "+row[key])
		}
		b.WriteString("- " + strings.Join(parts, ", ") + "\n")
	}
}

func lengthHint(length string) string {
	switch length {
	case nlu.LengthConcise:
		return "short, one or two sentences"
	case nlu.LengthDetailed:
		return "thorough, covering the details"
	default:
		return "brief but complete"
	}
}

func buildHistory(cctx *conversation.Context) []provider.Message {
	recent := cctx.RecentMessages(historyWindow)
	history := make([]provider.Message, 0, len(recent))
	for _, m := range recent {
		switch m.Role {
		case conversation.RoleUser:
			history = append(history, provider.Message{Role: provider.RoleUser, Content: m.Content})
		case conversation.RoleAssistant:
			history = append(history, provider.Message{Role: provider.RoleAssistant, Content: m.Content})
		}
	}
	return history
}
