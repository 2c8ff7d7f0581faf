package conversation

import (
	"context"
	"sort"
	"time"
)

// Conversation stage labels derived from message count thresholds.
const (
	StageInitial    = "initial"
	StageGreeting   = "greeting"
	StageInquiry    = "inquiry"
	StageEngagement = "engagement"
	StageAdvanced   = "advanced"
)

// engagementCap bounds the messages-per-minute score for bursty chats.
const engagementCap = 10.0

// Summary is a derived view of a conversation's shape and activity.
type Summary struct {
	MessageCount    int
	IntentCount     int
	DominantIntents []string
	Duration        time.Duration
	Engagement      float64
	Stage           string
}

// Summarize derives message/intent counts, the top intents by frequency,
// conversation duration, an engagement score, and a stage label for the
// conversation at (userID, address).
func (m *Manager) Summarize(ctx context.Context, userID int64, address string) Summary {
	c := m.Get(ctx, userID, address)

	duration := c.LastInteraction.Sub(c.StartedAt)
	if duration < 0 {
		duration = 0
	}

	return Summary{
		MessageCount:    len(c.Messages),
		IntentCount:     len(c.Intents),
		DominantIntents: dominantIntents(c.Intents, 5),
		Duration:        duration,
		Engagement:      engagementScore(len(c.Messages), duration),
		Stage:           stageForCount(len(c.Messages)),
	}
}

// dominantIntents returns up to n intent names ranked by frequency.
// Ties break alphabetically for deterministic output.
func dominantIntents(intents []IntentEntry, n int) []string {
	if len(intents) == 0 || n <= 0 {
		return nil
	}

	counts := make(map[string]int, len(intents))
	for _, entry := range intents {
		counts[entry.Name]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > n {
		names = names[:n]
	}
	return names
}

// engagementScore is messages per minute, capped to keep burst traffic from
// skewing downstream heuristics.
func engagementScore(messageCount int, duration time.Duration) float64 {
	if messageCount == 0 {
		return 0
	}

	minutes := duration.Minutes()
	if minutes < 1 {
		minutes = 1
	}

	score := float64(messageCount) / minutes
	if score > engagementCap {
		score = engagementCap
	}
	return score
}

func stageForCount(messageCount int) string {
	switch {
	case messageCount == 0:
		return StageInitial
	case messageCount <= 3:
		return StageGreeting
	case messageCount <= 10:
		return StageInquiry
	case messageCount <= 20:
		return StageEngagement
	default:
		return StageAdvanced
	}
}
