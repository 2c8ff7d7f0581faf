package conversation_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/talkpipe/talkpipe/internal/conversation"
)

func TestSummarizeEmptyConversation(t *testing.T) {
	t.Parallel()

	m := newTestManager(newMemoryStore())

	s := m.Summarize(context.Background(), 1, "telegram:1")
	if s.MessageCount != 0 || s.IntentCount != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0)", s.MessageCount, s.IntentCount)
	}
	if s.Stage != conversation.StageInitial {
		t.Errorf("Stage = %q, want %q", s.Stage, conversation.StageInitial)
	}
	if s.Engagement != 0 {
		t.Errorf("Engagement = %v for empty conversation, want 0", s.Engagement)
	}
	if s.DominantIntents != nil {
		t.Errorf("DominantIntents = %v, want nil", s.DominantIntents)
	}
}

func TestSummarizeStageThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		messages int
		stage    string
	}{
		{1, conversation.StageGreeting},
		{3, conversation.StageGreeting},
		{4, conversation.StageInquiry},
		{10, conversation.StageInquiry},
		{11, conversation.StageEngagement},
		{20, conversation.StageEngagement},
		{21, conversation.StageAdvanced},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d messages", tt.messages), func(t *testing.T) {
			t.Parallel()

			m := newTestManager(newMemoryStore())
			ctx := context.Background()
			for i := 0; i < tt.messages; i++ {
				m.AppendMessage(ctx, 1, "telegram:1", "hi", conversation.RoleUser)
			}

			if s := m.Summarize(ctx, 1, "telegram:1"); s.Stage != tt.stage {
				t.Errorf("Stage = %q, want %q", s.Stage, tt.stage)
			}
		})
	}
}

func TestSummarizeDominantIntents(t *testing.T) {
	t.Parallel()

	m := newTestManager(newMemoryStore())
	ctx := context.Background()

	now := time.Now().UTC()
	entries := []conversation.IntentEntry{
		{Name: "pricing", Confidence: 0.8, Timestamp: now},
		{Name: "pricing", Confidence: 0.8, Timestamp: now},
		{Name: "pricing", Confidence: 0.8, Timestamp: now},
		{Name: "support", Confidence: 0.7, Timestamp: now},
		{Name: "support", Confidence: 0.7, Timestamp: now},
		{Name: "greeting", Confidence: 0.9, Timestamp: now},
		{Name: "farewell", Confidence: 0.9, Timestamp: now},
	}
	m.Update(ctx, 1, "telegram:1", conversation.Update{AppendIntents: entries})

	s := m.Summarize(ctx, 1, "telegram:1")

	// Ranked by frequency, ties alphabetical.
	want := []string{"pricing", "support", "farewell", "greeting"}
	if len(s.DominantIntents) != len(want) {
		t.Fatalf("DominantIntents = %v, want %v", s.DominantIntents, want)
	}
	for i, name := range want {
		if s.DominantIntents[i] != name {
			t.Errorf("DominantIntents[%d] = %q, want %q", i, s.DominantIntents[i], name)
		}
	}
}
