package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/talkpipe/talkpipe/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestStoreConversationRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if row, err := store.GetConversation(ctx, 42, "telegram:42"); err != nil || row != nil {
		t.Fatalf("GetConversation() on empty db = %v, %v, want nil, nil", row, err)
	}

	conv := &database.Conversation{
		UserID:         42,
		Address:        "telegram:42",
		Messages:       `[{"role":"user","content":"hello"}]`,
		Intents:        `[{"name":"greeting","confidence":0.9}]`,
		EmotionalState: "neutral",
		EmotionHistory: `[]`,
		ContextData:    `{}`,
		StartedAt:      time.Now().UTC(),
	}
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	got, err := store.GetConversation(ctx, 42, "telegram:42")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetConversation() = nil after upsert")
	}
	if got.EmotionalState != "neutral" || got.Messages != conv.Messages {
		t.Errorf("round-tripped row = %+v, want the stored values", got)
	}
}

func TestStoreUpsertOverwritesOnConflict(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &database.Conversation{
		UserID:         7,
		Address:        "telegram:7",
		Messages:       `["v1"]`,
		Intents:        `[]`,
		EmotionalState: "neutral",
		EmotionHistory: `[]`,
		ContextData:    `{}`,
	}
	if err := store.UpsertConversation(ctx, first); err != nil {
		t.Fatalf("first upsert error = %v", err)
	}

	second := *first
	second.Messages = `["v2"]`
	second.EmotionalState = "happy"
	if err := store.UpsertConversation(ctx, &second); err != nil {
		t.Fatalf("second upsert error = %v", err)
	}

	got, err := store.GetConversation(ctx, 7, "telegram:7")
	if err != nil || got == nil {
		t.Fatalf("GetConversation() = %v, %v", got, err)
	}
	if got.Messages != `["v2"]` || got.EmotionalState != "happy" {
		t.Errorf("row after conflict upsert = %+v, want the v2 values", got)
	}
	if !got.LastInteraction.After(time.Time{}) {
		t.Error("LastInteraction not refreshed on upsert")
	}
}

func TestStoreUpsertValidation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertConversation(ctx, nil); err == nil {
		t.Error("UpsertConversation(nil) = nil error")
	}
	if err := store.UpsertConversation(ctx, &database.Conversation{Address: "x"}); err == nil {
		t.Error("UpsertConversation() with zero user_id = nil error")
	}
	if err := store.UpsertConversation(ctx, &database.Conversation{UserID: 1}); err == nil {
		t.Error("UpsertConversation() with empty address = nil error")
	}
}

func TestStoreDeleteConversation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv := &database.Conversation{
		UserID: 9, Address: "telegram:9",
		Messages: `[]`, Intents: `[]`, EmotionHistory: `[]`, ContextData: `{}`,
	}
	if err := store.UpsertConversation(ctx, conv); err != nil {
		t.Fatalf("UpsertConversation() error = %v", err)
	}

	if err := store.DeleteConversation(ctx, 9, "telegram:9"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if row, err := store.GetConversation(ctx, 9, "telegram:9"); err != nil || row != nil {
		t.Errorf("GetConversation() after delete = %v, %v, want nil, nil", row, err)
	}
}

func TestStoreAnalyticsEventsTrim(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	old := &database.AnalyticsEvent{
		ID:        "evt-old",
		EventType: "message_processed",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	fresh := &database.AnalyticsEvent{
		ID:        "evt-fresh",
		EventType: "message_processed",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveAnalyticsEvent(ctx, old); err != nil {
		t.Fatalf("SaveAnalyticsEvent(old) error = %v", err)
	}
	if err := store.SaveAnalyticsEvent(ctx, fresh); err != nil {
		t.Fatalf("SaveAnalyticsEvent(fresh) error = %v", err)
	}

	removed, err := store.TrimAnalyticsEvents(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("TrimAnalyticsEvents() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("TrimAnalyticsEvents() = %d, want 1", removed)
	}
}

func TestStoreMaintenanceAndPing(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := store.RunSQLMaintenance(ctx); err != nil {
		t.Errorf("RunSQLMaintenance() error = %v", err)
	}
}
