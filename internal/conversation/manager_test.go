package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/talkpipe/talkpipe/internal/conversation"
	"github.com/talkpipe/talkpipe/internal/database"
)

// memoryStore is an in-memory Store double for manager tests. The gate
// fields, when set, park the matching call until released so tests can
// hold a store operation open.
type memoryStore struct {
	mu       sync.Mutex
	rows     map[string]*database.Conversation
	getErr   error
	writeErr error
	upserts  int

	getGate    chan struct{}
	getGateKey string
	getEntered chan struct{}

	upsertGate    chan struct{}
	upsertEntered chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]*database.Conversation)}
}

func storeKey(userID int64, address string) string {
	return fmt.Sprintf("%d|%s", userID, address)
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) GetConversation(_ context.Context, userID int64, address string) (*database.Conversation, error) {
	s.mu.Lock()
	gate, gateKey, entered := s.getGate, s.getGateKey, s.getEntered
	s.mu.Unlock()
	if gate != nil && storeKey(userID, address) == gateKey {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	row, ok := s.rows[storeKey(userID, address)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *memoryStore) UpsertConversation(_ context.Context, conv *database.Conversation) error {
	s.mu.Lock()
	gate, entered := s.upsertGate, s.upsertEntered
	s.upsertGate = nil // gate applies to the first upsert only
	s.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.writeErr != nil {
		return s.writeErr
	}
	copied := *conv
	s.rows[storeKey(conv.UserID, conv.Address)] = &copied
	return nil
}

func (s *memoryStore) DeleteConversation(_ context.Context, userID int64, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, storeKey(userID, address))
	return nil
}

func (s *memoryStore) SaveAnalyticsEvent(context.Context, *database.AnalyticsEvent) error {
	return nil
}

func (s *memoryStore) TrimAnalyticsEvents(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *memoryStore) RunSQLMaintenance(context.Context) error { return nil }

func newTestManager(store database.Store) *conversation.Manager {
	return conversation.NewManager(store, nil, conversation.DefaultCaps(), 24*time.Hour)
}

func TestManagerGetCreatesEmptyContext(t *testing.T) {
	t.Parallel()

	m := newTestManager(newMemoryStore())
	ctx := context.Background()

	c := m.Get(ctx, 1, "telegram:100")
	if c.UserID != 1 || c.Address != "telegram:100" {
		t.Errorf("context keyed (%d, %q), want (1, %q)", c.UserID, c.Address, "telegram:100")
	}
	if len(c.Messages) != 0 || len(c.Intents) != 0 || len(c.EmotionHistory) != 0 {
		t.Error("fresh context has non-empty logs")
	}

	// Reads alone must not change observable state.
	again := m.Get(ctx, 1, "telegram:100")
	if len(again.Messages) != 0 {
		t.Error("repeated Get mutated the context")
	}
}

func TestManagerGetDegradesOnStoreFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.getErr = errors.New("disk on fire")
	m := newTestManager(store)

	c := m.Get(context.Background(), 7, "telegram:7")
	if c == nil {
		t.Fatal("Get returned nil on store failure")
	}
	if len(c.Messages) != 0 {
		t.Error("degraded context is not empty")
	}
}

func TestManagerUpdateTrimsOldestBeyondCap(t *testing.T) {
	t.Parallel()

	m := newTestManager(newMemoryStore())
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		m.AppendMessage(ctx, 1, "telegram:1", fmt.Sprintf("msg-%d", i), conversation.RoleUser)
	}

	c := m.Get(ctx, 1, "telegram:1")
	if len(c.Messages) != 50 {
		t.Fatalf("message log length = %d, want 50", len(c.Messages))
	}
	if c.Messages[0].Content != "msg-10" {
		t.Errorf("oldest surviving message = %q, want %q", c.Messages[0].Content, "msg-10")
	}
	if c.Messages[49].Content != "msg-59" {
		t.Errorf("newest message = %q, want %q", c.Messages[49].Content, "msg-59")
	}
}

func TestManagerUpdateMergesState(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	emotional := "happy"
	c := m.Update(ctx, 2, "telegram:2", conversation.Update{
		AppendIntents: []conversation.IntentEntry{
			{Name: "greeting", Confidence: 0.9, Timestamp: time.Now().UTC()},
		},
		AppendEmotions: []conversation.EmotionEntry{
			{Name: "happy", Intensity: 0.8, Timestamp: time.Now().UTC()},
		},
		EmotionalState: &emotional,
		Preferences:    map[string]string{"language": "en"},
	})

	if c.EmotionalState != "happy" {
		t.Errorf("EmotionalState = %q, want %q", c.EmotionalState, "happy")
	}
	if len(c.Intents) != 1 || c.Intents[0].Name != "greeting" {
		t.Errorf("intent log = %+v, want one greeting entry", c.Intents)
	}
	if c.Preferences["language"] != "en" {
		t.Errorf("Preferences[language] = %q, want %q", c.Preferences["language"], "en")
	}

	// The merged state was persisted.
	row, err := store.GetConversation(ctx, 2, "telegram:2")
	if err != nil || row == nil {
		t.Fatalf("GetConversation() = %v, %v, want persisted row", row, err)
	}
	if row.EmotionalState != "happy" {
		t.Errorf("persisted EmotionalState = %q, want %q", row.EmotionalState, "happy")
	}
}

func TestManagerUpdateSurvivesWriteFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.writeErr = errors.New("disk full")
	m := newTestManager(store)
	ctx := context.Background()

	m.AppendMessage(ctx, 3, "telegram:3", "hello", conversation.RoleUser)

	// The cache keeps the new state even though persistence failed.
	c := m.Get(ctx, 3, "telegram:3")
	if len(c.Messages) != 1 {
		t.Errorf("cached message count = %d after write failure, want 1", len(c.Messages))
	}
}

func TestManagerReloadsPersistedContext(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	ctx := context.Background()

	first := newTestManager(store)
	first.AppendMessage(ctx, 4, "telegram:4", "remember me", conversation.RoleUser)

	// A fresh manager (fresh cache) must recover the context from the store.
	second := newTestManager(store)
	c := second.Get(ctx, 4, "telegram:4")
	if len(c.Messages) != 1 || c.Messages[0].Content != "remember me" {
		t.Errorf("reloaded messages = %+v, want the persisted entry", c.Messages)
	}
}

func TestManagerSweepEvictsIdleContexts(t *testing.T) {
	t.Parallel()

	m := newTestManager(newMemoryStore())
	ctx := context.Background()

	m.AppendMessage(ctx, 5, "telegram:5", "hi", conversation.RoleUser)
	m.AppendMessage(ctx, 6, "telegram:6", "hi", conversation.RoleUser)
	if got := m.CachedCount(); got != 2 {
		t.Fatalf("CachedCount() = %d, want 2", got)
	}

	// Nothing is idle yet.
	if evicted := m.Sweep(time.Now().UTC()); evicted != 0 {
		t.Errorf("Sweep() evicted %d fresh contexts", evicted)
	}

	// A day later both are idle.
	evicted := m.Sweep(time.Now().UTC().Add(25 * time.Hour))
	if evicted != 2 {
		t.Errorf("Sweep() = %d, want 2", evicted)
	}
	if got := m.CachedCount(); got != 0 {
		t.Errorf("CachedCount() = %d after sweep, want 0", got)
	}
}

func TestManagerSlowLoadDoesNotStallOtherKeys(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.getGate = make(chan struct{})
	store.getGateKey = storeKey(10, "telegram:10")
	store.getEntered = make(chan struct{}, 1)
	m := newTestManager(store)
	ctx := context.Background()

	slow := make(chan struct{})
	go func() {
		m.Get(ctx, 10, "telegram:10")
		close(slow)
	}()
	<-store.getEntered

	// The other conversation must make progress while the first key's
	// store read is still parked.
	done := make(chan struct{})
	go func() {
		m.Get(ctx, 11, "telegram:11")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Get for an unrelated key blocked behind a slow store read")
	}

	close(store.getGate)
	<-slow
}

func TestManagerSameKeyUpsertsStayOrdered(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	gate := make(chan struct{})
	store.upsertGate = gate
	store.upsertEntered = make(chan struct{}, 1)
	m := newTestManager(store)
	ctx := context.Background()

	first := make(chan struct{})
	go func() {
		m.AppendMessage(ctx, 9, "telegram:9", "first", conversation.RoleUser)
		close(first)
	}()
	<-store.upsertEntered

	// The second update to the same key must wait for the parked upsert;
	// otherwise the store ends up one snapshot behind the cache.
	second := make(chan struct{})
	go func() {
		m.AppendMessage(ctx, 9, "telegram:9", "second", conversation.RoleUser)
		close(second)
	}()

	close(gate)
	<-first
	<-second

	row, err := store.GetConversation(ctx, 9, "telegram:9")
	if err != nil || row == nil {
		t.Fatalf("GetConversation() = %v, %v, want persisted row", row, err)
	}
	var messages []conversation.Message
	if err := json.Unmarshal([]byte(row.Messages), &messages); err != nil {
		t.Fatalf("persisted message log %q is not valid JSON: %v", row.Messages, err)
	}
	if len(messages) != 2 || messages[1].Content != "second" {
		t.Errorf("persisted messages = %+v, want both entries with %q last", messages, "second")
	}
}

func TestManagerReturnsClones(t *testing.T) {
	t.Parallel()

	m := newTestManager(newMemoryStore())
	ctx := context.Background()

	m.AppendMessage(ctx, 8, "telegram:8", "original", conversation.RoleUser)

	c := m.Get(ctx, 8, "telegram:8")
	c.Messages[0].Content = "tampered"
	c.Preferences["k"] = "v"

	fresh := m.Get(ctx, 8, "telegram:8")
	if fresh.Messages[0].Content != "original" {
		t.Error("mutating a returned context leaked into the cache")
	}
	if _, ok := fresh.Preferences["k"]; ok {
		t.Error("mutating a returned preferences map leaked into the cache")
	}
}
