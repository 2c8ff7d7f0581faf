package analytics_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/talkpipe/talkpipe/internal/analytics"
	"github.com/talkpipe/talkpipe/internal/database"
)

// captureStore records analytics writes; the gate channel, when present,
// blocks each save until released.
type captureStore struct {
	mu      sync.Mutex
	events  []*database.AnalyticsEvent
	gate    chan struct{}
	entered chan struct{}

	trimCutoff time.Time
	trimCalls  int
}

func (s *captureStore) Ping(context.Context) error { return nil }

func (s *captureStore) GetConversation(context.Context, int64, string) (*database.Conversation, error) {
	return nil, nil
}

func (s *captureStore) UpsertConversation(context.Context, *database.Conversation) error {
	return nil
}

func (s *captureStore) DeleteConversation(context.Context, int64, string) error { return nil }

func (s *captureStore) SaveAnalyticsEvent(_ context.Context, event *database.AnalyticsEvent) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

func (s *captureStore) TrimAnalyticsEvents(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimCalls++
	s.trimCutoff = cutoff
	return 3, nil
}

func (s *captureStore) RunSQLMaintenance(context.Context) error { return nil }

func (s *captureStore) saved() []*database.AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*database.AnalyticsEvent(nil), s.events...)
}

func TestRecorderPersistsEvents(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	r := analytics.NewRecorder(store, nil, 16)

	r.Record(analytics.Event{
		EventType:  analytics.EventMessageProcessed,
		ProviderID: "openai",
		Latency:    120 * time.Millisecond,
		Success:    true,
		Metadata:   map[string]string{"intent": "greeting"},
	})
	r.Close()

	saved := store.saved()
	if len(saved) != 1 {
		t.Fatalf("saved %d events, want 1", len(saved))
	}

	event := saved[0]
	if event.ID == "" {
		t.Error("event ID not assigned")
	}
	if event.EventType != analytics.EventMessageProcessed || event.ProviderID != "openai" {
		t.Errorf("saved event = %+v, want type and provider carried over", event)
	}
	if event.LatencyMS != 120 {
		t.Errorf("LatencyMS = %d, want 120", event.LatencyMS)
	}
	if !event.Success {
		t.Error("Success flag lost")
	}

	var metadata map[string]string
	if err := json.Unmarshal([]byte(event.Metadata), &metadata); err != nil {
		t.Fatalf("metadata %q is not valid JSON: %v", event.Metadata, err)
	}
	if metadata["intent"] != "greeting" {
		t.Errorf("metadata = %v, want intent preserved", metadata)
	}
}

func TestRecorderDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	store := &captureStore{gate: make(chan struct{}), entered: make(chan struct{}, 4)}
	r := analytics.NewRecorder(store, nil, 1)

	// First event is picked up by the writer and parks on the gate; the
	// second fills the buffer; the third must be dropped without blocking.
	r.Record(analytics.Event{EventType: "first"})
	<-store.entered
	r.Record(analytics.Event{EventType: "second"})

	done := make(chan struct{})
	go func() {
		r.Record(analytics.Event{EventType: "third"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(store.gate)
	r.Close()

	saved := store.saved()
	if len(saved) != 2 {
		t.Errorf("saved %d events, want 2 with one dropped", len(saved))
	}
	for _, event := range saved {
		if event.EventType == "third" {
			t.Error("dropped event was persisted")
		}
	}
}

func TestRecorderCloseDrains(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	r := analytics.NewRecorder(store, nil, 32)

	for i := 0; i < 10; i++ {
		r.Record(analytics.Event{EventType: analytics.EventMessageProcessed})
	}
	r.Close()

	if got := len(store.saved()); got != 10 {
		t.Errorf("saved %d events after Close, want 10", got)
	}

	// Close is idempotent.
	r.Close()
}

func TestRecorderDropsAfterClose(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	r := analytics.NewRecorder(store, nil, 16)

	r.Record(analytics.Event{EventType: analytics.EventMessageProcessed})
	r.Close()

	// A handler still in flight at shutdown may record after Close; the
	// event is dropped, never sent on the closed channel.
	r.Record(analytics.Event{EventType: analytics.EventMessageRejected})

	saved := store.saved()
	if len(saved) != 1 {
		t.Fatalf("saved %d events, want 1", len(saved))
	}
	if saved[0].EventType != analytics.EventMessageProcessed {
		t.Errorf("saved event type = %q, want %q", saved[0].EventType, analytics.EventMessageProcessed)
	}
}

func TestRecorderConcurrentRecordAndClose(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	r := analytics.NewRecorder(store, nil, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Record(analytics.Event{EventType: analytics.EventMessageProcessed})
			}
		}()
	}
	r.Close()
	wg.Wait()
}

func TestRecorderTrim(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	r := analytics.NewRecorder(store, nil, 4)
	defer r.Close()

	retention := 7 * 24 * time.Hour
	before := time.Now().UTC().Add(-retention)
	r.Trim(context.Background(), retention)

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.trimCalls != 1 {
		t.Fatalf("trim called %d times, want 1", store.trimCalls)
	}
	if store.trimCutoff.Before(before.Add(-time.Minute)) || store.trimCutoff.After(time.Now().UTC()) {
		t.Errorf("trim cutoff = %v, want about %v", store.trimCutoff, before)
	}
}
