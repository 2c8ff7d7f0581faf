// Package analytics implements the fire-and-forget analytics sink: events
// are buffered in memory and written to the store by a background worker.
// Recording never blocks message processing and write failures are
// swallowed after logging.
package analytics

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talkpipe/talkpipe/internal/database"
)

// Event types recorded by the pipeline.
const (
	EventMessageProcessed = "message_processed"
	EventProviderFallback = "provider_fallback"
	EventMessageRejected  = "message_rejected"
)

// Event is one pipeline occurrence worth recording.
type Event struct {
	EventType  string
	ProviderID string
	Latency    time.Duration
	Success    bool
	Metadata   map[string]string
}

// Recorder buffers events and persists them asynchronously.
type Recorder struct {
	store  database.Store
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewRecorder creates a Recorder and starts its background writer.
func NewRecorder(store database.Store, logger *slog.Logger, bufferSize int) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &Recorder{
		store:  store,
		logger: logger.With("component", "analytics"),
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an event without blocking. Events are dropped when the
// buffer is full or the recorder has been closed; analytics must never
// apply backpressure to the pipeline, and late events from in-flight
// handlers must not crash shutdown.
func (r *Recorder) Record(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("Analytics recorder closed, dropping event", "event_type", event.EventType)
		return
	}

	select {
	case r.events <- event:
	default:
		r.logger.Warn("Analytics buffer full, dropping event", "event_type", event.EventType)
	}
}

// Trim removes events older than the retention window. Intended to run as
// a scheduled job.
func (r *Recorder) Trim(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().UTC().Add(-retention)
	if _, err := r.store.TrimAnalyticsEvents(ctx, cutoff); err != nil {
		r.logger.ErrorContext(ctx, "Failed to trim analytics events", "error", err)
	}
}

// Close stops accepting events and drains the buffer. Record calls racing
// or following Close drop their events instead of sending on the closed
// channel.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.events)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	for event := range r.events {
		metadata := "{}"
		if len(event.Metadata) > 0 {
			if raw, err := json.Marshal(event.Metadata); err == nil {
				metadata = string(raw)
			}
		}

		record := &database.AnalyticsEvent{
			ID:         uuid.NewString(),
			EventType:  event.EventType,
			ProviderID: event.ProviderID,
			LatencyMS:  event.Latency.Milliseconds(),
			Success:    event.Success,
			Metadata:   metadata,
			CreatedAt:  time.Now().UTC(),
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.SaveAnalyticsEvent(ctx, record); err != nil {
			r.logger.Error("Failed to persist analytics event",
				"event_type", event.EventType, "error", err)
		}
		cancel()
	}
}
