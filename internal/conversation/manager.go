package conversation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/talkpipe/talkpipe/internal/database"
)

// Caps bounds the context log lengths.
type Caps struct {
	MaxMessages       int
	MaxIntents        int
	MaxEmotionHistory int
}

// DefaultCaps matches the documented context limits.
func DefaultCaps() Caps {
	return Caps{
		MaxMessages:       50,
		MaxIntents:        20,
		MaxEmotionHistory: 20,
	}
}

// Update describes a partial context mutation. Scalar fields are
// last-write-wins when non-nil; log fields are appended then trimmed to cap.
type Update struct {
	AppendMessages []Message
	AppendIntents  []IntentEntry
	AppendEmotions []EmotionEntry
	EmotionalState *string

	Preferences     map[string]string
	BusinessContext map[string]string
}

type contextKey struct {
	userID  int64
	address string
}

// entry holds one cached context behind its own lock so store reads and
// writes for one conversation never stall the others.
type entry struct {
	mu      sync.Mutex
	loaded  bool
	context *Context
}

// Manager owns the in-memory context cache and mediates all reads and
// writes against the persistent store.
type Manager struct {
	store        database.Store
	logger       *slog.Logger
	caps         Caps
	idleEviction time.Duration

	mu    sync.Mutex // guards the cache map only
	cache map[contextKey]*entry
}

// NewManager creates a Manager with the given caps and idle-eviction window.
func NewManager(store database.Store, logger *slog.Logger, caps Caps, idleEviction time.Duration) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if caps.MaxMessages <= 0 {
		caps = DefaultCaps()
	}
	if idleEviction <= 0 {
		idleEviction = 24 * time.Hour
	}
	return &Manager{
		store:        store,
		logger:       logger.With("component", "conversation_manager"),
		caps:         caps,
		idleEviction: idleEviction,
		cache:        make(map[contextKey]*entry),
	}
}

// Get returns the context for (userID, address). Cache hits return
// immediately; misses load from the store, and store failures degrade to a
// freshly constructed empty context. Get never returns an error.
func (m *Manager) Get(ctx context.Context, userID int64, address string) *Context {
	e := m.entryFor(userID, address)
	e.mu.Lock()
	defer e.mu.Unlock()
	m.ensureLoaded(ctx, e, userID, address)
	return e.context.Clone()
}

// Update merges a partial update into the context for (userID, address),
// refreshes the cache, and upserts the result to the store. A store-write
// failure is logged but does not roll back the cache update.
func (m *Manager) Update(ctx context.Context, userID int64, address string, upd Update) *Context {
	e := m.entryFor(userID, address)
	e.mu.Lock()
	defer e.mu.Unlock()
	m.ensureLoaded(ctx, e, userID, address)
	current := e.context

	if len(upd.AppendMessages) > 0 {
		current.Messages = trimOldest(append(current.Messages, upd.AppendMessages...), m.caps.MaxMessages)
	}
	if len(upd.AppendIntents) > 0 {
		current.Intents = trimOldest(append(current.Intents, upd.AppendIntents...), m.caps.MaxIntents)
	}
	if len(upd.AppendEmotions) > 0 {
		current.EmotionHistory = trimOldest(append(current.EmotionHistory, upd.AppendEmotions...), m.caps.MaxEmotionHistory)
	}
	if upd.EmotionalState != nil {
		current.EmotionalState = *upd.EmotionalState
	}
	for k, v := range upd.Preferences {
		current.Preferences[k] = v
	}
	for k, v := range upd.BusinessContext {
		current.BusinessContext[k] = v
	}
	current.LastInteraction = time.Now().UTC()

	snapshot := current.Clone()

	// The entry lock is held across the upsert so same-key snapshots reach
	// the store in cache order. Other conversations are unaffected.
	if err := m.store.UpsertConversation(ctx, toRecord(snapshot)); err != nil {
		// Eventual-consistency gap: the cache already holds the new state.
		m.logger.ErrorContext(ctx, "Failed to persist conversation update",
			"user_id", userID, "address", address, "error", err)
	}

	return snapshot
}

// AppendMessage appends one timestamped entry to the message log.
func (m *Manager) AppendMessage(ctx context.Context, userID int64, address, content, role string) *Context {
	return m.Update(ctx, userID, address, Update{
		AppendMessages: []Message{{
			Role:      role,
			Content:   content,
			Timestamp: time.Now().UTC(),
		}},
	})
}

// Sweep evicts cache entries whose last interaction is older than the idle
// eviction window. The persisted copy is never touched. Returns the number
// of evicted entries.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, e := range m.cache {
		e.mu.Lock()
		idle := e.loaded && now.Sub(e.context.LastInteraction) > m.idleEviction
		e.mu.Unlock()
		if idle {
			delete(m.cache, key)
			evicted++
		}
	}

	if evicted > 0 {
		m.logger.Info("Evicted idle conversations from cache",
			"evicted", evicted, "remaining", len(m.cache))
	}
	return evicted
}

// CachedCount reports the number of contexts currently held in memory.
func (m *Manager) CachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// entryFor returns the cache entry for a conversation key, creating an
// empty one if needed. Only the map lock is held here.
func (m *Manager) entryFor(userID int64, address string) *entry {
	key := contextKey{userID: userID, address: address}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[key]
	if !ok {
		e = &entry{}
		m.cache[key] = e
	}
	return e
}

// ensureLoaded populates an entry from the store on first use. Callers must
// hold the entry lock.
func (m *Manager) ensureLoaded(ctx context.Context, e *entry, userID int64, address string) {
	if e.loaded {
		return
	}

	record, err := m.store.GetConversation(ctx, userID, address)
	if err != nil {
		// Local recovery: continue with an empty context rather than failing.
		m.logger.ErrorContext(ctx, "Failed to load conversation from store, starting empty",
			"user_id", userID, "address", address, "error", err)
		record = nil
	}

	if record != nil {
		e.context = fromRecord(record, m.logger)
	} else {
		e.context = NewContext(userID, address)
	}
	e.loaded = true
}

// contextData is the serialized form of the free-form context maps.
type contextData struct {
	Preferences     map[string]string `json:"preferences"`
	BusinessContext map[string]string `json:"business_context"`
	StartedAt       time.Time         `json:"started_at"`
}

func toRecord(c *Context) *database.Conversation {
	messages, _ := json.Marshal(c.Messages)
	intents, _ := json.Marshal(c.Intents)
	emotions, _ := json.Marshal(c.EmotionHistory)
	data, _ := json.Marshal(contextData{
		Preferences:     c.Preferences,
		BusinessContext: c.BusinessContext,
		StartedAt:       c.StartedAt,
	})

	return &database.Conversation{
		UserID:          c.UserID,
		Address:         c.Address,
		Messages:        string(messages),
		Intents:         string(intents),
		EmotionalState:  c.EmotionalState,
		EmotionHistory:  string(emotions),
		ContextData:     string(data),
		StartedAt:       c.StartedAt,
		LastInteraction: c.LastInteraction,
	}
}

// fromRecord parses a stored conversation. Corrupt log fields are logged
// and replaced with empty logs rather than failing the load.
func fromRecord(r *database.Conversation, logger *slog.Logger) *Context {
	c := NewContext(r.UserID, r.Address)
	c.EmotionalState = r.EmotionalState
	if !r.StartedAt.IsZero() {
		c.StartedAt = r.StartedAt
	}
	if !r.LastInteraction.IsZero() {
		c.LastInteraction = r.LastInteraction
	}

	if err := json.Unmarshal([]byte(r.Messages), &c.Messages); err != nil {
		logger.Warn("Discarding unparseable message log", "user_id", r.UserID, "error", err)
		c.Messages = nil
	}
	if err := json.Unmarshal([]byte(r.Intents), &c.Intents); err != nil {
		logger.Warn("Discarding unparseable intent log", "user_id", r.UserID, "error", err)
		c.Intents = nil
	}
	if err := json.Unmarshal([]byte(r.EmotionHistory), &c.EmotionHistory); err != nil {
		logger.Warn("Discarding unparseable emotion history", "user_id", r.UserID, "error", err)
		c.EmotionHistory = nil
	}

	var data contextData
	if err := json.Unmarshal([]byte(r.ContextData), &data); err != nil {
		logger.Warn("Discarding unparseable context data", "user_id", r.UserID, "error", err)
	} else {
		if data.Preferences != nil {
			c.Preferences = data.Preferences
		}
		if data.BusinessContext != nil {
			c.BusinessContext = data.BusinessContext
		}
		if !data.StartedAt.IsZero() {
			c.StartedAt = data.StartedAt
		}
	}

	return c
}
