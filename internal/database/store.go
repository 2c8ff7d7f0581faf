package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetConversation retrieves the conversation keyed by (userID, address).
	// Returns nil, nil if no conversation has been persisted yet.
	GetConversation(ctx context.Context, userID int64, address string) (*Conversation, error)

	// UpsertConversation inserts or updates a conversation record,
	// refreshing last_interaction on every write.
	UpsertConversation(ctx context.Context, conv *Conversation) error

	// DeleteConversation removes a conversation record (used by reset flows).
	DeleteConversation(ctx context.Context, userID int64, address string) error

	// SaveAnalyticsEvent appends one analytics event.
	SaveAnalyticsEvent(ctx context.Context, event *AnalyticsEvent) error

	// TrimAnalyticsEvents deletes events created before the cutoff and
	// returns the number of rows removed.
	TrimAnalyticsEvents(ctx context.Context, cutoff time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetConversation retrieves the conversation keyed by (userID, address).
func (s *sqlxStore) GetConversation(ctx context.Context, userID int64, address string) (*Conversation, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}
	if address == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var conv Conversation
	query := `
        SELECT user_id, address, messages, intents, emotional_state, emotion_history,
               context_data, started_at, last_interaction, created_at, updated_at
        FROM conversations
        WHERE user_id = ? AND address = ?;
    `

	err := s.db.GetContext(ctx, &conv, query, userID, address)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First contact for this key; caller constructs a fresh context.
		s.logger.DebugContext(ctx, "No stored conversation found", "user_id", userID, "address", address)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching conversation",
			"user_id", userID, "address", address, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting conversation", "user_id", userID, "address", address, "error", err)
		return nil, fmt.Errorf("failed to get conversation (user %d, address %s): %w", userID, address, err)
	}

	return &conv, nil
}

// UpsertConversation inserts or updates a conversation record.
func (s *sqlxStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("cannot save nil conversation")
	}
	if conv.UserID == 0 {
		return fmt.Errorf("conversation must have a non-zero user_id")
	}
	if conv.Address == "" {
		return fmt.Errorf("conversation must have a non-empty address")
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.LastInteraction = now

	query := `
        INSERT INTO conversations (user_id, address, messages, intents, emotional_state,
                                   emotion_history, context_data, started_at, last_interaction,
                                   created_at, updated_at)
        VALUES (:user_id, :address, :messages, :intents, :emotional_state,
                :emotion_history, :context_data, :started_at, :last_interaction,
                :created_at, :updated_at)
        ON CONFLICT (user_id, address) DO UPDATE SET
            messages         = excluded.messages,
            intents          = excluded.intents,
            emotional_state  = excluded.emotional_state,
            emotion_history  = excluded.emotion_history,
            context_data     = excluded.context_data,
            last_interaction = excluded.last_interaction,
            updated_at       = excluded.updated_at;
    `

	if _, err := s.db.NamedExecContext(ctx, query, conv); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting conversation",
			"user_id", conv.UserID, "address", conv.Address, "error", err)
		return fmt.Errorf("failed to upsert conversation (user %d, address %s): %w",
			conv.UserID, conv.Address, err)
	}

	s.logger.DebugContext(ctx, "Conversation upserted successfully",
		"user_id", conv.UserID, "address", conv.Address)
	return nil
}

// DeleteConversation removes a conversation record.
func (s *sqlxStore) DeleteConversation(ctx context.Context, userID int64, address string) error {
	if userID == 0 {
		return fmt.Errorf("user_id cannot be zero")
	}
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	query := `DELETE FROM conversations WHERE user_id = ? AND address = ?;`
	if _, err := s.db.ExecContext(ctx, query, userID, address); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting conversation",
			"user_id", userID, "address", address, "error", err)
		return fmt.Errorf("failed to delete conversation (user %d, address %s): %w", userID, address, err)
	}

	return nil
}

// SaveAnalyticsEvent appends one analytics event.
func (s *sqlxStore) SaveAnalyticsEvent(ctx context.Context, event *AnalyticsEvent) error {
	if event == nil {
		return fmt.Errorf("cannot save nil analytics event")
	}
	if event.ID == "" {
		return fmt.Errorf("analytics event must have an ID")
	}
	if event.EventType == "" {
		return fmt.Errorf("analytics event must have an event type")
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Metadata == "" {
		event.Metadata = "{}"
	}

	query := `
        INSERT INTO analytics_events (id, event_type, provider_id, latency_ms, success, metadata, created_at)
        VALUES (:id, :event_type, :provider_id, :latency_ms, :success, :metadata, :created_at);
    `

	if _, err := s.db.NamedExecContext(ctx, query, event); err != nil {
		s.logger.ErrorContext(ctx, "Error saving analytics event",
			"event_type", event.EventType, "error", err)
		return fmt.Errorf("failed to save analytics event %q: %w", event.EventType, err)
	}

	return nil
}

// TrimAnalyticsEvents deletes events created before the cutoff.
func (s *sqlxStore) TrimAnalyticsEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE created_at < ?;`, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error trimming analytics events", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to trim analytics events: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not determine trimmed event count", "error", err)
		return 0, nil
	}

	if removed > 0 {
		s.logger.InfoContext(ctx, "Trimmed analytics events", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
