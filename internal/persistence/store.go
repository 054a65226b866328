package persistence

import (
	"context"
	"strings"
	"time"
)

// Store persists conversation messages. Errors are wrapped with the
// reliability sentinels so callers can classify retryability.
type Store interface {
	// InsertMessage stores a message and returns its id. A unique
	// (session_id, message_hash) violation yields reliability.ErrDuplicateKey.
	InsertMessage(ctx context.Context, msg Message) (string, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	// SessionMessages returns up to limit messages for a session, ordered
	// by timestamp (newest first when newestFirst is set).
	SessionMessages(ctx context.Context, sessionID string, newestFirst bool, limit int) ([]Message, error)
	// MessagePage returns a page over all messages in stable insert order,
	// for offset-based sweeps.
	MessagePage(ctx context.Context, limit, offset int) ([]Message, error)
	UpdateTokenCount(ctx context.Context, id string, tokens int) error
	// DeleteMessage reports whether a row was removed.
	DeleteMessage(ctx context.Context, id string) (bool, error)
	// DeleteSessionMessages removes a session's messages, optionally
	// restricted to one user, and returns the count removed.
	DeleteSessionMessages(ctx context.Context, sessionID, userID string) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	CountSessionMessages(ctx context.Context, sessionID string) (int, error)
	CountMessagesSince(ctx context.Context, since time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
