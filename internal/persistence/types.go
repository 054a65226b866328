package persistence

import "time"

// Message roles retained in conversation context.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a persisted conversational turn. Immutable once written,
// except for TokenCount which is overwritten once by the tokenization
// worker or the backfill sweeper.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	// TokenCount is an estimate at insert time and a precise count after
	// backfill; zero means not yet measured (legacy rows).
	TokenCount int `json:"token_count"`
	// MessageHash deduplicates at-least-once writes; unique together with
	// SessionID when present, absent values never collide.
	MessageHash string            `json:"message_hash,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	APIKey      string            `json:"api_key,omitempty"` // stored masked
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}
