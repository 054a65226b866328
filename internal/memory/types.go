package memory

import "time"

// ContextMessage is one entry of the rolling context window handed to the
// inference pipeline.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionStats summarizes a session's persisted history.
type SessionStats struct {
	SessionID         string        `json:"session_id"`
	MessageCount      int           `json:"message_count"`
	UserMessages      int           `json:"user_messages"`
	AssistantMessages int           `json:"assistant_messages"`
	TotalTokens       int           `json:"total_tokens"`
	FirstMessageAt    time.Time     `json:"first_message_at,omitzero"`
	LastMessageAt     time.Time     `json:"last_message_at,omitzero"`
	Duration          time.Duration `json:"duration_ms"`
}

// ClearResult is the structured outcome of an authorized history clear.
// Authorization failures are reported here, not as errors.
type ClearResult struct {
	Success      bool   `json:"success"`
	DeletedCount int    `json:"deleted_count"`
	Error        string `json:"error,omitempty"`
}

// Health reports service liveness for the health endpoint.
type Health struct {
	Status            string `json:"status"`
	DatabaseReachable bool   `json:"database_reachable"`
	ActiveSessions    int    `json:"active_sessions"`
	TrackedSessions   int    `json:"tracked_sessions"`
}

// Snapshot is a point-in-time view of service-level counters.
type Snapshot struct {
	ActiveSessions  int `json:"active_sessions"`
	TrackedSessions int `json:"tracked_sessions"`
	MessagesToday   int `json:"messages_today"`
	MaxTokenBudget  int `json:"max_token_budget"`
	RetentionDays   int `json:"retention_days"`
}

// Event is published to session subscribers when memory changes.
type Event struct {
	Type      string    `json:"type"` // "turn_stored", "cleanup", "cleared"
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id,omitempty"`
	Deleted   int       `json:"deleted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
