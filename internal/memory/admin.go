package memory

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/contextd/contextd/internal/persistence"
	"github.com/contextd/contextd/internal/policy"
)

// activityWindow defines how recent a session's last write must be to
// count as active in health and metrics reports.
const activityWindow = time.Hour

// ClearSessionHistory deletes all of a session's messages and forgets its
// tracking entry. Returns false on persistence failure.
func (s *Service) ClearSessionHistory(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	var deleted int
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var delErr error
		deleted, delErr = s.store.DeleteSessionMessages(ctx, sessionID, "")
		return delErr
	})
	if err != nil {
		log.Printf("memory: clear session failed session=%s: %v", sessionID, err)
		return false
	}

	s.tracker.Drop(sessionID)
	s.events.publish(Event{Type: "cleared", SessionID: sessionID, Deleted: deleted})
	return true
}

// ClearConversationHistory deletes a session's history on behalf of an
// authenticated caller. Authorization is delegated to the key validator
// and fails closed: if validation is unavailable the clear is refused.
func (s *Service) ClearConversationHistory(ctx context.Context, sessionID, apiKey, userID string) ClearResult {
	if sessionID == "" {
		return ClearResult{Error: "session id required"}
	}
	if apiKey == "" {
		return ClearResult{Error: "api key required"}
	}
	if s.keys == nil {
		return ClearResult{Error: "key validation unavailable"}
	}

	ok, err := s.keys.ValidateKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, policy.ErrUnavailable) {
			return ClearResult{Error: "key validation unavailable"}
		}
		return ClearResult{Error: "key validation failed"}
	}
	if !ok {
		return ClearResult{Error: "invalid api key"}
	}

	var deleted int
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var delErr error
		deleted, delErr = s.store.DeleteSessionMessages(ctx, sessionID, userID)
		return delErr
	})
	if err != nil {
		log.Printf("memory: authorized clear failed session=%s: %v", sessionID, err)
		return ClearResult{Error: "history deletion failed"}
	}

	s.tracker.Drop(sessionID)
	s.events.publish(Event{Type: "cleared", SessionID: sessionID, Deleted: deleted})
	return ClearResult{Success: true, DeletedCount: deleted}
}

// GetSessionStats summarizes a session's persisted history.
func (s *Service) GetSessionStats(ctx context.Context, sessionID string) (SessionStats, error) {
	var msgs []persistence.Message
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var listErr error
		msgs, listErr = s.store.SessionMessages(ctx, sessionID, false, cleanupFetchCap)
		return listErr
	})
	if err != nil {
		return SessionStats{}, err
	}

	stats := SessionStats{SessionID: sessionID, MessageCount: len(msgs)}
	for _, m := range msgs {
		switch m.Role {
		case persistence.RoleUser:
			stats.UserMessages++
		case persistence.RoleAssistant:
			stats.AssistantMessages++
		}
		stats.TotalTokens += messageTokens(m)
	}
	if len(msgs) > 0 {
		stats.FirstMessageAt = msgs[0].Timestamp
		stats.LastMessageAt = msgs[len(msgs)-1].Timestamp
		stats.Duration = stats.LastMessageAt.Sub(stats.FirstMessageAt)
	}
	return stats, nil
}

// HealthCheck reports database reachability and session counts.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{
		Status:            "ok",
		DatabaseReachable: true,
		ActiveSessions:    s.tracker.ActiveSince(time.Now().UTC().Add(-activityWindow)),
		TrackedSessions:   s.tracker.Len(),
	}
	if err := s.store.Ping(ctx); err != nil {
		h.Status = "degraded"
		h.DatabaseReachable = false
	}
	return h
}

// GetMetrics returns a point-in-time counter snapshot.
func (s *Service) GetMetrics(ctx context.Context) Snapshot {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	today, err := s.store.CountMessagesSince(ctx, midnight)
	if err != nil {
		log.Printf("memory: messages-today count failed: %v", err)
	}

	return Snapshot{
		ActiveSessions:  s.tracker.ActiveSince(now.Add(-activityWindow)),
		TrackedSessions: s.tracker.Len(),
		MessagesToday:   today,
		MaxTokenBudget:  s.budget,
		RetentionDays:   s.retentionDays,
	}
}
