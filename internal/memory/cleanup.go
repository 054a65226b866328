package memory

import (
	"context"
	"log"

	"github.com/contextd/contextd/internal/persistence"
)

const (
	// cleanupSlack is the threshold multiplier: eviction triggers only
	// once a session's cached total exceeds slack × budget, and then
	// trims back to the base budget so the next trigger is a while away.
	cleanupSlack = 1.2

	// cleanupFetchCap bounds the full-session fetch during cleanup.
	cleanupFetchCap = 10_000
)

// MaybeCleanup evicts a session's oldest messages once its cached token
// total exceeds the cleanup threshold, restoring it to the base budget.
// The per-session lock is acquired without waiting: if a cleanup is
// already in flight the call is a no-op and the next write re-triggers
// the check. Returns the number of messages deleted.
func (s *Service) MaybeCleanup(ctx context.Context, sessionID string) int {
	threshold := int(cleanupSlack * float64(s.budget))
	if s.sessionTotal(ctx, sessionID) <= threshold {
		return 0
	}

	if !s.locks.TryAcquire(sessionID) {
		return 0
	}
	defer s.locks.Release(sessionID)

	// Re-check under the lock: a concurrent cleanup may have already
	// brought the session back under threshold.
	if total, ok := s.tracker.Total(sessionID); ok && total <= threshold {
		return 0
	}

	var msgs []persistence.Message
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var listErr error
		msgs, listErr = s.store.SessionMessages(ctx, sessionID, false, cleanupFetchCap)
		return listErr
	})
	if err != nil {
		log.Printf("memory: cleanup fetch failed session=%s: %v", sessionID, err)
		return 0
	}
	if len(msgs) == 0 {
		s.tracker.SetTotal(sessionID, 0)
		return 0
	}

	// Walk newest to oldest to find the suffix that fits the base budget
	// (not the threshold). keepFrom is the index of the oldest kept
	// message; the single newest message is always kept even when it
	// alone exceeds the budget.
	kept := 0
	keepFrom := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		tc := messageTokens(msgs[i])
		if keepFrom < len(msgs) && kept+tc > s.budget {
			break
		}
		kept += tc
		keepFrom = i
	}

	deleted := 0
	deletedTokens := 0
	for _, m := range msgs[:keepFrom] {
		id := m.ID
		var removed bool
		err := s.retry.Do(ctx, func(ctx context.Context) error {
			var delErr error
			removed, delErr = s.store.DeleteMessage(ctx, id)
			return delErr
		})
		if err != nil {
			// Best effort: a stuck row doesn't abort the batch.
			log.Printf("memory: cleanup delete failed message=%s: %v", id, err)
			continue
		}
		if removed {
			deleted++
			deletedTokens += messageTokens(m)
		}
	}

	s.tracker.AddTokens(sessionID, -deletedTokens)
	if deleted > 0 {
		log.Printf("memory: cleanup evicted %d messages (%d tokens) session=%s", deleted, deletedTokens, sessionID)
		if s.metrics != nil {
			s.metrics.CleanupRuns.Inc()
			s.metrics.CleanupDeleted.Add(float64(deleted))
		}
	}
	return deleted
}
