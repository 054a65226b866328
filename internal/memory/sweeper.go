package memory

import (
	"context"
	"log"
	"time"
)

// StartRetentionSweeper deletes messages older than the retention window
// once per interval (daily in production) and drops tracker entries for
// sessions left empty. Cycle errors are logged and the sweeper continues
// on the next tick.
func (s *Service) StartRetentionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.retentionCycle(ctx)
			}
		}
	}()
}

func (s *Service) retentionCycle(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	var deleted int
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var delErr error
		deleted, delErr = s.store.DeleteOlderThan(ctx, cutoff)
		return delErr
	})
	if err != nil {
		log.Printf("memory: retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("memory: retention sweep deleted %d messages older than %s", deleted, cutoff.Format(time.RFC3339))
	}

	for _, sessionID := range s.tracker.Sessions() {
		count, err := s.store.CountSessionMessages(ctx, sessionID)
		if err != nil {
			log.Printf("memory: retention count failed session=%s: %v", sessionID, err)
			continue
		}
		if count == 0 {
			s.tracker.Drop(sessionID)
		}
	}
}

// StartBackfillSweeper lazily fills in precise token counts for messages
// persisted before tokenization existed. It runs once, after a short
// startup delay, paginating over all messages with a monotonic offset; a
// page with no qualifying rows does not terminate the sweep; only an
// empty page does.
func (s *Service) StartBackfillSweeper(ctx context.Context, delay time.Duration, pageSize int) {
	if pageSize <= 0 {
		pageSize = 200
	}
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		offset := 0
		updated := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			page, err := s.store.MessagePage(ctx, pageSize, offset)
			if err != nil {
				log.Printf("memory: backfill page at offset %d failed: %v", offset, err)
				return
			}
			if len(page) == 0 {
				break
			}

			for _, m := range page {
				if m.TokenCount > 0 {
					continue
				}
				count := s.preciseTokens(m.Content)
				if err := s.store.UpdateTokenCount(ctx, m.ID, count); err != nil {
					log.Printf("memory: backfill update failed message=%s: %v", m.ID, err)
					continue
				}
				updated++
			}
			offset += len(page)
		}

		if updated > 0 {
			log.Printf("memory: backfill measured %d messages", updated)
		}
	}()
}
