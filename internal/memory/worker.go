package memory

import (
	"context"
	"errors"
	"log"

	"github.com/contextd/contextd/internal/persistence"
	"github.com/contextd/contextd/internal/reliability"
	"github.com/contextd/contextd/internal/tokenizer"
)

// StartTokenizationWorker launches the background consumer that replaces
// write-path estimates with precise token counts. It drains the queue
// until ctx is cancelled.
func (s *Service) StartTokenizationWorker(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-s.queue:
				s.tokenizeOne(ctx, job)
				if s.metrics != nil {
					s.metrics.TokenizeQueueDepth.Set(float64(len(s.queue)))
				}
			}
		}
	}()
}

func (s *Service) tokenizeOne(ctx context.Context, job tokenizeJob) {
	count := s.preciseTokens(job.content)

	var msg persistence.Message
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var getErr error
		msg, getErr = s.store.GetMessage(ctx, job.messageID)
		return getErr
	})
	if errors.Is(err, reliability.ErrNotFound) {
		// Already evicted; nothing to correct.
		log.Printf("memory: tokenize skipped, message %s no longer exists", job.messageID)
		return
	}
	if err != nil {
		log.Printf("memory: tokenize lookup failed message=%s: %v", job.messageID, err)
		return
	}

	old := messageTokens(msg)
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.UpdateTokenCount(ctx, job.messageID, count)
	})
	if errors.Is(err, reliability.ErrNotFound) {
		log.Printf("memory: tokenize skipped, message %s evicted mid-flight", job.messageID)
		return
	}
	if err != nil {
		log.Printf("memory: token count update failed message=%s: %v", job.messageID, err)
		return
	}

	// Adjust the cached total by the delta, never by reassignment, so
	// concurrent writers don't clobber each other's adjustments.
	s.tracker.AddTokens(msg.SessionID, count-old)
}

// preciseTokens counts tokens with the pluggable tokenizer plus the
// per-message formatting overhead, falling back to the estimator when the
// tokenizer fails.
func (s *Service) preciseTokens(content string) int {
	count, err := s.tok.CountTokens(content)
	if err != nil {
		log.Printf("memory: tokenizer failed, using estimate: %v", err)
		if s.metrics != nil {
			s.metrics.TokenizeFallbacks.Inc()
		}
		count = tokenizer.Estimate(content)
	}
	count += messageOverheadTokens
	if count < 1 {
		count = 1
	}
	return count
}
