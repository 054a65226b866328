package memory

import (
	"context"
	"log"

	"github.com/contextd/contextd/internal/budget"
	"github.com/contextd/contextd/internal/persistence"
)

const (
	// fetchFloorTokens is the assumed minimum token mass per message when
	// sizing the history fetch.
	fetchFloorTokens = 50
	// fetchSlack over-fetches by 20% so the budget stays reachable even
	// when many messages sit near the floor.
	fetchSlack = 1.2

	minFetchLimit = 20
	maxFetchLimit = 1000
)

// GetContextMessages returns the newest contiguous run of a session's
// history that fits within the token budget, in chronological order.
// maxTokens <= 0 selects the process-wide budget. Read failures degrade to
// an empty context rather than failing the caller's turn.
func (s *Service) GetContextMessages(ctx context.Context, sessionID string, maxTokens int) []ContextMessage {
	b := maxTokens
	if b <= 0 {
		b = s.budget
	}

	limit := fetchLimit(b)
	var msgs []persistence.Message
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var listErr error
		msgs, listErr = s.store.SessionMessages(ctx, sessionID, true, limit)
		return listErr
	})
	if err != nil {
		log.Printf("memory: context fetch failed session=%s: %v", sessionID, err)
		return []ContextMessage{}
	}

	// Walk newest to oldest and stop before the message that would push
	// the running total over budget. No partial messages: if even the
	// newest alone exceeds the budget, the context is empty.
	total := 0
	kept := 0
	for _, m := range msgs {
		tc := messageTokens(m)
		if total+tc > b {
			break
		}
		total += tc
		kept++
	}

	out := make([]ContextMessage, 0, kept)
	for i := kept - 1; i >= 0; i-- {
		m := msgs[i]
		if !persistence.ValidRole(m.Role) {
			continue
		}
		out = append(out, ContextMessage{Role: m.Role, Content: m.Content})
	}

	if s.metrics != nil {
		s.metrics.ContextTokens.Observe(float64(total))
	}
	return out
}

// fetchLimit bounds how much history the selector pulls: enough slack to
// fill the budget under the per-message floor assumption, without reading
// the whole session.
func fetchLimit(tokenBudget int) int {
	estimated := int(float64(tokenBudget) / fetchFloorTokens * fetchSlack)
	return budget.Clamp(estimated, minFetchLimit, maxFetchLimit)
}
