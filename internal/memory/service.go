// Package memory is the conversation memory core: it persists chat turns,
// keeps each session inside a token budget, and serves the rolling window
// of recent history consumed by the inference pipeline.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/contextd/contextd/internal/observability"
	"github.com/contextd/contextd/internal/persistence"
	"github.com/contextd/contextd/internal/policy"
	"github.com/contextd/contextd/internal/reliability"
	"github.com/contextd/contextd/internal/tokenizer"
)

// messageOverheadTokens is added to precise counts for role and chat
// formatting framing.
const messageOverheadTokens = 5

type tokenizeJob struct {
	messageID string
	content   string
}

// Options configures a Service. Store and MaxTokenBudget are required;
// everything else has working defaults.
type Options struct {
	Store              persistence.Store
	Tokenizer          tokenizer.Tokenizer
	MaxTokenBudget     int
	RetentionDays      int
	QueueSize          int
	TrackerMaxSessions int
	TrackerInactivity  time.Duration
	Retry              reliability.RetryPolicy
	Keys               policy.KeyValidator
	Metrics            *observability.Metrics
}

// Service owns the write path, the read path and the background jobs of
// the conversation memory core.
type Service struct {
	store         persistence.Store
	tok           tokenizer.Tokenizer
	budget        int
	retentionDays int
	retry         reliability.RetryPolicy
	keys          policy.KeyValidator
	metrics       *observability.Metrics

	tracker *SessionTracker
	locks   *sessionLocks
	queue   chan tokenizeJob
	events  *broadcaster
}

func New(opts Options) *Service {
	if opts.Tokenizer == nil {
		opts.Tokenizer = tokenizer.EstimatorTokenizer{}
	}
	if opts.MaxTokenBudget <= 0 {
		opts.MaxTokenBudget = 4000
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = reliability.DefaultRetryPolicy()
	}

	return &Service{
		store:         opts.Store,
		tok:           opts.Tokenizer,
		budget:        opts.MaxTokenBudget,
		retentionDays: opts.RetentionDays,
		retry:         opts.Retry,
		keys:          opts.Keys,
		metrics:       opts.Metrics,
		tracker:       NewSessionTracker(opts.TrackerMaxSessions, opts.TrackerInactivity),
		locks:         newSessionLocks(),
		queue:         make(chan tokenizeJob, opts.QueueSize),
		events:        newBroadcaster(),
	}
}

// MaxTokenBudget returns the process-wide session token ceiling.
func (s *Service) MaxTokenBudget() int { return s.budget }

// StartJanitor launches the tracker's periodic inactivity sweep.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	s.tracker.StartJanitor(ctx, interval)
}

// Subscribe registers for a session's memory events.
func (s *Service) Subscribe(sessionID string) (<-chan Event, func()) {
	return s.events.Subscribe(sessionID)
}

// AddMessage persists one message. It books a fast token estimate
// immediately and enqueues the message for precise tokenization without
// blocking. A duplicate idempotency key is not an error: the write is
// skipped and the empty id signals "already stored".
func (s *Service) AddMessage(ctx context.Context, sessionID, role, content, userID, apiKey string, metadata map[string]string, idempotencyKey string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id required", reliability.ErrValidation)
	}
	if !persistence.ValidRole(role) {
		return "", fmt.Errorf("%w: invalid role %q", reliability.ErrValidation, role)
	}

	estimate := tokenizer.Estimate(content)
	now := time.Now().UTC()

	hash := idempotencyKey
	if hash == "" {
		hash = messageHash(sessionID, role, content, now)
	}

	msg := persistence.Message{
		SessionID:   sessionID,
		Role:        role,
		Content:     content,
		Timestamp:   now,
		TokenCount:  estimate,
		MessageHash: hash,
		UserID:      userID,
		APIKey:      policy.MaskKey(apiKey),
		Metadata:    metadata,
	}

	var id string
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var insertErr error
		id, insertErr = s.store.InsertMessage(ctx, msg)
		return insertErr
	})
	if errors.Is(err, reliability.ErrDuplicateKey) {
		log.Printf("memory: duplicate message skipped session=%s role=%s", sessionID, role)
		if s.metrics != nil {
			s.metrics.DuplicatesSkipped.Inc()
		}
		return "", nil
	}
	if err != nil {
		return "", err
	}

	s.tracker.Record(sessionID, estimate)
	s.enqueueTokenize(id, content)
	if s.metrics != nil {
		s.metrics.MessagesStored.WithLabelValues(role).Inc()
	}
	return id, nil
}

// AddTurn persists a user/assistant pair with turn-scoped idempotency keys
// derived from a single timestamp. The assistant message is written only
// if the user message succeeded; a duplicate user message means the whole
// turn was already stored. Excess cleanup runs before returning so the
// budget invariant is visible to the next read.
func (s *Service) AddTurn(ctx context.Context, sessionID, userText, assistantText, userID, apiKey string, metadata map[string]string) (string, string, error) {
	now := time.Now().UTC()
	userKey := messageHash(sessionID, persistence.RoleUser, userText, now)
	assistantKey := messageHash(sessionID, persistence.RoleAssistant, assistantText, now)

	userMsgID, err := s.AddMessage(ctx, sessionID, persistence.RoleUser, userText, userID, apiKey, metadata, userKey)
	if err != nil {
		return "", "", fmt.Errorf("store user message: %w", err)
	}
	if userMsgID == "" {
		return "", "", nil
	}

	assistantMsgID, err := s.AddMessage(ctx, sessionID, persistence.RoleAssistant, assistantText, userID, apiKey, metadata, assistantKey)
	if err != nil {
		return userMsgID, "", fmt.Errorf("store assistant message: %w", err)
	}

	if deleted := s.MaybeCleanup(ctx, sessionID); deleted > 0 {
		s.events.publish(Event{Type: "cleanup", SessionID: sessionID, Deleted: deleted})
	}
	s.events.publish(Event{Type: "turn_stored", SessionID: sessionID, MessageID: assistantMsgID})

	return userMsgID, assistantMsgID, nil
}

func (s *Service) enqueueTokenize(id, content string) {
	select {
	case s.queue <- tokenizeJob{messageID: id, content: content}:
		if s.metrics != nil {
			s.metrics.TokenizeQueueDepth.Set(float64(len(s.queue)))
		}
	default:
		// Never block the write path: the message keeps its estimate.
		log.Printf("memory: tokenize queue full, message %s keeps its estimate", id)
	}
}

// sessionTotal returns the cached token total for a session, recomputing
// from the store on a cache miss. The recompute is the only slow path and
// is expected to be rare.
func (s *Service) sessionTotal(ctx context.Context, sessionID string) int {
	if total, ok := s.tracker.Total(sessionID); ok {
		return total
	}

	var msgs []persistence.Message
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var listErr error
		msgs, listErr = s.store.SessionMessages(ctx, sessionID, false, cleanupFetchCap)
		return listErr
	})
	if err != nil {
		log.Printf("memory: token total recompute failed session=%s: %v", sessionID, err)
		return 0
	}

	total := 0
	for _, m := range msgs {
		total += messageTokens(m)
	}
	s.tracker.SetTotal(sessionID, total)
	return total
}

// messageTokens returns a message's booked token count, falling back to
// the estimator for rows that were never measured.
func messageTokens(m persistence.Message) int {
	if m.TokenCount > 0 {
		return m.TokenCount
	}
	return tokenizer.Estimate(m.Content)
}

// messageHash builds the deterministic deduplication key for a message.
func messageHash(sessionID, role, content string, ts time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", sessionID, role, content, ts.UnixNano())
	return hex.EncodeToString(h.Sum(nil))
}
