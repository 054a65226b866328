package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextd/contextd/internal/reliability"
)

// InMemoryStore is an in-process message store for local/dev use and
// tests. It enforces the same uniqueness semantics as the postgres
// schema, including the sparse (session_id, message_hash) constraint.
type InMemoryStore struct {
	mu       sync.RWMutex
	messages []Message
	byID     map[string]int  // index into messages
	hashes   map[string]bool // session_id + "\x00" + message_hash
	seq      int64
	seqOf    map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]int),
		hashes: make(map[string]bool),
		seqOf:  make(map[string]int64),
	}
}

func hashKey(sessionID, hash string) string {
	return sessionID + "\x00" + hash
}

func (s *InMemoryStore) InsertMessage(_ context.Context, msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if _, exists := s.byID[msg.ID]; exists {
		return "", fmt.Errorf("insert message: %w", reliability.ErrDuplicateKey)
	}
	if msg.MessageHash != "" && s.hashes[hashKey(msg.SessionID, msg.MessageHash)] {
		return "", fmt.Errorf("insert message: %w", reliability.ErrDuplicateKey)
	}

	s.seq++
	s.seqOf[msg.ID] = s.seq
	s.byID[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	if msg.MessageHash != "" {
		s.hashes[hashKey(msg.SessionID, msg.MessageHash)] = true
	}
	return msg.ID, nil
}

func (s *InMemoryStore) GetMessage(_ context.Context, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("get message %s: %w", id, reliability.ErrNotFound)
	}
	return s.messages[idx], nil
}

func (s *InMemoryStore) SessionMessages(_ context.Context, sessionID string, newestFirst bool, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	var items []Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			items = append(items, m)
		}
	}
	seqOf := func(id string) int64 { return s.seqOf[id] }
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.Before(items[j].Timestamp)
		}
		return seqOf(items[i].ID) < seqOf(items[j].ID)
	})
	s.mu.RUnlock()

	if newestFirst {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *InMemoryStore) MessagePage(_ context.Context, limit, offset int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.messages) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.messages) {
		end = len(s.messages)
	}
	page := make([]Message, end-offset)
	copy(page, s.messages[offset:end])
	return page, nil
}

func (s *InMemoryStore) UpdateTokenCount(_ context.Context, id string, tokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("update token count %s: %w", id, reliability.ErrNotFound)
	}
	s.messages[idx].TokenCount = tokens
	return nil
}

func (s *InMemoryStore) DeleteMessage(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	s.removeAt(idx)
	return true, nil
}

func (s *InMemoryStore) DeleteSessionMessages(_ context.Context, sessionID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.SessionID != sessionID {
			continue
		}
		if userID != "" && m.UserID != userID {
			continue
		}
		s.removeAt(i)
		deleted++
	}
	return deleted, nil
}

func (s *InMemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Timestamp.Before(cutoff) {
			s.removeAt(i)
			deleted++
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) CountSessionMessages(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CountMessagesSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages {
		if !m.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }

// removeAt must be called with the write lock held.
func (s *InMemoryStore) removeAt(idx int) {
	m := s.messages[idx]
	delete(s.byID, m.ID)
	delete(s.seqOf, m.ID)
	if m.MessageHash != "" {
		delete(s.hashes, hashKey(m.SessionID, m.MessageHash))
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	for i := idx; i < len(s.messages); i++ {
		s.byID[s.messages[i].ID] = i
	}
}
