package memory

import (
	"context"
	"sync"
	"time"
)

type trackerEntry struct {
	lastActivity time.Time
	tokenTotal   int
}

// SessionTracker is a bounded in-memory map of session activity and cached
// token totals. It is not authoritative: totals are rebuilt from the store
// on a cache miss.
type SessionTracker struct {
	mu          sync.Mutex
	entries     map[string]*trackerEntry
	maxSessions int
	inactivity  time.Duration
}

func NewSessionTracker(maxSessions int, inactivity time.Duration) *SessionTracker {
	if maxSessions <= 0 {
		maxSessions = 10_000
	}
	if inactivity <= 0 {
		inactivity = 24 * time.Hour
	}
	return &SessionTracker{
		entries:     make(map[string]*trackerEntry),
		maxSessions: maxSessions,
		inactivity:  inactivity,
	}
}

// Record marks activity on a session and adds delta to its cached token
// total, creating the entry if needed. Exceeding the session ceiling
// triggers an early inactivity sweep.
func (t *SessionTracker) Record(sessionID string, delta int) {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[sessionID]
	if !ok {
		// Stamp activity before any prune: the session being recorded is
		// active by definition and must survive a ceiling-triggered sweep.
		e = &trackerEntry{lastActivity: now}
		t.entries[sessionID] = e
		if len(t.entries) > t.maxSessions {
			t.pruneLocked(now)
		}
	}
	e.lastActivity = now
	e.tokenTotal += delta
	if e.tokenTotal < 0 {
		e.tokenTotal = 0
	}
}

// AddTokens delta-adjusts a tracked session's cached total without
// touching activity. Untracked sessions are ignored; the total will be
// recomputed on the next cache miss.
func (t *SessionTracker) AddTokens(sessionID string, delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sessionID]
	if !ok {
		return
	}
	e.tokenTotal += delta
	if e.tokenTotal < 0 {
		e.tokenTotal = 0
	}
}

// Total returns the cached token total and whether the session is tracked.
func (t *SessionTracker) Total(sessionID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sessionID]
	if !ok {
		return 0, false
	}
	return e.tokenTotal, true
}

// SetTotal repopulates a session's cached total after a recompute.
func (t *SessionTracker) SetTotal(sessionID string, total int) {
	if total < 0 {
		total = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sessionID]
	if !ok {
		e = &trackerEntry{lastActivity: time.Now().UTC()}
		t.entries[sessionID] = e
	}
	e.tokenTotal = total
}

func (t *SessionTracker) Drop(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, sessionID)
}

func (t *SessionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ActiveSince counts sessions with activity at or after cutoff.
func (t *SessionTracker) ActiveSince(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if !e.lastActivity.Before(cutoff) {
			n++
		}
	}
	return n
}

// Sessions returns a snapshot of tracked session ids.
func (t *SessionTracker) Sessions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}

// StartJanitor periodically evicts entries inactive beyond the configured
// window.
func (t *SessionTracker) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				t.pruneLocked(time.Now().UTC())
				t.mu.Unlock()
			}
		}
	}()
}

// pruneLocked must be called with the mutex held.
func (t *SessionTracker) pruneLocked(now time.Time) {
	for id, e := range t.entries {
		if now.Sub(e.lastActivity) >= t.inactivity {
			delete(t.entries, id)
		}
	}
}
