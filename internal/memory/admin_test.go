package memory

import (
	"context"
	"testing"
	"time"

	"github.com/contextd/contextd/internal/persistence"
	"github.com/contextd/contextd/internal/policy"
)

type stubValidator struct {
	valid       bool
	unavailable bool
}

func (v stubValidator) ValidateKey(context.Context, string) (bool, error) {
	if v.unavailable {
		return false, policy.ErrUnavailable
	}
	return v.valid, nil
}

func TestClearSessionHistory(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 4000})
	ctx := context.Background()
	seedMessages(t, store, "s1", []int{10, 10, 10})
	svc.tracker.Record("s1", 30)

	if !svc.ClearSessionHistory(ctx, "s1") {
		t.Fatalf("ClearSessionHistory() = false, want true")
	}
	if n, _ := store.CountSessionMessages(ctx, "s1"); n != 0 {
		t.Fatalf("messages remain after clear: %d", n)
	}
	if _, ok := svc.tracker.Total("s1"); ok {
		t.Fatalf("cleared session still tracked")
	}
}

func TestClearConversationHistoryAuthorized(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 4000, Keys: stubValidator{valid: true}})
	ctx := context.Background()
	seedMessages(t, store, "s1", []int{10, 10})

	res := svc.ClearConversationHistory(ctx, "s1", "key-1", "")
	if !res.Success {
		t.Fatalf("ClearConversationHistory() = %+v, want success", res)
	}
	if res.DeletedCount != 2 {
		t.Fatalf("DeletedCount = %d, want 2", res.DeletedCount)
	}
}

func TestClearConversationHistoryRejectsInvalidKey(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 4000, Keys: stubValidator{valid: false}})
	ctx := context.Background()
	seedMessages(t, store, "s1", []int{10})

	res := svc.ClearConversationHistory(ctx, "s1", "bad-key", "")
	if res.Success {
		t.Fatalf("invalid key must not clear history")
	}
	if n, _ := store.CountSessionMessages(ctx, "s1"); n != 1 {
		t.Fatalf("history mutated despite rejected key")
	}
}

func TestClearConversationHistoryFailsClosed(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"validator unavailable", Options{MaxTokenBudget: 4000, Keys: stubValidator{unavailable: true}}},
		{"no validator wired", Options{MaxTokenBudget: 4000}},
	}
	for _, tc := range cases {
		svc, store := newTestService(t, tc.opts)
		ctx := context.Background()
		seedMessages(t, store, "s1", []int{10})

		res := svc.ClearConversationHistory(ctx, "s1", "key-1", "")
		if res.Success {
			t.Fatalf("%s: must fail closed", tc.name)
		}
		if n, _ := store.CountSessionMessages(ctx, "s1"); n != 1 {
			t.Fatalf("%s: history mutated", tc.name)
		}
	}
}

func TestClearConversationHistoryValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{MaxTokenBudget: 4000, Keys: stubValidator{valid: true}})
	ctx := context.Background()

	if res := svc.ClearConversationHistory(ctx, "", "key", ""); res.Success || res.Error == "" {
		t.Fatalf("missing session must fail with a structured error, got %+v", res)
	}
	if res := svc.ClearConversationHistory(ctx, "s1", "", ""); res.Success || res.Error == "" {
		t.Fatalf("missing key must fail with a structured error, got %+v", res)
	}
}

func TestGetSessionStats(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 4000})
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	roles := []string{persistence.RoleUser, persistence.RoleAssistant, persistence.RoleUser}
	for i, role := range roles {
		_, err := store.InsertMessage(ctx, persistence.Message{
			SessionID: "s1", Role: role, Content: "x",
			Timestamp: base.Add(time.Duration(i) * time.Minute), TokenCount: 10,
		})
		if err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	stats, err := svc.GetSessionStats(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionStats() error = %v", err)
	}
	if stats.MessageCount != 3 || stats.UserMessages != 2 || stats.AssistantMessages != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TotalTokens != 30 {
		t.Fatalf("TotalTokens = %d, want 30", stats.TotalTokens)
	}
	if stats.Duration != 2*time.Minute {
		t.Fatalf("Duration = %v, want 2m", stats.Duration)
	}
}

func TestHealthCheckAndSnapshot(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 7842, RetentionDays: 14})
	ctx := context.Background()

	if _, err := store.InsertMessage(ctx, persistence.Message{SessionID: "s1", Role: persistence.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}
	svc.tracker.Record("s1", 1)

	h := svc.HealthCheck(ctx)
	if h.Status != "ok" || !h.DatabaseReachable {
		t.Fatalf("HealthCheck() = %+v", h)
	}
	if h.TrackedSessions != 1 || h.ActiveSessions != 1 {
		t.Fatalf("session counts = %+v", h)
	}

	snap := svc.GetMetrics(ctx)
	if snap.MaxTokenBudget != 7842 || snap.RetentionDays != 14 {
		t.Fatalf("Snapshot = %+v", snap)
	}
	if snap.MessagesToday != 1 {
		t.Fatalf("MessagesToday = %d, want 1", snap.MessagesToday)
	}
}

func TestSessionTotalRecomputesOnMiss(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 4000})
	ctx := context.Background()
	seedMessages(t, store, "s1", []int{25, 25, 25})

	// Nothing tracked yet: the total must be rebuilt from the store and
	// the cache repopulated.
	if total := svc.sessionTotal(ctx, "s1"); total != 75 {
		t.Fatalf("sessionTotal() = %d, want 75", total)
	}
	cached, ok := svc.tracker.Total("s1")
	if !ok || cached != 75 {
		t.Fatalf("cache not repopulated: %d, %v", cached, ok)
	}
}

func TestEventsPublishedOnTurn(t *testing.T) {
	svc, _ := newTestService(t, Options{MaxTokenBudget: 4000})
	ctx := context.Background()

	events, cancel := svc.Subscribe("s1")
	defer cancel()

	if _, _, err := svc.AddTurn(ctx, "s1", "hello", "hi there", "", "", nil); err != nil {
		t.Fatalf("AddTurn() error = %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != "turn_stored" || ev.SessionID != "s1" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event published for stored turn")
	}
}
