package memory

import (
	"context"
	"strings"
	"testing"
)

func TestMaybeCleanupNoopUnderThreshold(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 1000})
	ctx := context.Background()
	seedMessages(t, store, "s1", []int{100, 100})
	svc.tracker.SetTotal("s1", 200)

	if deleted := svc.MaybeCleanup(ctx, "s1"); deleted != 0 {
		t.Fatalf("MaybeCleanup() = %d, want 0", deleted)
	}
	n, _ := store.CountSessionMessages(ctx, "s1")
	if n != 2 {
		t.Fatalf("messages = %d, want 2 untouched", n)
	}
}

func TestMaybeCleanupConvergesToBaseBudget(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 100})
	ctx := context.Background()

	// Six messages of 30 tokens: total 180 > threshold 120.
	seedMessages(t, store, "s1", []int{30, 30, 30, 30, 30, 30})
	svc.tracker.SetTotal("s1", 180)

	deleted := svc.MaybeCleanup(ctx, "s1")
	if deleted != 3 {
		t.Fatalf("MaybeCleanup() = %d, want 3 (keep newest 90 tokens)", deleted)
	}

	msgs, _ := store.SessionMessages(ctx, "s1", false, 100)
	total := 0
	for _, m := range msgs {
		total += m.TokenCount
	}
	if total > 100 {
		t.Fatalf("remaining token mass = %d, exceeds base budget 100", total)
	}

	cached, ok := svc.tracker.Total("s1")
	if !ok || cached != 90 {
		t.Fatalf("cached total = %d (tracked=%v), want 90", cached, ok)
	}
}

func TestMaybeCleanupKeepsOversizedNewestMessage(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 100})
	ctx := context.Background()

	// The newest message alone exceeds the budget; cleanup must keep
	// exactly that one.
	seedMessages(t, store, "s1", []int{30, 30, 300})
	svc.tracker.SetTotal("s1", 360)

	deleted := svc.MaybeCleanup(ctx, "s1")
	if deleted != 2 {
		t.Fatalf("MaybeCleanup() = %d, want 2", deleted)
	}
	msgs, _ := store.SessionMessages(ctx, "s1", false, 100)
	if len(msgs) != 1 || msgs[0].TokenCount != 300 {
		t.Fatalf("remaining = %+v, want the single 300-token message", msgs)
	}
}

func TestMaybeCleanupSkipsWhenLockHeld(t *testing.T) {
	svc, store := newTestService(t, Options{MaxTokenBudget: 100})
	ctx := context.Background()
	seedMessages(t, store, "s1", []int{30, 30, 30, 30, 30, 30})
	svc.tracker.SetTotal("s1", 180)

	if !svc.locks.TryAcquire("s1") {
		t.Fatalf("TryAcquire() failed on fresh lock")
	}
	if deleted := svc.MaybeCleanup(ctx, "s1"); deleted != 0 {
		t.Fatalf("MaybeCleanup() with held lock = %d, want 0 (no-op)", deleted)
	}
	svc.locks.Release("s1")

	if deleted := svc.MaybeCleanup(ctx, "s1"); deleted == 0 {
		t.Fatalf("MaybeCleanup() after release deleted nothing")
	}
}

func TestAddTurnTriggersCleanupScenario(t *testing.T) {
	// Budget forced to 100: threshold is 120. Five ~30-token pairs are
	// written; every AddTurn leaves the cached total at or under the
	// threshold, and at least one eviction batch must have run.
	svc, store := newTestService(t, Options{MaxTokenBudget: 100})
	ctx := context.Background()

	// 90 bytes -> estimate 30 tokens per message.
	content := strings.Repeat("abc", 30)

	cleaned := false
	for i := 0; i < 5; i++ {
		if _, _, err := svc.AddTurn(ctx, "s1", content, content, "", "", nil); err != nil {
			t.Fatalf("AddTurn(%d) error = %v", i, err)
		}
		total, ok := svc.tracker.Total("s1")
		if !ok {
			t.Fatalf("session untracked after turn %d", i)
		}
		if total > 120 {
			t.Fatalf("cached total after turn %d = %d, exceeds threshold 120", i, total)
		}
		n, _ := store.CountSessionMessages(ctx, "s1")
		if n < 2*(i+1) {
			cleaned = true
		}
	}
	if !cleaned {
		t.Fatalf("no cleanup batch ran across five over-budget turns")
	}
}
