package budget

import "testing"

func TestMaxTokenBudgetFromParams(t *testing.T) {
	got := MaxTokenBudget("openai", map[string]string{"context_window": "8192"})
	if got != 8192-ReservedTokens {
		t.Fatalf("MaxTokenBudget() = %d, want %d", got, 8192-ReservedTokens)
	}
}

func TestMaxTokenBudgetAlternativeParam(t *testing.T) {
	got := MaxTokenBudget("ollama", map[string]string{"context_length": "4096"})
	if got != 4096-ReservedTokens {
		t.Fatalf("MaxTokenBudget() = %d, want %d", got, 4096-ReservedTokens)
	}
}

func TestMaxTokenBudgetClampsLow(t *testing.T) {
	got := MaxTokenBudget("openai", map[string]string{"context_window": "50"})
	if got != MinBudget {
		t.Fatalf("MaxTokenBudget() = %d, want clamp to %d", got, MinBudget)
	}
}

func TestMaxTokenBudgetClampsHigh(t *testing.T) {
	got := MaxTokenBudget("anthropic", map[string]string{"max_context_tokens": "9000000"})
	if got != MaxBudget {
		t.Fatalf("MaxTokenBudget() = %d, want clamp to %d", got, MaxBudget)
	}
}

func TestMaxTokenBudgetProviderDefault(t *testing.T) {
	got := MaxTokenBudget("anthropic", nil)
	if got != 200_000-ReservedTokens {
		t.Fatalf("MaxTokenBudget() = %d, want %d", got, 200_000-ReservedTokens)
	}
}

func TestMaxTokenBudgetUnknownProvider(t *testing.T) {
	got := MaxTokenBudget("something-new", nil)
	if got != 4096-ReservedTokens {
		t.Fatalf("MaxTokenBudget() = %d, want %d", got, 4096-ReservedTokens)
	}
}

func TestMaxTokenBudgetMalformedParamFallsBack(t *testing.T) {
	got := MaxTokenBudget("openai", map[string]string{"context_window": "not-a-number"})
	if got != 4000 {
		t.Fatalf("MaxTokenBudget() = %d, want fallback 4000", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 10, 20); got != 10 {
		t.Fatalf("Clamp(5,10,20) = %d", got)
	}
	if got := Clamp(25, 10, 20); got != 20 {
		t.Fatalf("Clamp(25,10,20) = %d", got)
	}
	if got := Clamp(15, 10, 20); got != 15 {
		t.Fatalf("Clamp(15,10,20) = %d", got)
	}
}
