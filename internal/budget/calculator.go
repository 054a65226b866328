// Package budget derives the per-session token ceiling from the inference
// provider's configuration. The value is computed once at startup and
// treated as constant for the service's lifetime.
package budget

import (
	"log"
	"strconv"
	"strings"
)

const (
	// ReservedTokens is headroom for the system prompt, the current query
	// and the response.
	ReservedTokens = 350

	MinBudget = 100
	MaxBudget = 800_000

	// fallbackBudget is used when provider configuration is present but
	// unusable.
	fallbackBudget = 4000

	// defaultWindow is the context window assumed for unknown providers.
	defaultWindow = 4096
)

// windowParams maps a provider to its context-window parameter name,
// primary first, followed by accepted alternatives.
var windowParams = map[string][]string{
	"openai":    {"context_window", "max_context_tokens", "n_ctx"},
	"anthropic": {"max_context_tokens", "context_window"},
	"ollama":    {"num_ctx", "context_length", "context_window"},
	"llamacpp":  {"n_ctx", "context_length"},
	"gemini":    {"context_window", "max_context_tokens"},
	"mistral":   {"context_window", "max_context_tokens"},
	"groq":      {"context_window", "max_context_tokens"},
}

// defaultWindows holds per-provider context windows used when the
// configuration carries no usable parameter.
var defaultWindows = map[string]int{
	"openai":    128_000,
	"anthropic": 200_000,
	"ollama":    8192,
	"llamacpp":  4096,
	"gemini":    131_072,
	"mistral":   32_768,
	"groq":      32_768,
	"local":     2048,
}

// MaxTokenBudget computes the session token ceiling for a provider:
// context window minus ReservedTokens, clamped to [MinBudget, MaxBudget].
// A present-but-unparseable window parameter is non-fatal and yields the
// hard-coded fallback budget.
func MaxTokenBudget(provider string, params map[string]string) int {
	name := strings.ToLower(strings.TrimSpace(provider))

	window, ok := windowFromParams(name, params)
	if !ok {
		if malformedParam(name, params) {
			log.Printf("budget: unusable context window config for provider %q, using fallback budget %d", provider, fallbackBudget)
			return fallbackBudget
		}
		window = defaultWindows[name]
		if window == 0 {
			window = defaultWindow
		}
	}

	return Clamp(window-ReservedTokens, MinBudget, MaxBudget)
}

func windowFromParams(provider string, params map[string]string) (int, bool) {
	if len(params) == 0 {
		return 0, false
	}
	for _, key := range windowParams[provider] {
		v, ok := params[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			continue
		}
		return n, true
	}
	return 0, false
}

// malformedParam reports whether the config names a window parameter that
// could not be parsed to a positive integer.
func malformedParam(provider string, params map[string]string) bool {
	for _, key := range windowParams[provider] {
		v, ok := params[key]
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err != nil || n <= 0 {
			return true
		}
	}
	return false
}

func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
