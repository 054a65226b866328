package tokenizer

// Tokenizer counts language-model tokens for a text. Implementations must
// be safe for concurrent use from background workers; failures are handled
// by the caller, which falls back to Estimate.
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// EstimatorTokenizer is the degraded-mode tokenizer used when no precise
// encoder is available. It never fails.
type EstimatorTokenizer struct{}

func (EstimatorTokenizer) CountTokens(text string) (int, error) {
	return Estimate(text), nil
}
