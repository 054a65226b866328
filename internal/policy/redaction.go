package policy

import "strings"

// MaskKey reduces an API key to a loggable/storable form: the first four
// characters followed by asterisks. Short keys are fully masked.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", 4)
}
