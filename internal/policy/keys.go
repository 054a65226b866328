package policy

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrUnavailable signals that key validation cannot be performed at all.
// Destructive operations must fail closed when they see it.
var ErrUnavailable = errors.New("key validation unavailable")

// KeyValidator authorizes privileged operations such as clearing another
// conversation's history.
type KeyValidator interface {
	ValidateKey(ctx context.Context, apiKey string) (bool, error)
}

// StaticKeyValidator checks keys against a fixed allow-list loaded at
// startup.
type StaticKeyValidator struct {
	keys []string
}

func NewStaticKeyValidator(keys []string) *StaticKeyValidator {
	v := &StaticKeyValidator{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			v.keys = append(v.keys, k)
		}
	}
	return v
}

func (v *StaticKeyValidator) ValidateKey(_ context.Context, apiKey string) (bool, error) {
	if len(v.keys) == 0 {
		return false, ErrUnavailable
	}
	for _, k := range v.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(apiKey)) == 1 {
			return true, nil
		}
	}
	return false, nil
}
