package policy

import (
	"context"
	"errors"
	"testing"
)

func TestStaticKeyValidator(t *testing.T) {
	v := NewStaticKeyValidator([]string{"alpha", " beta "})

	ok, err := v.ValidateKey(context.Background(), "alpha")
	if err != nil || !ok {
		t.Fatalf("ValidateKey(alpha) = %v, %v", ok, err)
	}
	ok, err = v.ValidateKey(context.Background(), "beta")
	if err != nil || !ok {
		t.Fatalf("ValidateKey(beta) = %v, %v (keys should be trimmed)", ok, err)
	}
	ok, err = v.ValidateKey(context.Background(), "gamma")
	if err != nil || ok {
		t.Fatalf("ValidateKey(gamma) = %v, %v, want rejection", ok, err)
	}
}

func TestStaticKeyValidatorUnavailableWhenEmpty(t *testing.T) {
	v := NewStaticKeyValidator(nil)
	_, err := v.ValidateKey(context.Background(), "anything")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ValidateKey() error = %v, want ErrUnavailable", err)
	}
}

func TestMaskKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "*****"},
		{"sk-abcdef123456", "sk-a****"},
	}
	for _, tc := range cases {
		if got := MaskKey(tc.in); got != tc.want {
			t.Fatalf("MaskKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
