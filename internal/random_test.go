package internal

import (
	"strings"
	"testing"
)

func TestNewBackupCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := NewBackupCode(8)
		if err != nil {
			t.Fatalf("NewBackupCode failed: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("code %q length = %d, want 8", code, len(code))
		}
		for _, r := range code {
			if !strings.ContainsRune(backupCodeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 99 {
		t.Fatalf("got %d distinct codes out of 100", len(seen))
	}

	if _, err := NewBackupCode(0); err == nil {
		t.Fatal("zero length must fail")
	}
}

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("code %q length = %d, want %d", code, len(code), digits)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit %q", code, r)
			}
		}
	}

	if _, err := NewOTP(3); err == nil {
		t.Fatal("too few digits must fail")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("too many digits must fail")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := HashToken("some-token")
	b := HashToken("some-token")
	if a != b {
		t.Fatal("hashing must be deterministic")
	}
	if a == HashToken("other-token") {
		t.Fatal("distinct inputs must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatal("ids must be unique")
	}
	if len(a) != 36 {
		t.Fatalf("id %q is not a canonical uuid", a)
	}
}
