package internal

import (
	"regexp"
	"strings"
	"testing"
)

func TestNewRefreshValueShapeAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		v, err := NewRefreshValue()
		if err != nil {
			t.Fatalf("NewRefreshValue failed: %v", err)
		}
		if len(v) != 64 {
			t.Fatalf("unexpected length %d for %q", len(v), v)
		}
		if strings.ContainsAny(v, "+/=") {
			t.Fatalf("expected url-safe alphabet, got %q", v)
		}
		if seen[v] {
			t.Fatalf("duplicate value %q", v)
		}
		seen[v] = true
	}
}

func TestHashRefreshValueIsStableAndOpaque(t *testing.T) {
	a := HashRefreshValue("value-1")
	b := HashRefreshValue("value-1")
	c := HashRefreshValue("value-2")

	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if a == c {
		t.Fatal("distinct values must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got length %d", len(a))
	}
	if a == "value-1" {
		t.Fatal("hash must not echo the input")
	}
}

func TestNewBackupCodeShape(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{5}-[0-9a-f]{5}$`)
	for i := 0; i < 50; i++ {
		code, err := NewBackupCode()
		if err != nil {
			t.Fatalf("NewBackupCode failed: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code shape %q", code)
		}
	}
}

func TestBackupCodeCanonicalization(t *testing.T) {
	base := HashBackupCode("ab12c-de34f")

	variants := []string{
		"AB12C-DE34F",
		" ab12c-de34f ",
		"ab12cde34f",
		"AB12CDE34F",
	}
	for _, v := range variants {
		if HashBackupCode(v) != base {
			t.Fatalf("variant %q hashed differently", v)
		}
	}

	if HashBackupCode("ab12c-de34e") == base {
		t.Fatal("distinct codes must hash differently")
	}
	if CanonicalBackupCode(" AB-12 ") != "ab12" {
		t.Fatalf("CanonicalBackupCode = %q", CanonicalBackupCode(" AB-12 "))
	}
}
