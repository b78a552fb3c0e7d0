package password

import (
	"strings"
	"testing"
)

func lightConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	h, err := New(lightConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	encoded, err := h.Hash("correct-horse-1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if strings.Contains(encoded, "correct-horse-1") {
		t.Fatal("plaintext leaked into encoding")
	}

	ok, err := h.Verify("correct-horse-1", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong-password-1", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestHashProducesUniqueSalts(t *testing.T) {
	h, err := New(lightConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	first, err := h.Hash("correct-horse-1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := h.Hash("correct-horse-1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of one password must differ")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h, err := New(lightConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := h.Hash("seven77"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
}

func TestVerifyRejectsMalformedEncodings(t *testing.T) {
	h, err := New(lightConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, bad := range []string{
		"",
		"plainhash",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=16,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$not-base64!$aGFzaA",
	} {
		if _, err := h.Verify("correct-horse-1", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNeedsUpgradeDetectsWeakerParameters(t *testing.T) {
	weak, err := New(lightConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	encoded, err := weak.Hash("correct-horse-1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	same, err := weak.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if same {
		t.Fatal("hash at current parameters should not need upgrade")
	}

	strongCfg := lightConfig()
	strongCfg.Memory = 64 * 1024
	strong, err := New(strongCfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	upgrade, err := strong.NeedsUpgrade(encoded)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if !upgrade {
		t.Fatal("expected weaker hash to need upgrade")
	}

	// The stronger hasher still verifies the old hash with its embedded
	// parameters.
	ok, err := strong.Verify("correct-horse-1", encoded)
	if err != nil || !ok {
		t.Fatalf("cross-parameter verify failed, ok=%v err=%v", ok, err)
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"low memory", func(c *Config) { c.Memory = 1024 }},
		{"zero time", func(c *Config) { c.Time = 0 }},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"short salt", func(c *Config) { c.SaltLength = 8 }},
		{"short key", func(c *Config) { c.KeyLength = 8 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := lightConfig()
			tc.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
