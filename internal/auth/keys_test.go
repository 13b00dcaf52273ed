package auth

import (
	"strings"
	"testing"
)

func TestHashKey_TrimsWhitespace(t *testing.T) {
	if HashKey("  df_abc123  ") != HashKey("df_abc123") {
		t.Error("surrounding whitespace must not change the hash")
	}
}

func TestHashKey_EmptyString(t *testing.T) {
	// SHA-256 of the empty string.
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashKey(""); got != want {
		t.Errorf("HashKey(\"\") = %s, want %s", got, want)
	}
}

func TestHashKey_Deterministic(t *testing.T) {
	if HashKey("df_secret") != HashKey("df_secret") {
		t.Error("hashing the same key twice must give the same digest")
	}
	if HashKey("df_key1") == HashKey("df_key2") {
		t.Error("different keys produced the same hash")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("key %q missing %q prefix", key, KeyPrefix)
	}
	// Prefix plus 32 random bytes hex-encoded.
	if len(key) != len(KeyPrefix)+64 {
		t.Errorf("unexpected key length %d", len(key))
	}

	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if key == other {
		t.Error("two generated keys must not collide")
	}
}
