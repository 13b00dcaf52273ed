package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix marks raw API keys so they are recognizable in logs and configs.
const KeyPrefix = "df_"

// GenerateAPIKey returns a new random API key. Only the hash is ever stored;
// the raw key is shown to the caller once at creation time.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(raw), nil
}

// HashKey returns the hex SHA-256 digest of the key. Surrounding whitespace
// is stripped so keys pasted from configs hash identically.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
