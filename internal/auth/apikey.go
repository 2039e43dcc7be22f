// Package auth provides authentication primitives for the storage API:
// API key generation/validation and session JWT creation/verification.
// API keys authenticate programmatic callers on /api/v2; session JWTs
// authenticate the dashboard on the key-management endpoints (you cannot
// bootstrap an API key with an API key).
// See internal/middleware/auth.go for the request-time authentication logic
// that uses these primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeyPrefix is the fixed recognizable prefix of every raw API key.
	KeyPrefix = "eb_sk_live_"

	// KeyRandomBytes is the length of the random part of the key in bytes.
	KeyRandomBytes = 32

	// DisplayPrefixLength is the number of characters of the raw key that are
	// safe to store and display for identification.
	DisplayPrefixLength = 14
)

// GenerateAPIKey creates a new random API key.
// Returns: full raw key (to show once), SHA-256 hex digest (to store), and
// the display prefix. The digest is deterministic so authentication is a
// single indexed lookup by hash; the raw key is never persisted.
func GenerateAPIKey() (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, KeyRandomBytes)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := KeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	displayPrefix = fullKey
	if len(fullKey) > DisplayPrefixLength {
		displayPrefix = fullKey[:DisplayPrefixLength]
	}

	return fullKey, HashAPIKey(fullKey), displayPrefix, nil
}

// HashAPIKey returns the SHA-256 hex digest of a raw key.
func HashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer eb_sk_live_abc123...".
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
