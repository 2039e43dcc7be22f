// sharetoken.go generates share tokens: per-file delegated access grants
// independent of API keys. Like API keys, only the SHA-256 digest is stored.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// ShareTokenPrefix is the fixed recognizable prefix of every raw share token.
const ShareTokenPrefix = "eb_st_"

// GenerateShareToken creates a new random share token.
// Returns the full raw token (shown once) and its SHA-256 hex digest.
func GenerateShareToken() (token string, hash string, err error) {
	randomBytes := make([]byte, KeyRandomBytes)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = ShareTokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, HashAPIKey(token), nil
}
