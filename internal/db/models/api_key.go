package models

import "time"

// API key status values. Keys are revoked rather than deleted so the audit
// trail survives.
const (
	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"
)

// APIKey represents an API key for programmatic access.
type APIKey struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	// KeyPrefix is the first few characters of the raw key, safe to display.
	KeyPrefix string `json:"key_prefix"`
	// KeyHash is the SHA-256 hex digest of the full raw key. The raw key is
	// shown once at creation and never persisted.
	KeyHash    string     `json:"-"`
	Scopes     []string   `json:"scopes"` // subset of {READ, WRITE, DELETE, ADMIN}
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Active reports whether the key is usable at time now.
func (k *APIKey) Active(now time.Time) bool {
	if k.Status != APIKeyStatusActive {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}
