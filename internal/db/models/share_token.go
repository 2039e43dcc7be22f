package models

import "time"

// Share token sources.
const (
	ShareSourceSDK       = "sdk"
	ShareSourceDashboard = "dashboard"
)

// ShareToken is a delegated, per-file, capability-scoped access grant
// independent of API keys. Capability flags are independent: a token can
// grant write without read.
type ShareToken struct {
	ID     string `db:"id" json:"id"`
	FileID string `db:"file_id" json:"file_id"`
	// TokenHash is the SHA-256 hex digest of the bearer token value.
	TokenHash   string     `db:"token_hash" json:"-"`
	TargetEmail *string    `db:"target_email" json:"target_email,omitempty"`
	CanRead     bool       `db:"can_read" json:"can_read"`
	CanWrite    bool       `db:"can_write" json:"can_write"`
	CanDelete   bool       `db:"can_delete" json:"can_delete"`
	Source      string     `db:"source" json:"source"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Expired reports whether the token is past its expiry at time now.
// Expiry is checked at use-time; expired tokens are not actively purged.
func (t *ShareToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
