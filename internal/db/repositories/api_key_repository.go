// api_key_repository.go implements APIKeyRepository, providing database queries
// for API key creation, digest lookup during authentication, revocation, and
// last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/easybits/easybits/internal/db/models"
)

const apiKeyColumns = `id, user_id, name, key_prefix, key_hash, scopes, status, expires_at, last_used_at, created_at`

// APIKeyRepository handles API key database operations.
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// CreateAPIKey inserts a new API key record.
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, apiKey *models.APIKey) error {
	if apiKey.ID == "" {
		apiKey.ID = uuid.New().String()
	}
	apiKey.CreatedAt = time.Now()
	if apiKey.Status == "" {
		apiKey.Status = models.APIKeyStatusActive
	}

	scopesJSON, err := json.Marshal(apiKey.Scopes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, key_prefix, key_hash, scopes, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		apiKey.ID,
		apiKey.UserID,
		apiKey.Name,
		apiKey.KeyPrefix,
		apiKey.KeyHash,
		scopesJSON,
		apiKey.Status,
		apiKey.ExpiresAt,
		apiKey.CreatedAt,
	)

	return err
}

func scanAPIKey(row interface{ Scan(...interface{}) error }) (*models.APIKey, error) {
	apiKey := &models.APIKey{}
	var scopesJSON []byte

	err := row.Scan(
		&apiKey.ID,
		&apiKey.UserID,
		&apiKey.Name,
		&apiKey.KeyPrefix,
		&apiKey.KeyHash,
		&scopesJSON,
		&apiKey.Status,
		&apiKey.ExpiresAt,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scopesJSON, &apiKey.Scopes); err != nil {
		return nil, err
	}
	return apiKey, nil
}

// GetAPIKeyByHash retrieves an API key by its SHA-256 digest (for
// authentication). The digest column is unique so this is a single indexed
// lookup.
func (r *APIKeyRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, keyHash))
}

// GetAPIKeyByID retrieves an API key by ID.
func (r *APIKeyRepository) GetAPIKeyByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return scanAPIKey(r.db.QueryRowContext(ctx, query, keyID))
}

// ListAPIKeysByUser retrieves all API keys for a user, revoked ones included.
func (r *APIKeyRepository) ListAPIKeysByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}
	return apiKeys, rows.Err()
}

// RevokeAPIKey marks a key revoked. The row stays for the audit trail.
func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, keyID, userID string) (bool, error) {
	query := `UPDATE api_keys SET status = $3 WHERE id = $1 AND user_id = $2 AND status != $3`
	res, err := r.db.ExecContext(ctx, query, keyID, userID, models.APIKeyStatusRevoked)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpireKeys revokes every active key whose expiry has passed. Returns how
// many keys were revoked.
func (r *APIKeyRepository) ExpireKeys(ctx context.Context) (int64, error) {
	query := `
		UPDATE api_keys SET status = $1
		WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3
	`
	res, err := r.db.ExecContext(ctx, query,
		models.APIKeyStatusRevoked, models.APIKeyStatusActive, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateLastUsed updates the last_used_at timestamp for an API key.
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}
