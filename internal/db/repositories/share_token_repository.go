// share_token_repository.go implements ShareTokenRepository, the query layer
// for per-file delegated access tokens.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/easybits/easybits/internal/db/models"
)

// ShareTokenRepository handles share token database operations.
type ShareTokenRepository struct {
	db *sqlx.DB
}

// NewShareTokenRepository creates a new ShareTokenRepository.
func NewShareTokenRepository(db *sqlx.DB) *ShareTokenRepository {
	return &ShareTokenRepository{db: db}
}

// Create inserts a new share token.
func (r *ShareTokenRepository) Create(ctx context.Context, t *models.ShareToken) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now()

	query := `
		INSERT INTO share_tokens (id, file_id, token_hash, target_email, can_read, can_write,
			can_delete, source, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.FileID, t.TokenHash, t.TargetEmail, t.CanRead, t.CanWrite,
		t.CanDelete, t.Source, t.ExpiresAt, t.CreatedAt,
	)
	return err
}

// GetByHash retrieves a token by its digest. Expiry is not filtered here —
// the service checks it at use-time so a 410 can be distinguished from a 404.
func (r *ShareTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.ShareToken, error) {
	var t models.ShareToken
	query := `SELECT * FROM share_tokens WHERE token_hash = $1`
	err := r.db.GetContext(ctx, &t, query, tokenHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID retrieves a token by id. Returns (nil, nil) when absent.
func (r *ShareTokenRepository) GetByID(ctx context.Context, tokenID string) (*models.ShareToken, error) {
	var t models.ShareToken
	query := `SELECT * FROM share_tokens WHERE id = $1`
	err := r.db.GetContext(ctx, &t, query, tokenID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByFile returns all tokens issued for a file.
func (r *ShareTokenRepository) ListByFile(ctx context.Context, fileID string) ([]*models.ShareToken, error) {
	tokens := make([]*models.ShareToken, 0)
	query := `SELECT * FROM share_tokens WHERE file_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &tokens, query, fileID)
	return tokens, err
}

// Revoke deletes a token by id.
func (r *ShareTokenRepository) Revoke(ctx context.Context, tokenID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM share_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
