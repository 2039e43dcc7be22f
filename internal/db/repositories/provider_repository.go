// provider_repository.go implements ProviderRepository, the query layer for
// user-owned custom storage backend configurations.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/easybits/easybits/internal/db/models"
)

// ProviderRepository handles storage provider database operations.
type ProviderRepository struct {
	db *sqlx.DB
}

// NewProviderRepository creates a new ProviderRepository.
func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Create inserts a new provider. When cfg.IsDefault is set the previous
// default for the user is cleared in the same transaction.
func (r *ProviderRepository) Create(ctx context.Context, p *models.StorageProvider) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if p.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE storage_providers SET is_default = false WHERE user_id = $1 AND is_default`,
			p.UserID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO storage_providers (id, user_id, name, type, region, endpoint, bucket,
			access_key_id, secret_access_key, is_default, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := tx.ExecContext(ctx, query,
		p.ID, p.UserID, p.Name, p.Type, p.Region, p.Endpoint, p.Bucket,
		p.AccessKeyID, p.SecretAccessKey, p.IsDefault, p.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a provider by id. Returns (nil, nil) when absent.
func (r *ProviderRepository) GetByID(ctx context.Context, providerID string) (*models.StorageProvider, error) {
	var p models.StorageProvider
	query := `SELECT * FROM storage_providers WHERE id = $1`
	err := r.db.GetContext(ctx, &p, query, providerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetDefaultForUser returns the user's default provider, or (nil, nil) when
// the user relies on the platform backend.
func (r *ProviderRepository) GetDefaultForUser(ctx context.Context, userID string) (*models.StorageProvider, error) {
	var p models.StorageProvider
	query := `SELECT * FROM storage_providers WHERE user_id = $1 AND is_default`
	err := r.db.GetContext(ctx, &p, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByUser returns all providers owned by a user.
func (r *ProviderRepository) ListByUser(ctx context.Context, userID string) ([]*models.StorageProvider, error) {
	providers := make([]*models.StorageProvider, 0)
	query := `SELECT * FROM storage_providers WHERE user_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &providers, query, userID)
	return providers, err
}

// SetDefault makes the given provider the user's default, clearing any
// previous default transactionally. Returns false when the provider does not
// exist or is not owned by the user.
func (r *ProviderRepository) SetDefault(ctx context.Context, providerID, userID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE storage_providers SET is_default = false WHERE user_id = $1 AND is_default`,
		userID); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE storage_providers SET is_default = true WHERE id = $1 AND user_id = $2`,
		providerID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	return true, tx.Commit()
}

// Delete removes a provider. The caller must verify no non-deleted files
// still reference it.
func (r *ProviderRepository) Delete(ctx context.Context, providerID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM storage_providers WHERE id = $1 AND user_id = $2`,
		providerID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
