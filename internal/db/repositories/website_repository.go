// website_repository.go implements WebsiteRepository, the query layer for
// deployed static-site bundles.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/easybits/easybits/internal/db/models"
)

// WebsiteRepository handles website database operations.
type WebsiteRepository struct {
	db *sqlx.DB
}

// NewWebsiteRepository creates a new WebsiteRepository.
func NewWebsiteRepository(db *sqlx.DB) *WebsiteRepository {
	return &WebsiteRepository{db: db}
}

// Create inserts a new website record.
func (r *WebsiteRepository) Create(ctx context.Context, w *models.Website) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.CreatedAt = time.Now()

	query := `
		INSERT INTO websites (id, owner_id, name, slug, prefix, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.OwnerID, w.Name, w.Slug, w.Prefix, w.Status, w.CreatedAt,
	)
	return err
}

// GetByID retrieves a website by id. Returns (nil, nil) when absent.
func (r *WebsiteRepository) GetByID(ctx context.Context, websiteID string) (*models.Website, error) {
	var w models.Website
	err := r.db.GetContext(ctx, &w, `SELECT * FROM websites WHERE id = $1`, websiteID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetBySlug retrieves a website by its unique slug.
func (r *WebsiteRepository) GetBySlug(ctx context.Context, slug string) (*models.Website, error) {
	var w models.Website
	err := r.db.GetContext(ctx, &w, `SELECT * FROM websites WHERE slug = $1`, slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListByOwner returns all websites owned by a user.
func (r *WebsiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Website, error) {
	sites := make([]*models.Website, 0)
	query := `SELECT * FROM websites WHERE owner_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &sites, query, ownerID)
	return sites, err
}

// Update writes the mutable website columns.
func (r *WebsiteRepository) Update(ctx context.Context, w *models.Website) error {
	query := `UPDATE websites SET name = $2, status = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, w.ID, w.Name, w.Status)
	return err
}

// Delete removes a website record. Its files are soft-deleted separately via
// the files prefix.
func (r *WebsiteRepository) Delete(ctx context.Context, websiteID, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM websites WHERE id = $1 AND owner_id = $2`, websiteID, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
