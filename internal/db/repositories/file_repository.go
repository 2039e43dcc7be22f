// Package repositories implements the database query layer. Repositories hold
// SQL and row scanning only; ownership checks, status rules, and storage
// coordination belong to the service layer. The older repositories use
// database/sql directly, the newer ones sqlx — both run against the same
// connection pool.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easybits/easybits/internal/db/models"
)

// fileColumns is the canonical select list for files rows.
const fileColumns = `id, owner_id, asset_id, name, storage_key, content_type, size, status, access,
		storage_provider_id, metadata, upload_id, part_count, version, created_at, updated_at, deleted_at`

// FileRepository handles file metadata database operations.
type FileRepository struct {
	db *sql.DB
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func scanFile(row interface{ Scan(...interface{}) error }) (*models.File, error) {
	f := &models.File{}
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.AssetID, &f.Name, &f.StorageKey, &f.ContentType,
		&f.Size, &f.Status, &f.Access, &f.StorageProviderID, &f.Metadata,
		&f.UploadID, &f.PartCount, &f.Version, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts a new file record.
func (r *FileRepository) Create(ctx context.Context, f *models.File) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now

	query := `
		INSERT INTO files (id, owner_id, asset_id, name, storage_key, content_type, size, status, access,
			storage_provider_id, metadata, upload_id, part_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.OwnerID, f.AssetID, f.Name, f.StorageKey, f.ContentType,
		f.Size, f.Status, f.Access, f.StorageProviderID, f.Metadata,
		f.UploadID, f.PartCount, f.Version, f.CreatedAt, f.UpdatedAt,
	)
	return err
}

// GetByID retrieves a file by id, including soft-deleted rows.
// Returns (nil, nil) when absent.
func (r *FileRepository) GetByID(ctx context.Context, fileID string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	return scanFile(r.db.QueryRowContext(ctx, query, fileID))
}

// UpdateFields applies a partial update of the mutable metadata columns.
// Only non-nil inputs are written. Status is NOT handled here — status moves
// through UpdateStatus so the version counter is always bumped.
func (r *FileRepository) UpdateFields(ctx context.Context, fileID string, name, access *string, metadata []byte) error {
	sets := []string{"updated_at = $2"}
	args := []interface{}{fileID, time.Now()}

	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if access != nil {
		args = append(args, *access)
		sets = append(sets, fmt.Sprintf("access = $%d", len(args)))
	}
	if metadata != nil {
		args = append(args, metadata)
		sets = append(sets, fmt.Sprintf("metadata = $%d", len(args)))
	}

	query := `UPDATE files SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// UpdateStatus transitions a file's status with an optimistic concurrency
// check on the version counter. Returns false when the row was modified
// concurrently (version mismatch) or does not exist.
func (r *FileRepository) UpdateStatus(ctx context.Context, fileID, status string, expectedVersion int) (bool, error) {
	query := `
		UPDATE files SET status = $3, version = version + 1, updated_at = $4
		WHERE id = $1 AND version = $2
	`
	res, err := r.db.ExecContext(ctx, query, fileID, expectedVersion, status, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SoftDelete marks a file DELETED and stamps deleted_at. The previous status
// is stashed so restore can put it back.
func (r *FileRepository) SoftDelete(ctx context.Context, fileID string) error {
	query := `
		UPDATE files
		SET metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{priorStatus}', to_jsonb(status)),
			status = $2, deleted_at = $3, version = version + 1, updated_at = $3
		WHERE id = $1 AND status != $2
	`
	_, err := r.db.ExecContext(ctx, query, fileID, models.FileStatusDeleted, time.Now())
	return err
}

// Restore clears the DELETED status, putting back the stashed prior status
// (DONE when none was recorded).
func (r *FileRepository) Restore(ctx context.Context, fileID string) error {
	query := `
		UPDATE files
		SET status = COALESCE(metadata->>'priorStatus', $2),
			metadata = metadata - 'priorStatus',
			deleted_at = NULL, version = version + 1, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, fileID, models.FileStatusDone, time.Now(), models.FileStatusDeleted)
	return err
}

// HardDelete permanently removes a file record (purge).
func (r *FileRepository) HardDelete(ctx context.Context, fileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	return err
}

// SetMultipart records the open multipart session on the file row.
func (r *FileRepository) SetMultipart(ctx context.Context, fileID, uploadID string, partCount int) error {
	query := `UPDATE files SET upload_id = $2, part_count = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, fileID, uploadID, partCount, time.Now())
	return err
}

// ClearMultipart drops the multipart session columns after completion.
func (r *FileRepository) ClearMultipart(ctx context.Context, fileID string) error {
	query := `UPDATE files SET upload_id = NULL, part_count = NULL, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, fileID, time.Now())
	return err
}

// ListFilter narrows List queries.
type ListFilter struct {
	OwnerID string
	AssetID string
	// Deleted switches between normal listing (DELETED excluded) and the
	// deleted-only listing.
	Deleted bool
	// Cursor is the id of the last row of the previous page, empty for the
	// first page. Rows are ordered created_at DESC, id DESC.
	Cursor string
	Limit  int
}

// List returns a page of files for an owner. DELETED files are excluded
// unless the filter asks for them exclusively.
func (r *FileRepository) List(ctx context.Context, filter ListFilter) ([]*models.File, error) {
	args := []interface{}{filter.OwnerID}
	where := []string{"owner_id = $1"}

	if filter.Deleted {
		args = append(args, models.FileStatusDeleted)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	} else {
		args = append(args, models.FileStatusDeleted)
		where = append(where, fmt.Sprintf("status != $%d", len(args)))
	}

	if filter.AssetID != "" {
		args = append(args, filter.AssetID)
		where = append(where, fmt.Sprintf("asset_id = $%d", len(args)))
	}

	if filter.Cursor != "" {
		args = append(args, filter.Cursor)
		where = append(where, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM files WHERE id = $%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + strings.Join(where, " AND ") +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	return r.queryFiles(ctx, query, args...)
}

// Search returns non-deleted files whose name contains the query substring.
func (r *FileRepository) Search(ctx context.Context, ownerID, q string, limit int) ([]*models.File, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id = $1 AND status != $2 AND name ILIKE '%' || $3 || '%'
		ORDER BY created_at DESC LIMIT $4`
	return r.queryFiles(ctx, query, ownerID, models.FileStatusDeleted, q, limit)
}

// ListPurgeable returns DELETED files whose deleted_at is older than the
// cutoff, ready for permanent removal.
func (r *FileRepository) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*models.File, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE status = $1 AND deleted_at IS NOT NULL AND deleted_at < $2
		ORDER BY deleted_at ASC LIMIT $3`
	return r.queryFiles(ctx, query, models.FileStatusDeleted, cutoff, limit)
}

// ListByPrefix returns all non-deleted files of an owner whose name starts
// with the given prefix (website bundles).
func (r *FileRepository) ListByPrefix(ctx context.Context, ownerID, prefix string) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE owner_id = $1 AND status != $2 AND name LIKE $3 || '%'
		ORDER BY name ASC`
	return r.queryFiles(ctx, query, ownerID, models.FileStatusDeleted, prefix)
}

// CountByProvider reports how many non-deleted files reference a custom
// storage provider. Used to guard provider deletion.
func (r *FileRepository) CountByProvider(ctx context.Context, providerID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM files WHERE storage_provider_id = $1 AND status != $2`
	err := r.db.QueryRowContext(ctx, query, providerID, models.FileStatusDeleted).Scan(&n)
	return n, err
}

// UsageStats aggregates an owner's storage consumption.
type UsageStats struct {
	FileCount    int   `json:"file_count"`
	TotalBytes   int64 `json:"total_bytes"`
	DeletedCount int   `json:"deleted_count"`
}

// Usage returns aggregate usage for an owner.
func (r *FileRepository) Usage(ctx context.Context, ownerID string) (*UsageStats, error) {
	stats := &UsageStats{}
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status != $2),
			COALESCE(SUM(size) FILTER (WHERE status != $2), 0),
			COUNT(*) FILTER (WHERE status = $2)
		FROM files WHERE owner_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, ownerID, models.FileStatusDeleted).
		Scan(&stats.FileCount, &stats.TotalBytes, &stats.DeletedCount)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *FileRepository) queryFiles(ctx context.Context, query string, args ...interface{}) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]*models.File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
