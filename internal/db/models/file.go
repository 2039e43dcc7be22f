// Package models defines the database model types for the EasyBits storage core.
// Each type corresponds to a database table and uses struct tags for both JSON serialization and sqlx row scanning.
// Models are pure data types — business logic belongs in the service layer, query logic belongs in the repositories layer.
package models

import (
	"encoding/json"
	"time"
)

// File status values. A file moves WAITING → WORKING → DONE, any state may
// move to ERROR, and any non-DELETED state may be soft-deleted.
const (
	FileStatusWaiting = "WAITING"
	FileStatusWorking = "WORKING"
	FileStatusDone    = "DONE"
	FileStatusError   = "ERROR"
	FileStatusDeleted = "DELETED"
)

// File access values.
const (
	FileAccessPublic  = "public"
	FileAccessPrivate = "private"
)

// ValidFileStatus reports whether s is one of the known file statuses.
func ValidFileStatus(s string) bool {
	switch s {
	case FileStatusWaiting, FileStatusWorking, FileStatusDone, FileStatusError, FileStatusDeleted:
		return true
	}
	return false
}

// File represents one stored object's metadata.
type File struct {
	ID          string  `db:"id" json:"id"`
	OwnerID     string  `db:"owner_id" json:"owner_id"`
	AssetID     *string `db:"asset_id" json:"asset_id,omitempty"`   // optional link to a commerce Asset
	Name        string  `db:"name" json:"name"`                     // logical path, may carry a hierarchical prefix like sites/{id}/
	StorageKey  string  `db:"storage_key" json:"storage_key"`       // opaque backend object key, unique per backend
	ContentType string  `db:"content_type" json:"content_type"`
	Size        int64   `db:"size" json:"size"`
	Status      string  `db:"status" json:"status"`
	Access      string  `db:"access" json:"access"`
	// StorageProviderID is nil when the file lives on the platform default backend.
	StorageProviderID *string `db:"storage_provider_id" json:"storage_provider_id,omitempty"`
	// Metadata is free-form JSON (HLS playlist content, version ladders, prior
	// status stashed during soft delete). RawMessage keeps it a JSON object on
	// the wire; plain []byte would serialize as base64.
	Metadata json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	// UploadID and PartCount are set while a multipart upload session is open.
	UploadID  *string `db:"upload_id" json:"-"`
	PartCount *int    `db:"part_count" json:"-"`
	// Version is a monotonic counter bumped on every status mutation so racing
	// webhook deliveries cannot silently overwrite each other.
	Version   int        `db:"version" json:"version"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the file has been soft-deleted.
func (f *File) IsDeleted() bool {
	return f.Status == FileStatusDeleted
}
