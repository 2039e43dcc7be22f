// Package storage defines the Client interface and common types for all
// storage backends.
//
// New backends are added by implementing the Client interface and registering
// with the factory via an init() function in the backend's own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg storage.BackendConfig) (storage.Client, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// The router package imports each backend with a blank import to trigger
// init(), so adding a backend requires no changes to the factory itself.
//
// Clients never proxy object bytes: every transfer happens directly between
// the caller and the backend through presigned URLs. The application's role
// is to mint URLs and reconcile the resulting state.
package storage

import (
	"context"
	"errors"
	"time"
)

// Default presigned URL lifetimes.
const (
	DefaultURLExpiry = time.Hour
	// PreviewURLExpiry is the shorter lifetime used for ephemeral read URLs
	// (thumbnails, previews) where a long-lived grant is unnecessary.
	PreviewURLExpiry = 15 * time.Minute
)

var (
	// ErrBackendUnavailable is returned when the backend rejects a presign or
	// multipart call.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrIncompleteParts is returned by CompleteMultipart when the supplied
	// part list is empty, has gaps, or is out of order.
	ErrIncompleteParts = errors.New("multipart completion: parts list incomplete or out of order")
)

// CompletedPart pairs a part number with the ETag the backend returned for it.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"eTag"`
}

// Client is the uniform interface over one storage backend. Implementations
// exist per backend type; consumers resolve a Client once per operation and
// thread it through, never re-resolving mid-operation.
type Client interface {
	// PresignPut returns a time-limited URL authorizing a single PUT of the
	// object at key.
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)

	// PresignGet returns a time-limited URL authorizing a GET of the object.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// DeleteObject removes the object. An already-gone object is success:
	// delete must be idempotent so the purge job can safely re-run.
	DeleteObject(ctx context.Context, key string) error

	// CopyObject copies the object at srcKey to dstKey within the backend.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// CreateMultipart initiates a multipart upload session for key and
	// returns the backend's upload id. Fails with ErrBackendUnavailable if
	// the backend rejects.
	CreateMultipart(ctx context.Context, key, contentType string) (string, error)

	// PresignPutPart returns a presigned URL for uploading one part.
	PresignPutPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error)

	// CompleteMultipart stitches the uploaded parts into a finished object.
	// Fails with ErrIncompleteParts if parts is empty or misordered.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) error

	// AbortMultipart discards an open multipart session and its parts.
	AbortMultipart(ctx context.Context, key, uploadID string) error

	// EnsureCORS makes sure the backend allows browser uploads from the given
	// origins. CORS is a backend-level setting, not per-object, so
	// implementations must be idempotent and only write when the requested
	// origins differ from what is already configured.
	EnsureCORS(ctx context.Context, origins []string) error

	// Ping verifies the backend is reachable; used by the readiness probe.
	Ping(ctx context.Context) error
}

// OrderedParts checks that parts are non-empty and strictly ascending by
// part number starting at 1 with no gaps. Backends reject misordered
// completions anyway, but validating here produces a usable error before a
// network round-trip.
func OrderedParts(parts []CompletedPart) bool {
	if len(parts) == 0 {
		return false
	}
	for i, p := range parts {
		if p.PartNumber != int32(i+1) || p.ETag == "" {
			return false
		}
	}
	return true
}
