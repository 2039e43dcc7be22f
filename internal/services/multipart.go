// multipart.go implements multipart upload orchestration on top of
// FileService. Large objects are split into fixed-size parts uploaded through
// presigned per-part URLs; the server persists the session so completion can
// be validated without trusting the client's arithmetic.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/storage"
)

const (
	// PartSize is the fixed size of every part except the last.
	PartSize = 8 << 20 // 8 MiB

	// MaxParts mirrors the S3 limit on parts per upload.
	MaxParts = 10000

	// partURLExpiry is longer than the single-shot grant because large
	// uploads legitimately run for hours.
	partURLExpiry = 6 * time.Hour
)

// MultipartGrant is the response to starting a multipart upload: the file
// record, the session id, and one presigned URL per part.
type MultipartGrant struct {
	File      *models.File `json:"file"`
	UploadID  string       `json:"upload_id"`
	PartSize  int64        `json:"part_size"`
	PartURLs  []string     `json:"part_urls"`
	ExpiresIn int          `json:"expires_in"` // seconds
}

// partCountFor returns how many parts a payload of the given size needs.
func partCountFor(size int64) int {
	n := int((size + PartSize - 1) / PartSize)
	if n == 0 {
		n = 1
	}
	return n
}

// CreateMultipartUpload registers a WAITING file and opens a multipart
// session for it, returning presigned URLs for every part.
func (s *FileService) CreateMultipartUpload(ctx context.Context, userID string, in CreateFileInput) (*MultipartGrant, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Size <= 0 {
		return nil, fmt.Errorf("%w: multipart uploads require a positive size", ErrValidation)
	}
	partCount := partCountFor(in.Size)
	if partCount > MaxParts {
		return nil, fmt.Errorf("%w: %d parts exceeds the limit of %d", ErrValidation, partCount, MaxParts)
	}

	client, provider, err := s.resolver.Resolve(ctx, userID, in.ProviderID)
	if err != nil {
		return nil, err
	}

	file := &models.File{
		OwnerID:     userID,
		AssetID:     in.AssetID,
		Name:        in.Name,
		StorageKey:  newStorageKey(userID),
		ContentType: in.ContentType,
		Size:        in.Size,
		Status:      models.FileStatusWaiting,
		Access:      in.Access,
		Metadata:    in.Metadata,
	}
	if provider != nil {
		file.StorageProviderID = &provider.ID
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("creating file record: %w", err)
	}

	uploadID, err := client.CreateMultipart(ctx, file.StorageKey, file.ContentType)
	if err != nil {
		return nil, fmt.Errorf("opening multipart session: %w", err)
	}
	if err := s.files.SetMultipart(ctx, file.ID, uploadID, partCount); err != nil {
		return nil, fmt.Errorf("persisting multipart session: %w", err)
	}

	urls := make([]string, 0, partCount)
	for part := 1; part <= partCount; part++ {
		url, err := client.PresignPutPart(ctx, file.StorageKey, uploadID, int32(part), partURLExpiry)
		if err != nil {
			return nil, fmt.Errorf("presigning part %d: %w", part, err)
		}
		urls = append(urls, url)
	}

	s.logger.Info("multipart upload opened",
		"file_id", file.ID, "user_id", userID, "parts", partCount, "size", in.Size)
	s.publish(userID, file.ID)

	return &MultipartGrant{
		File:      file,
		UploadID:  uploadID,
		PartSize:  PartSize,
		PartURLs:  urls,
		ExpiresIn: int(partURLExpiry.Seconds()),
	}, nil
}

// CompleteMultipartUpload validates the client's part list against the
// persisted session, stitches the object, and marks the file DONE. The part
// list must cover every part in strict ascending order.
func (s *FileService) CompleteMultipartUpload(ctx context.Context, userID, fileID, uploadID string, parts []storage.CompletedPart) (*models.File, error) {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.UploadID == nil || *file.UploadID != uploadID {
		return nil, fmt.Errorf("%w: no open multipart session %s for file", ErrValidation, uploadID)
	}
	if file.PartCount != nil && len(parts) != *file.PartCount {
		return nil, fmt.Errorf("%w: got %d parts, session has %d", storage.ErrIncompleteParts, len(parts), *file.PartCount)
	}
	if !storage.OrderedParts(parts) {
		return nil, storage.ErrIncompleteParts
	}

	client, err := s.resolver.ResolveForFile(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := client.CompleteMultipart(ctx, file.StorageKey, uploadID, parts); err != nil {
		return nil, fmt.Errorf("completing multipart: %w", err)
	}

	if err := s.files.ClearMultipart(ctx, fileID); err != nil {
		return nil, fmt.Errorf("clearing multipart session: %w", err)
	}
	applied, err := s.files.UpdateStatus(ctx, fileID, models.FileStatusDone, file.Version)
	if err != nil {
		return nil, fmt.Errorf("finishing upload: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: file changed concurrently", ErrConflict)
	}

	s.logger.Info("multipart upload completed", "file_id", fileID, "user_id", userID, "parts", len(parts))
	s.publish(userID, fileID)
	return s.files.GetByID(ctx, fileID)
}

// AbortMultipartUpload discards an open session and its uploaded parts. The
// file record stays in WAITING so the client can retry with a fresh session.
func (s *FileService) AbortMultipartUpload(ctx context.Context, userID, fileID, uploadID string) error {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if file.UploadID == nil || *file.UploadID != uploadID {
		return fmt.Errorf("%w: no open multipart session %s for file", ErrValidation, uploadID)
	}

	client, err := s.resolver.ResolveForFile(ctx, file)
	if err != nil {
		return err
	}
	if err := client.AbortMultipart(ctx, file.StorageKey, uploadID); err != nil {
		return fmt.Errorf("aborting multipart: %w", err)
	}
	if err := s.files.ClearMultipart(ctx, fileID); err != nil {
		return fmt.Errorf("clearing multipart session: %w", err)
	}

	s.logger.Info("multipart upload aborted", "file_id", fileID, "user_id", userID)
	return nil
}
