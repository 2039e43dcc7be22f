// files.go implements FileService, the business logic for the file lifecycle:
// upload grants, metadata reads and updates, soft delete and restore,
// duplication, share tokens, and bulk operations. Handlers stay thin; all
// ownership and state-machine rules live here.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/events"
	"github.com/easybits/easybits/internal/storage"
)

// RetentionWindow is how long a soft-deleted file can be restored before the
// purge job removes it permanently.
const RetentionWindow = 30 * 24 * time.Hour

// MaxFileNameLength caps logical file names.
const MaxFileNameLength = 1024

// ClientResolver resolves storage clients for operations and files. Satisfied
// by *Resolver; an interface so tests can substitute a fixed client.
type ClientResolver interface {
	Resolve(ctx context.Context, userID, providerID string) (storage.Client, *models.StorageProvider, error)
	ResolveForFile(ctx context.Context, file *models.File) (storage.Client, error)
}

// FileService coordinates file metadata, storage backends, and the event bus.
type FileService struct {
	files    *repositories.FileRepository
	shares   *repositories.ShareTokenRepository
	resolver ClientResolver
	bus      *events.Bus
	logger   *slog.Logger
}

// NewFileService creates a FileService.
func NewFileService(files *repositories.FileRepository, shares *repositories.ShareTokenRepository, resolver ClientResolver, bus *events.Bus, logger *slog.Logger) *FileService {
	return &FileService{
		files:    files,
		shares:   shares,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
	}
}

// ---- Upload ---------------------------------------------------------------

// CreateFileInput is the request to start a single-shot upload.
type CreateFileInput struct {
	Name        string          `json:"name"`
	ContentType string          `json:"content_type"`
	Size        int64           `json:"size"`
	Access      string          `json:"access"`
	ProviderID  string          `json:"provider_id,omitempty"`
	AssetID     *string         `json:"asset_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func (in *CreateFileInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(in.Name) > MaxFileNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, MaxFileNameLength)
	}
	if in.Size < 0 {
		return fmt.Errorf("%w: size must be non-negative", ErrValidation)
	}
	if in.Access == "" {
		in.Access = models.FileAccessPrivate
	}
	if in.Access != models.FileAccessPublic && in.Access != models.FileAccessPrivate {
		return fmt.Errorf("%w: access must be public or private", ErrValidation)
	}
	if in.ContentType == "" {
		in.ContentType = "application/octet-stream"
	}
	return nil
}

// UploadGrant is the response to an upload request: the created file record
// plus the presigned URL the client PUTs the bytes to.
type UploadGrant struct {
	File      *models.File `json:"file"`
	UploadURL string       `json:"upload_url"`
	ExpiresIn int          `json:"expires_in"` // seconds
}

// CreateUpload registers a file in WAITING state and returns a presigned PUT
// URL for it. The file becomes DONE when the upload is confirmed.
func (s *FileService) CreateUpload(ctx context.Context, userID string, in CreateFileInput) (*UploadGrant, error) {
	if err := in.validate(); err != nil {
		return nil, err
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

	url, err := client.PresignPut(ctx, file.StorageKey, file.ContentType, storage.DefaultURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presigning upload: %w", err)
	}

	s.logger.Info("upload grant issued", "file_id", file.ID, "user_id", userID, "size", in.Size)
	s.publish(userID, file.ID)

	return &UploadGrant{
		File:      file,
		UploadURL: url,
		ExpiresIn: int(storage.DefaultURLExpiry.Seconds()),
	}, nil
}

// ConfirmUpload transitions a WAITING file to DONE after the client reports
// the PUT finished. Files that are processed asynchronously move through
// WORKING via the conversion webhook instead.
func (s *FileService) ConfirmUpload(ctx context.Context, userID, fileID string) (*models.File, error) {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.Status != models.FileStatusWaiting {
		return nil, fmt.Errorf("%w: file is %s, expected WAITING", ErrConflict, file.Status)
	}

	applied, err := s.files.UpdateStatus(ctx, fileID, models.FileStatusDone, file.Version)
	if err != nil {
		return nil, fmt.Errorf("confirming upload: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: file changed concurrently", ErrConflict)
	}

	s.publish(userID, fileID)
	return s.files.GetByID(ctx, fileID)
}

// ---- Reads ----------------------------------------------------------------

// Get returns a file's metadata. Owners see their own files in any state;
// other callers see only public, non-deleted files. Missing and invisible
// files are indistinguishable.
func (s *FileService) Get(ctx context.Context, userID, fileID string) (*models.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrNotFound
	}
	if file.OwnerID != userID {
		if file.Access != models.FileAccessPublic || file.IsDeleted() {
			return nil, ErrNotFound
		}
	}
	return file, nil
}

// DownloadURL returns a presigned GET URL for a file. Soft-deleted files are
// not downloadable.
func (s *FileService) DownloadURL(ctx context.Context, userID, fileID string) (string, error) {
	file, err := s.Get(ctx, userID, fileID)
	if err != nil {
		return "", err
	}
	if file.IsDeleted() {
		return "", ErrNotFound
	}

	client, err := s.resolver.ResolveForFile(ctx, file)
	if err != nil {
		return "", err
	}

	url, err := client.PresignGet(ctx, file.StorageKey, storage.DefaultURLExpiry)
	if err != nil {
		return "", fmt.Errorf("presigning download: %w", err)
	}
	return url, nil
}

// List returns a page of the user's files.
func (s *FileService) List(ctx context.Context, userID string, filter repositories.ListFilter) ([]*models.File, error) {
	filter.OwnerID = userID
	return s.files.List(ctx, filter)
}

// Search returns the user's non-deleted files matching a name substring.
func (s *FileService) Search(ctx context.Context, userID, query string, limit int) ([]*models.File, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrValidation)
	}
	return s.files.Search(ctx, userID, query, limit)
}

// Usage returns the user's aggregate storage consumption.
func (s *FileService) Usage(ctx context.Context, userID string) (*repositories.UsageStats, error) {
	return s.files.Usage(ctx, userID)
}

// ---- Updates --------------------------------------------------------------

// UpdateFileInput is a partial metadata update. Nil fields are untouched.
type UpdateFileInput struct {
	Name     *string         `json:"name,omitempty"`
	Access   *string         `json:"access,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Update applies a partial metadata update to an owned file.
func (s *FileService) Update(ctx context.Context, userID, fileID string, in UpdateFileInput) (*models.File, error) {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted() {
		return nil, fmt.Errorf("%w: cannot update a deleted file", ErrConflict)
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		if len(*in.Name) > MaxFileNameLength {
			return nil, fmt.Errorf("%w: name exceeds %d characters", ErrValidation, MaxFileNameLength)
		}
	}
	if in.Access != nil && *in.Access != models.FileAccessPublic && *in.Access != models.FileAccessPrivate {
		return nil, fmt.Errorf("%w: access must be public or private", ErrValidation)
	}

	if err := s.files.UpdateFields(ctx, fileID, in.Name, in.Access, in.Metadata); err != nil {
		return nil, fmt.Errorf("updating file: %w", err)
	}

	s.publish(userID, fileID)
	return s.files.GetByID(ctx, fileID)
}

// SetStatus applies a webhook-driven status transition using optimistic
// concurrency. Returns the updated file; a stale version yields ErrConflict
// so the delivery can be retried against fresh state.
func (s *FileService) SetStatus(ctx context.Context, fileID, status string, expectedVersion int) (*models.File, error) {
	if !models.ValidFileStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrNotFound
	}
	if !validTransition(file.Status, status) {
		return nil, fmt.Errorf("%w: cannot move %s to %s", ErrConflict, file.Status, status)
	}

	applied, err := s.files.UpdateStatus(ctx, fileID, status, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: file changed concurrently", ErrConflict)
	}

	s.publish(file.OwnerID, fileID)
	return s.files.GetByID(ctx, fileID)
}

// validTransition encodes the file state machine: WAITING moves to WORKING or
// DONE, WORKING to DONE, any state to ERROR, and soft delete is handled
// separately. DELETED rows never transition through here.
func validTransition(from, to string) bool {
	if from == models.FileStatusDeleted {
		return false
	}
	switch to {
	case models.FileStatusError:
		return true
	case models.FileStatusWorking:
		return from == models.FileStatusWaiting
	case models.FileStatusDone:
		return from == models.FileStatusWaiting || from == models.FileStatusWorking
	}
	return false
}

// ApplyConversion records a conversion pipeline result: optional playlist
// content merged into metadata, then a status move guarded by the version the
// file had when this delivery was read.
func (s *FileService) ApplyConversion(ctx context.Context, fileID, status string, playlist json.RawMessage) (*models.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrNotFound
	}

	if len(playlist) > 0 {
		meta := map[string]json.RawMessage{}
		if len(file.Metadata) > 0 {
			if err := json.Unmarshal(file.Metadata, &meta); err != nil {
				meta = map[string]json.RawMessage{}
			}
		}
		meta["playlist"] = playlist
		merged, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("merging metadata: %w", err)
		}
		if err := s.files.UpdateFields(ctx, fileID, nil, nil, merged); err != nil {
			return nil, fmt.Errorf("storing playlist: %w", err)
		}
	}

	return s.SetStatus(ctx, fileID, status, file.Version)
}

// ---- Delete / Restore -----------------------------------------------------

// Delete soft-deletes an owned file. Deleting an already-deleted file is a
// no-op success so retried deletes stay idempotent.
func (s *FileService) Delete(ctx context.Context, userID, fileID string) error {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if file.IsDeleted() {
		return nil
	}

	if err := s.files.SoftDelete(ctx, fileID); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}

	s.logger.Info("file soft-deleted", "file_id", fileID, "user_id", userID)
	s.publish(userID, fileID)
	return nil
}

// Restore brings a soft-deleted file back within the retention window.
func (s *FileService) Restore(ctx context.Context, userID, fileID string) (*models.File, error) {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if !file.IsDeleted() {
		return nil, fmt.Errorf("%w: file is not deleted", ErrValidation)
	}
	if file.DeletedAt != nil && time.Since(*file.DeletedAt) > RetentionWindow {
		return nil, ErrRetentionExpired
	}

	if err := s.files.Restore(ctx, fileID); err != nil {
		return nil, fmt.Errorf("restoring file: %w", err)
	}

	s.logger.Info("file restored", "file_id", fileID, "user_id", userID)
	s.publish(userID, fileID)
	return s.files.GetByID(ctx, fileID)
}

// ---- Duplicate ------------------------------------------------------------

// Duplicate copies a file's object within its backend and registers the copy
// as a new DONE file owned by the same user.
func (s *FileService) Duplicate(ctx context.Context, userID, fileID string) (*models.File, error) {
	src, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if src.IsDeleted() {
		return nil, fmt.Errorf("%w: cannot duplicate a deleted file", ErrConflict)
	}
	if src.Status != models.FileStatusDone {
		return nil, fmt.Errorf("%w: only finished files can be duplicated", ErrConflict)
	}

	client, err := s.resolver.ResolveForFile(ctx, src)
	if err != nil {
		return nil, err
	}

	dst := &models.File{
		OwnerID:           userID,
		AssetID:           src.AssetID,
		Name:              copyName(src.Name),
		StorageKey:        newStorageKey(userID),
		ContentType:       src.ContentType,
		Size:              src.Size,
		Status:            models.FileStatusDone,
		Access:            src.Access,
		StorageProviderID: src.StorageProviderID,
		Metadata:          src.Metadata,
	}

	if err := client.CopyObject(ctx, src.StorageKey, dst.StorageKey); err != nil {
		return nil, fmt.Errorf("copying object: %w", err)
	}
	if err := s.files.Create(ctx, dst); err != nil {
		return nil, fmt.Errorf("creating duplicate record: %w", err)
	}

	s.logger.Info("file duplicated", "source_id", src.ID, "duplicate_id", dst.ID, "user_id", userID)
	s.publish(userID, dst.ID)
	return dst, nil
}

// copyName derives the duplicate's name, preserving the extension.
func copyName(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i] + " (copy)" + name[i:]
	}
	return name + " (copy)"
}

// ---- Processing -----------------------------------------------------------

// StartProcessing moves an owned file into WORKING ahead of an asynchronous
// conversion (optimize, transform). The pipeline itself runs elsewhere and
// reports back through the conversion webhook; a file already WORKING is
// returned as-is so repeated kicks stay idempotent.
func (s *FileService) StartProcessing(ctx context.Context, userID, fileID, kind string) (*models.File, error) {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted() {
		return nil, fmt.Errorf("%w: cannot process a deleted file", ErrConflict)
	}
	if file.Status == models.FileStatusWorking {
		return file, nil
	}
	if file.Status != models.FileStatusDone {
		return nil, fmt.Errorf("%w: file is %s, expected DONE", ErrConflict, file.Status)
	}

	applied, err := s.files.UpdateStatus(ctx, fileID, models.FileStatusWorking, file.Version)
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", kind, err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: file changed concurrently", ErrConflict)
	}

	s.logger.Info("file processing started", "file_id", fileID, "user_id", userID, "kind", kind)
	s.publish(userID, fileID)
	return s.files.GetByID(ctx, fileID)
}

// ---- Bulk -----------------------------------------------------------------

// BulkResult reports the outcome for one file in a bulk operation.
type BulkResult struct {
	FileID string `json:"file_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// BulkDelete soft-deletes a set of files, continuing past per-file failures.
// The response carries one result per requested id in request order.
func (s *FileService) BulkDelete(ctx context.Context, userID string, fileIDs []string) ([]BulkResult, error) {
	if len(fileIDs) == 0 {
		return nil, fmt.Errorf("%w: file_ids is required", ErrValidation)
	}

	results := make([]BulkResult, 0, len(fileIDs))
	for _, id := range fileIDs {
		if err := s.Delete(ctx, userID, id); err != nil {
			results = append(results, BulkResult{FileID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{FileID: id, OK: true})
	}
	return results, nil
}

// BulkUploadResult reports the outcome for one item in a bulk upload.
type BulkUploadResult struct {
	Name  string       `json:"name"`
	OK    bool         `json:"ok"`
	Grant *UploadGrant `json:"grant,omitempty"`
	Error string       `json:"error,omitempty"`
}

// BulkUpload issues upload grants for a set of files, continuing past
// per-item failures. Results come back in request order.
func (s *FileService) BulkUpload(ctx context.Context, userID string, items []CreateFileInput) ([]BulkUploadResult, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items is required", ErrValidation)
	}

	results := make([]BulkUploadResult, 0, len(items))
	for _, item := range items {
		grant, err := s.CreateUpload(ctx, userID, item)
		if err != nil {
			results = append(results, BulkUploadResult{Name: item.Name, Error: err.Error()})
			continue
		}
		results = append(results, BulkUploadResult{Name: item.Name, OK: true, Grant: grant})
	}
	return results, nil
}

// ---- Share tokens ---------------------------------------------------------

// ShareTokenInput is the request to issue a share token for a file.
type ShareTokenInput struct {
	TargetEmail *string `json:"target_email,omitempty"`
	CanRead     bool    `json:"can_read"`
	CanWrite    bool    `json:"can_write"`
	CanDelete   bool    `json:"can_delete"`
	Source      string  `json:"source,omitempty"`
	// ExpiresIn is the token lifetime in seconds; zero means no expiry.
	ExpiresIn int64 `json:"expires_in,omitempty"`
}

// ShareGrant is the response to share token creation: the stored token plus
// the raw value, shown exactly once.
type ShareGrant struct {
	Token    *models.ShareToken `json:"token"`
	RawToken string             `json:"raw_token"`
}

// CreateShareToken issues a capability-scoped token for an owned file.
func (s *FileService) CreateShareToken(ctx context.Context, userID, fileID string, in ShareTokenInput) (*ShareGrant, error) {
	file, err := s.getOwned(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsDeleted() {
		return nil, fmt.Errorf("%w: cannot share a deleted file", ErrConflict)
	}
	if !in.CanRead && !in.CanWrite && !in.CanDelete {
		return nil, fmt.Errorf("%w: at least one capability is required", ErrValidation)
	}
	if in.ExpiresIn < 0 {
		return nil, fmt.Errorf("%w: expires_in must be non-negative", ErrValidation)
	}
	if in.Source == "" {
		in.Source = models.ShareSourceSDK
	}

	raw, hash, err := auth.GenerateShareToken()
	if err != nil {
		return nil, fmt.Errorf("generating share token: %w", err)
	}

	token := &models.ShareToken{
		FileID:      fileID,
		TokenHash:   hash,
		TargetEmail: in.TargetEmail,
		CanRead:     in.CanRead,
		CanWrite:    in.CanWrite,
		CanDelete:   in.CanDelete,
		Source:      in.Source,
	}
	if in.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(in.ExpiresIn) * time.Second)
		token.ExpiresAt = &exp
	}

	if err := s.shares.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("storing share token: %w", err)
	}

	s.logger.Info("share token issued", "file_id", fileID, "token_id", token.ID, "user_id", userID)
	return &ShareGrant{Token: token, RawToken: raw}, nil
}

// ListShareTokens returns the tokens issued for an owned file.
func (s *FileService) ListShareTokens(ctx context.Context, userID, fileID string) ([]*models.ShareToken, error) {
	if _, err := s.getOwned(ctx, userID, fileID); err != nil {
		return nil, err
	}
	return s.shares.ListByFile(ctx, fileID)
}

// RevokeShareToken deletes a token. Ownership is checked through the token's
// file, not the token itself: only the file owner can revoke.
func (s *FileService) RevokeShareToken(ctx context.Context, userID, tokenID string) error {
	token, err := s.shares.GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if token == nil {
		return ErrNotFound
	}
	if _, err := s.getOwned(ctx, userID, token.FileID); err != nil {
		return err
	}

	ok, err := s.shares.Revoke(ctx, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	s.logger.Info("share token revoked", "token_id", tokenID, "file_id", token.FileID, "user_id", userID)
	return nil
}

// resolveShareToken looks up a raw token and checks its lifetime. Unknown
// tokens are 404, expired 410. Capability checks are the caller's: each
// exchange verb requires its own flag.
func (s *FileService) resolveShareToken(ctx context.Context, rawToken string) (*models.ShareToken, error) {
	token, err := s.shares.GetByHash(ctx, auth.HashAPIKey(rawToken))
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrNotFound
	}
	if token.Expired(time.Now()) {
		return nil, ErrShareTokenExpired
	}
	return token, nil
}

// sharedFile loads a token's file, treating soft-deleted files as gone so the
// exchange ladder never reveals whether the file ever existed.
func (s *FileService) sharedFile(ctx context.Context, token *models.ShareToken) (*models.File, error) {
	file, err := s.files.GetByID(ctx, token.FileID)
	if err != nil {
		return nil, err
	}
	if file == nil || file.IsDeleted() {
		return nil, ErrNotFound
	}
	return file, nil
}

// SharedDownloadURL exchanges a raw share token for a presigned GET URL of
// its file. Unknown tokens are 404; expired tokens are 410; tokens without
// the read capability are 403. The URL is short-lived: the holder is expected
// to fetch immediately, not stash the link.
func (s *FileService) SharedDownloadURL(ctx context.Context, rawToken string) (string, *models.File, error) {
	token, err := s.resolveShareToken(ctx, rawToken)
	if err != nil {
		return "", nil, err
	}
	if !token.CanRead {
		return "", nil, ErrForbidden
	}
	file, err := s.sharedFile(ctx, token)
	if err != nil {
		return "", nil, err
	}

	client, err := s.resolver.ResolveForFile(ctx, file)
	if err != nil {
		return "", nil, err
	}
	url, err := client.PresignGet(ctx, file.StorageKey, storage.PreviewURLExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("presigning shared download: %w", err)
	}
	return url, file, nil
}

// SharedUploadURL exchanges a raw share token for a presigned PUT URL over the
// file's storage key, letting the holder replace the content. Write is an
// independent capability: a write-only token can push without being able to
// read back.
func (s *FileService) SharedUploadURL(ctx context.Context, rawToken string) (string, *models.File, error) {
	token, err := s.resolveShareToken(ctx, rawToken)
	if err != nil {
		return "", nil, err
	}
	if !token.CanWrite {
		return "", nil, ErrForbidden
	}
	file, err := s.sharedFile(ctx, token)
	if err != nil {
		return "", nil, err
	}

	client, err := s.resolver.ResolveForFile(ctx, file)
	if err != nil {
		return "", nil, err
	}
	url, err := client.PresignPut(ctx, file.StorageKey, file.ContentType, storage.DefaultURLExpiry)
	if err != nil {
		return "", nil, fmt.Errorf("presigning shared upload: %w", err)
	}
	return url, file, nil
}

// SharedDelete soft-deletes the token's file. Like the owner path, deleting
// an already-deleted file is a no-op success.
func (s *FileService) SharedDelete(ctx context.Context, rawToken string) error {
	token, err := s.resolveShareToken(ctx, rawToken)
	if err != nil {
		return err
	}
	if !token.CanDelete {
		return ErrForbidden
	}

	file, err := s.files.GetByID(ctx, token.FileID)
	if err != nil {
		return err
	}
	if file == nil {
		return ErrNotFound
	}
	if file.IsDeleted() {
		return nil
	}

	if err := s.files.SoftDelete(ctx, file.ID); err != nil {
		return fmt.Errorf("deleting shared file: %w", err)
	}

	s.logger.Info("file soft-deleted via share token", "file_id", file.ID, "token_id", token.ID)
	s.publish(file.OwnerID, file.ID)
	return nil
}

// ---- Helpers --------------------------------------------------------------

// getOwned loads a file and enforces ownership. Files owned by others are
// reported as not found.
func (s *FileService) getOwned(ctx context.Context, userID, fileID string) (*models.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil || file.OwnerID != userID {
		return nil, ErrNotFound
	}
	return file, nil
}

func (s *FileService) publish(userID, fileID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Topic: events.TopicFileChanged, UserID: userID, FileID: fileID})
}

// newStorageKey mints an opaque backend key. Keys embed the owner id so
// bucket listings group by user, but are never derived from the file name.
func newStorageKey(userID string) string {
	return fmt.Sprintf("u/%s/%s", userID, uuid.New().String())
}
