// providers.go implements ProviderService: CRUD over user-owned storage
// provider configurations, with credentials sealed at rest and connectivity
// verified before a provider is accepted.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easybits/easybits/internal/crypto"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/storage"
)

// ProviderService manages custom storage providers.
type ProviderService struct {
	providers *repositories.ProviderRepository
	files     *repositories.FileRepository
	cipher    *crypto.SecretCipher
	namespace string
	logger    *slog.Logger
}

// NewProviderService creates a ProviderService.
func NewProviderService(providers *repositories.ProviderRepository, files *repositories.FileRepository, cipher *crypto.SecretCipher, namespace string, logger *slog.Logger) *ProviderService {
	return &ProviderService{
		providers: providers,
		files:     files,
		cipher:    cipher,
		namespace: namespace,
		logger:    logger,
	}
}

// CreateProviderInput is the request to register a custom provider.
type CreateProviderInput struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint,omitempty"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	IsDefault       bool   `json:"is_default"`
}

func (in *CreateProviderInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if in.Type != models.ProviderTypeS3 && in.Type != models.ProviderTypeTigris {
		return fmt.Errorf("%w: type must be s3 or tigris", ErrValidation)
	}
	if strings.TrimSpace(in.Bucket) == "" {
		return fmt.Errorf("%w: bucket is required", ErrValidation)
	}
	if in.AccessKeyID == "" || in.SecretAccessKey == "" {
		return fmt.Errorf("%w: credentials are required", ErrValidation)
	}
	return nil
}

// Create verifies the bucket is reachable with the supplied credentials,
// seals the secret, and stores the provider.
func (s *ProviderService) Create(ctx context.Context, userID string, in CreateProviderInput) (*models.StorageProvider, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	client, err := storage.NewClient(storage.BackendConfig{
		Type:            in.Type,
		Region:          in.Region,
		Endpoint:        in.Endpoint,
		Bucket:          in.Bucket,
		AccessKeyID:     in.AccessKeyID,
		SecretAccessKey: in.SecretAccessKey,
		KeyNamespace:    s.namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: bucket not reachable with supplied credentials", ErrValidation)
	}

	sealed, err := s.cipher.Seal(in.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("sealing credentials: %w", err)
	}

	provider := &models.StorageProvider{
		UserID:          userID,
		Name:            in.Name,
		Type:            in.Type,
		Region:          in.Region,
		Endpoint:        in.Endpoint,
		Bucket:          in.Bucket,
		AccessKeyID:     in.AccessKeyID,
		SecretAccessKey: sealed,
		IsDefault:       in.IsDefault,
	}
	if err := s.providers.Create(ctx, provider); err != nil {
		return nil, fmt.Errorf("storing provider: %w", err)
	}

	s.logger.Info("storage provider registered",
		"provider_id", provider.ID, "user_id", userID, "type", in.Type, "default", in.IsDefault)
	return provider, nil
}

// Get returns an owned provider.
func (s *ProviderService) Get(ctx context.Context, userID, providerID string) (*models.StorageProvider, error) {
	provider, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil || provider.UserID != userID {
		return nil, ErrNotFound
	}
	return provider, nil
}

// List returns the user's providers.
func (s *ProviderService) List(ctx context.Context, userID string) ([]*models.StorageProvider, error) {
	return s.providers.ListByUser(ctx, userID)
}

// SetDefault makes an owned provider the user's default.
func (s *ProviderService) SetDefault(ctx context.Context, userID, providerID string) error {
	ok, err := s.providers.SetDefault(ctx, providerID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete removes an owned provider. Deletion is refused while non-deleted
// files still reference it; those files would become unreachable.
func (s *ProviderService) Delete(ctx context.Context, userID, providerID string) error {
	if _, err := s.Get(ctx, userID, providerID); err != nil {
		return err
	}

	count, err := s.files.CountByProvider(ctx, providerID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d files still stored on it", ErrProviderInUse, count)
	}

	ok, err := s.providers.Delete(ctx, providerID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	s.logger.Info("storage provider deleted", "provider_id", providerID, "user_id", userID)
	return nil
}
