// resolver.go implements provider resolution: given a user and an optional
// explicit provider id, produce the storage client the operation must use.
// Precedence is explicit provider, then the user's default provider, then the
// platform backend. A resolved client is threaded through the whole operation
// so a concurrent default change cannot split one operation across backends.
package services

import (
	"context"
	"fmt"

	"github.com/easybits/easybits/internal/crypto"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/storage"
)

// Resolver maps users and provider ids to storage clients.
type Resolver struct {
	providers *repositories.ProviderRepository
	cipher    *crypto.SecretCipher
	// platform is the deployment's own backend config, used when a user has
	// no provider of their own.
	platform storage.BackendConfig
}

// NewResolver creates a Resolver.
func NewResolver(providers *repositories.ProviderRepository, cipher *crypto.SecretCipher, platform storage.BackendConfig) *Resolver {
	return &Resolver{providers: providers, cipher: cipher, platform: platform}
}

// Resolve returns the storage client for an operation. providerID may be
// empty, meaning "the user's default, or the platform backend". The returned
// provider is nil for the platform backend.
func (r *Resolver) Resolve(ctx context.Context, userID, providerID string) (storage.Client, *models.StorageProvider, error) {
	var (
		provider *models.StorageProvider
		err      error
	)

	if providerID != "" {
		provider, err = r.providers.GetByID(ctx, providerID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving provider: %w", err)
		}
		if provider == nil {
			return nil, nil, ErrNotFound
		}
		if provider.UserID != userID {
			return nil, nil, ErrForbidden
		}
	} else {
		provider, err = r.providers.GetDefaultForUser(ctx, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving default provider: %w", err)
		}
	}

	if provider == nil {
		client, err := storage.NewClient(r.platform)
		if err != nil {
			return nil, nil, fmt.Errorf("constructing platform client: %w", err)
		}
		return client, nil, nil
	}

	client, err := r.clientFor(provider)
	if err != nil {
		return nil, nil, err
	}
	return client, provider, nil
}

// ResolveForFile returns the client for the backend a file already lives on.
// Used by download, delete, duplicate, and the purge job, where the file's
// recorded provider wins over any current default.
func (r *Resolver) ResolveForFile(ctx context.Context, file *models.File) (storage.Client, error) {
	if file.StorageProviderID == nil {
		client, err := storage.NewClient(r.platform)
		if err != nil {
			return nil, fmt.Errorf("constructing platform client: %w", err)
		}
		return client, nil
	}

	provider, err := r.providers.GetByID(ctx, *file.StorageProviderID)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("file %s references missing provider %s", file.ID, *file.StorageProviderID)
	}
	return r.clientFor(provider)
}

func (r *Resolver) clientFor(provider *models.StorageProvider) (storage.Client, error) {
	secret, err := r.cipher.Open(provider.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting provider credentials: %w", err)
	}

	client, err := storage.NewClient(storage.BackendConfig{
		Type:            provider.Type,
		Region:          provider.Region,
		Endpoint:        provider.Endpoint,
		Bucket:          provider.Bucket,
		AccessKeyID:     provider.AccessKeyID,
		SecretAccessKey: secret,
		KeyNamespace:    r.platform.KeyNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing provider client: %w", err)
	}
	return client, nil
}
