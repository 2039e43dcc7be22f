// factory.go implements the storage backend registry and factory, mapping
// backend type strings (s3, tigris, local) to constructor functions and
// dispatching NewClient calls.
package storage

import "fmt"

// BackendConfig carries everything needed to construct one backend client.
// It is built either from application config (platform default) or from a
// StorageProvider row (user custom provider, credentials already decrypted).
type BackendConfig struct {
	Type            string
	Region          string
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// KeyNamespace prefixes every storage key so environments sharing a
	// bucket cannot collide.
	KeyNamespace string
	// BasePath and BaseURL are used by the local backend only.
	BasePath string
	BaseURL  string
	// SigningSecret is used by the local backend to sign URLs.
	SigningSecret string
}

// FactoryFunc constructs a backend client from its config.
type FactoryFunc func(BackendConfig) (Client, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory.
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewClient creates a storage client for the given backend config.
func NewClient(cfg BackendConfig) (Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 's3', 'tigris', or 'local')", cfg.Type)
	}
	return factory(cfg)
}
