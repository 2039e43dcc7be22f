package models

import "time"

// Storage provider types. Tigris is S3-compatible; both are served by the
// same client implementation with different endpoints.
const (
	ProviderTypeS3     = "s3"
	ProviderTypeTigris = "tigris"
)

// StorageProvider is a user-owned custom backend configuration. The platform
// default backend has no StorageProvider row — files on it carry a NULL
// storage_provider_id.
type StorageProvider struct {
	ID       string `db:"id" json:"id"`
	UserID   string `db:"user_id" json:"user_id"`
	Name     string `db:"name" json:"name"`
	Type     string `db:"type" json:"type"`
	Region   string `db:"region" json:"region"`
	Endpoint string `db:"endpoint" json:"endpoint,omitempty"`
	Bucket   string `db:"bucket" json:"bucket"`
	// AccessKeyID is stored plaintext; SecretAccessKey is AES-GCM sealed at
	// rest and only decrypted when a client is constructed.
	AccessKeyID     string    `db:"access_key_id" json:"-"`
	SecretAccessKey string    `db:"secret_access_key" json:"-"`
	IsDefault       bool      `db:"is_default" json:"is_default"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
