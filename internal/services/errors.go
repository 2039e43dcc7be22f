// errors.go defines the sentinel errors the service layer returns. Handlers
// map these to HTTP statuses; services never reference HTTP directly.
package services

import "errors"

var (
	// ErrNotFound means the requested resource does not exist or is invisible
	// to the caller. Handlers map it to 404.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden means the caller is authenticated but not allowed to act
	// on the resource. Handlers map it to 403.
	ErrForbidden = errors.New("operation forbidden")

	// ErrValidation means the request was well-formed JSON but semantically
	// invalid. Handlers map it to 400.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means the operation cannot apply in the resource's current
	// state. Handlers map it to 409.
	ErrConflict = errors.New("conflicting state")

	// ErrRetentionExpired means a restore was attempted after the soft-delete
	// retention window closed. Handlers map it to 410.
	ErrRetentionExpired = errors.New("retention window expired")

	// ErrShareTokenExpired means a share token exists but is past its expiry.
	// Handlers map it to 410.
	ErrShareTokenExpired = errors.New("share token expired")

	// ErrProviderInUse means a provider deletion was blocked because files
	// still reference it.
	ErrProviderInUse = errors.New("storage provider still referenced by files")
)
