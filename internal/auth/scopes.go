// Package auth - scopes.go defines the permission scopes attached to API keys
// and provides HasScope and validation helpers. Scopes are deliberately coarse
// (four values) rather than fine-grained permissions: a file-storage API
// surface does not need more.
package auth

import "fmt"

// Scope represents a permission type.
type Scope string

const (
	ScopeRead   Scope = "READ"
	ScopeWrite  Scope = "WRITE"
	ScopeDelete Scope = "DELETE"

	// ScopeAdmin is a wildcard implying all other scopes.
	ScopeAdmin Scope = "ADMIN"
)

// AllScopes returns all valid scopes.
func AllScopes() []Scope {
	return []Scope{ScopeRead, ScopeWrite, ScopeDelete, ScopeAdmin}
}

// ValidScopes returns a map of valid scope strings.
func ValidScopes() map[string]bool {
	valid := make(map[string]bool)
	for _, scope := range AllScopes() {
		valid[string(scope)] = true
	}
	return valid
}

// ValidateScopes checks that all provided scopes are known.
func ValidateScopes(scopes []string) error {
	valid := ValidScopes()
	for _, scope := range scopes {
		if !valid[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}
	return nil
}

// HasScope checks if a key's scopes satisfy a required scope.
// ADMIN is a wildcard granting everything.
func HasScope(keyScopes []string, required Scope) bool {
	for _, scope := range keyScopes {
		if scope == string(required) {
			return true
		}
		if scope == string(ScopeAdmin) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a key's scopes satisfy every required scope.
func HasAllScopes(keyScopes []string, required []Scope) bool {
	for _, r := range required {
		if !HasScope(keyScopes, r) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns the scopes assigned to a new key when the caller
// does not specify any.
func GetDefaultScopes() []string {
	return []string{string(ScopeRead), string(ScopeWrite)}
}
