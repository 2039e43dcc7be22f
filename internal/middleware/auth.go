// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → Scope check → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the caller identity and scopes; scope checks read from that
// context. Audit logging runs last so only authorized mutations are recorded
// as successful actions.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/safego"
)

// Context keys set by the auth middlewares.
const (
	CtxUserID     = "user_id"
	CtxScopes     = "scopes"
	CtxAPIKeyID   = "api_key_id"
	CtxAuthMethod = "auth_method"
)

// APIKeyAuth authenticates requests on the data plane. The Authorization
// header carries a raw API key; its SHA-256 digest is a single indexed lookup,
// so no per-candidate comparison loop is needed.
func APIKeyAuth(apiKeys *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		key, err := apiKeys.GetAPIKeyByHash(c.Request.Context(), auth.HashAPIKey(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}
		if key == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}
		if !key.Active(time.Now()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "API key expired or revoked",
			})
			return
		}

		// Last-used tracking is best-effort; a synchronous write here would
		// add a DB round-trip to every authenticated request. The timeout
		// bounds the goroutine if the DB is unreachable.
		keyID := key.ID
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiKeys.UpdateLastUsed(ctx, keyID)
		})

		c.Set(CtxAPIKeyID, key.ID)
		c.Set(CtxUserID, key.UserID)
		c.Set(CtxScopes, key.Scopes)
		c.Set(CtxAuthMethod, "api_key")

		c.Next()
	}
}

// OptionalAPIKeyAuth is APIKeyAuth that falls through anonymously instead of
// aborting. Used on endpoints that serve public files to unauthenticated
// callers while still recognizing the owner when a key is presented.
func OptionalAPIKeyAuth(apiKeys *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Next()
			return
		}

		key, err := apiKeys.GetAPIKeyByHash(c.Request.Context(), auth.HashAPIKey(token))
		if err == nil && key != nil && key.Active(time.Now()) {
			keyID := key.ID
			safego.Go(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = apiKeys.UpdateLastUsed(ctx, keyID)
			})

			c.Set(CtxAPIKeyID, key.ID)
			c.Set(CtxUserID, key.UserID)
			c.Set(CtxScopes, key.Scopes)
			c.Set(CtxAuthMethod, "api_key")
		}

		c.Next()
	}
}

// SessionAuth authenticates requests with a session JWT. The key-management
// endpoints require a session rather than an API key, so a leaked key cannot
// mint further keys.
func SessionAuth(users *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		claims, err := auth.ValidateSessionToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid session token",
			})
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user",
			})
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not found",
			})
			return
		}

		c.Set(CtxUserID, user.ID)
		c.Set(CtxScopes, []string{string(auth.ScopeAdmin)})
		c.Set(CtxAuthMethod, "session")

		c.Next()
	}
}

// RequireScope rejects requests whose authenticated scopes do not satisfy the
// required scope. Must run after an auth middleware.
func RequireScope(required auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, ok := c.Get(CtxScopes)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "No scopes in request context",
			})
			return
		}

		keyScopes, ok := scopes.([]string)
		if !ok || !auth.HasScope(keyScopes, required) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient scope: " + string(required) + " required",
			})
			return
		}

		c.Next()
	}
}

// UserID returns the authenticated user id from the context, or "" for
// anonymous requests.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(CtxUserID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
