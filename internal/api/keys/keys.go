// Package keys implements the API key management endpoints. These are
// session-authenticated (JWT), never API-key-authenticated: a key cannot be
// bootstrapped or revoked with another key. The raw key value appears in
// exactly one response, the creation one.
package keys

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/auth"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/middleware"
)

// Handlers bundles the key management endpoints.
type Handlers struct {
	keys *repositories.APIKeyRepository
}

// NewHandlers creates the key handlers.
func NewHandlers(keys *repositories.APIKeyRepository) *Handlers {
	return &Handlers{keys: keys}
}

// createKeyRequest is the body of POST /api/v2/keys.
type createKeyRequest struct {
	Name      string   `json:"name" binding:"required"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expires_at"` // RFC3339
}

// Create handles POST /api/v2/keys.
func (h *Handlers) Create(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if len(req.Scopes) == 0 {
		req.Scopes = auth.GetDefaultScopes()
	}
	if err := auth.ValidateScopes(req.Scopes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC3339"})
			return
		}
		if parsed.Before(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be in the future"})
			return
		}
		expiresAt = &parsed
	}

	raw, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate key"})
		return
	}

	key := &models.APIKey{
		UserID:    middleware.UserID(c),
		Name:      req.Name,
		KeyPrefix: prefix,
		KeyHash:   hash,
		Scopes:    req.Scopes,
		Status:    models.APIKeyStatusActive,
		ExpiresAt: expiresAt,
	}
	if err := h.keys.CreateAPIKey(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         key.ID,
		"name":       key.Name,
		"key":        raw, // shown once, never persisted
		"key_prefix": key.KeyPrefix,
		"scopes":     key.Scopes,
		"expires_at": key.ExpiresAt,
		"created_at": key.CreatedAt,
	})
}

// List handles GET /api/v2/keys: the caller's keys, raw values never
// included.
func (h *Handlers) List(c *gin.Context) {
	keys, err := h.keys.ListAPIKeysByUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// Revoke handles DELETE /api/v2/keys/:keyId. Keys are revoked, not deleted,
// so the audit trail keeps its reference.
func (h *Handlers) Revoke(c *gin.Context) {
	ok, err := h.keys.RevokeAPIKey(c.Request.Context(), c.Param("keyId"), middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke key"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}
