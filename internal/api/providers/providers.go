// Package providers implements the /api/v2/providers handlers: registration
// and management of user-owned storage backends. Credentials enter through
// the create request, are verified against the live bucket, sealed, and never
// appear in any response.
package providers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/api/respond"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
)

// Handlers bundles the provider endpoints.
type Handlers struct {
	svc *services.ProviderService
}

// NewHandlers creates the provider handlers.
func NewHandlers(svc *services.ProviderService) *Handlers {
	return &Handlers{svc: svc}
}

// List handles GET /api/v2/providers.
func (h *Handlers) List(c *gin.Context) {
	providers, err := h.svc.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// Create handles POST /api/v2/providers. Connectivity is verified with the
// supplied credentials before anything is stored.
func (h *Handlers) Create(c *gin.Context) {
	var in services.CreateProviderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	provider, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, provider)
}

// Get handles GET /api/v2/providers/:providerId.
func (h *Handlers) Get(c *gin.Context) {
	provider, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), c.Param("providerId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

// SetDefault handles POST /api/v2/providers/:providerId/default.
func (h *Handlers) SetDefault(c *gin.Context) {
	if err := h.svc.SetDefault(c.Request.Context(), middleware.UserID(c), c.Param("providerId")); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"default": true})
}

// Delete handles DELETE /api/v2/providers/:providerId. Refused while
// non-deleted files still live on the provider.
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), c.Param("providerId")); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
