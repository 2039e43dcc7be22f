// Package websites implements the /api/v2/websites handlers. A website is a
// named bundle of files under a shared prefix; the handlers manage the record
// while the files themselves go through the normal file endpoints.
package websites

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/api/respond"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
)

// Handlers bundles the website endpoints.
type Handlers struct {
	svc *services.WebsiteService
}

// NewHandlers creates the website handlers.
func NewHandlers(svc *services.WebsiteService) *Handlers {
	return &Handlers{svc: svc}
}

// List handles GET /api/v2/websites.
func (h *Handlers) List(c *gin.Context) {
	sites, err := h.svc.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"websites": sites})
}

// Create handles POST /api/v2/websites.
func (h *Handlers) Create(c *gin.Context) {
	var in services.CreateWebsiteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	site, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, site)
}

// Get handles GET /api/v2/websites/:websiteId.
func (h *Handlers) Get(c *gin.Context) {
	site, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), c.Param("websiteId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

// Update handles PATCH /api/v2/websites/:websiteId.
func (h *Handlers) Update(c *gin.Context) {
	var in services.UpdateWebsiteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	site, err := h.svc.Update(c.Request.Context(), middleware.UserID(c), c.Param("websiteId"), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

// ListFiles handles GET /api/v2/websites/:websiteId/files: the bundle of
// files sharing the website's prefix.
func (h *Handlers) ListFiles(c *gin.Context) {
	files, err := h.svc.ListFiles(c.Request.Context(), middleware.UserID(c), c.Param("websiteId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// DeleteFiles handles DELETE /api/v2/websites/:websiteId/files. It clears the
// bundle without removing the website record, so a redeploy can reuse the slug.
func (h *Handlers) DeleteFiles(c *gin.Context) {
	deleted, err := h.svc.DeleteFiles(c.Request.Context(), middleware.UserID(c), c.Param("websiteId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Delete handles DELETE /api/v2/websites/:websiteId. The bundle's files are
// soft-deleted along with the record.
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), c.Param("websiteId")); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
