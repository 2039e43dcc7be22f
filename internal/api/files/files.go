// Package files implements the /api/v2/files handlers: upload grants,
// metadata CRUD, the soft-delete lifecycle, duplication, search, and usage.
// Share tokens, multipart, and bulk variants live in sibling files of this
// package. Handlers stay thin: they bind input, call FileService, and map
// errors through respond.Error.
package files

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/api/respond"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/telemetry"
)

// Handlers bundles the file endpoints around one FileService.
type Handlers struct {
	svc *services.FileService
}

// NewHandlers creates the file handlers.
func NewHandlers(svc *services.FileService) *Handlers {
	return &Handlers{svc: svc}
}

// List handles GET /api/v2/files.
// Query: asset_id, limit (default 50, max 200), cursor, status=DELETED
// switches to the deleted-only listing.
func (h *Handlers) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}

	filter := repositories.ListFilter{
		AssetID: c.Query("asset_id"),
		Cursor:  c.Query("cursor"),
		Limit:   limit,
		Deleted: c.Query("status") == models.FileStatusDeleted,
	}

	files, err := h.svc.List(c.Request.Context(), middleware.UserID(c), filter)
	if err != nil {
		respond.Error(c, err)
		return
	}

	// The next-page cursor is the last row's id; clients pass it back opaquely.
	var next string
	if len(files) == limit {
		next = files[len(files)-1].ID
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "cursor": next})
}

// Create handles POST /api/v2/files: registers the upload intent and returns
// the file record plus the presigned PUT URL.
func (h *Handlers) Create(c *gin.Context) {
	var in services.CreateFileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	grant, err := h.svc.CreateUpload(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		respond.Error(c, err)
		return
	}

	telemetry.UploadGrantsTotal.WithLabelValues("single").Inc()
	c.JSON(http.StatusCreated, grant)
}

// Get handles GET /api/v2/files/:fileId.
func (h *Handlers) Get(c *gin.Context) {
	file, err := h.svc.Get(c.Request.Context(), middleware.UserID(c), c.Param("fileId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Download handles GET /api/v2/files/:fileId/download: returns a short-lived
// presigned GET URL rather than proxying bytes.
func (h *Handlers) Download(c *gin.Context) {
	url, err := h.svc.DownloadURL(c.Request.Context(), middleware.UserID(c), c.Param("fileId"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	telemetry.DownloadURLsTotal.WithLabelValues("owner").Inc()
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Update handles PATCH /api/v2/files/:fileId: partial metadata update.
// Status does not move through this path; DELETED is only left via restore.
func (h *Handlers) Update(c *gin.Context) {
	var in services.UpdateFileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	file, err := h.svc.Update(c.Request.Context(), middleware.UserID(c), c.Param("fileId"), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Delete handles DELETE /api/v2/files/:fileId: soft delete, recoverable
// within the retention window. A second delete is a no-op success.
func (h *Handlers) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), c.Param("fileId")); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Restore handles POST /api/v2/files/:fileId/restore.
func (h *Handlers) Restore(c *gin.Context) {
	file, err := h.svc.Restore(c.Request.Context(), middleware.UserID(c), c.Param("fileId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Confirm handles POST /api/v2/files/:fileId/confirm: the client reports the
// presigned PUT finished and the file moves WAITING to DONE.
func (h *Handlers) Confirm(c *gin.Context) {
	file, err := h.svc.ConfirmUpload(c.Request.Context(), middleware.UserID(c), c.Param("fileId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Duplicate handles POST /api/v2/files/:fileId/duplicate: backend copy plus
// a new record, never two records on one object.
func (h *Handlers) Duplicate(c *gin.Context) {
	file, err := h.svc.Duplicate(c.Request.Context(), middleware.UserID(c), c.Param("fileId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

// Optimize handles POST /api/v2/files/:fileId/optimize: marks the file
// WORKING for the external conversion pipeline. Completion arrives through
// the conversion webhook.
func (h *Handlers) Optimize(c *gin.Context) {
	file, err := h.svc.StartProcessing(c.Request.Context(), middleware.UserID(c), c.Param("fileId"), "optimize")
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, file)
}

// Transform handles POST /api/v2/files/:fileId/transform, same contract as
// Optimize with a different downstream pipeline.
func (h *Handlers) Transform(c *gin.Context) {
	file, err := h.svc.StartProcessing(c.Request.Context(), middleware.UserID(c), c.Param("fileId"), "transform")
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusAccepted, file)
}

// Search handles GET /api/v2/files/search?q=.
func (h *Handlers) Search(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	files, err := h.svc.Search(c.Request.Context(), middleware.UserID(c), c.Query("q"), limit)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// Usage handles GET /api/v2/usage: aggregate storage consumption.
func (h *Handlers) Usage(c *gin.Context) {
	stats, err := h.svc.Usage(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
