// bulk.go implements the batch endpoints. Both return a per-item result list
// and 200 even when some items failed; callers inspect each entry.
package files

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/api/respond"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
)

// maxBulkItems caps one batch request.
const maxBulkItems = 100

type bulkDeleteRequest struct {
	FileIDs []string `json:"file_ids" binding:"required"`
}

// BulkDelete handles POST /api/v2/files/bulk-delete.
func (h *Handlers) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_ids is required"})
		return
	}
	if len(req.FileIDs) > maxBulkItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many items in one batch"})
		return
	}

	results, err := h.svc.BulkDelete(c.Request.Context(), middleware.UserID(c), req.FileIDs)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type bulkUploadRequest struct {
	Items []services.CreateFileInput `json:"items" binding:"required"`
}

// BulkUpload handles POST /api/v2/files/bulk-upload: one upload grant per
// item, failures isolated per item.
func (h *Handlers) BulkUpload(c *gin.Context) {
	var req bulkUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items is required"})
		return
	}
	if len(req.Items) > maxBulkItems {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many items in one batch"})
		return
	}

	results, err := h.svc.BulkUpload(c.Request.Context(), middleware.UserID(c), req.Items)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
