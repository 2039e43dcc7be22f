// multipart.go implements the multipart upload endpoints. The server mints
// one presigned URL per part and reconciles the client's ETag list on
// completion; part bytes never transit the application.
package files

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/api/respond"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/storage"
	"github.com/easybits/easybits/internal/telemetry"
)

// CreateMultipart handles POST /api/v2/files/multipart: opens a session and
// returns the file record, upload id, part size, and per-part URLs.
func (h *Handlers) CreateMultipart(c *gin.Context) {
	var in services.CreateFileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	grant, err := h.svc.CreateMultipartUpload(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		respond.Error(c, err)
		return
	}

	telemetry.UploadGrantsTotal.WithLabelValues("multipart").Inc()
	c.JSON(http.StatusCreated, grant)
}

// completeMultipartRequest is the completion payload: the session handle plus
// the ordered {partNumber, eTag} list collected from the part PUTs.
type completeMultipartRequest struct {
	FileID   string                  `json:"file_id" binding:"required"`
	UploadID string                  `json:"upload_id" binding:"required"`
	Parts    []storage.CompletedPart `json:"parts" binding:"required"`
}

// CompleteMultipart handles POST /api/v2/files/multipart/complete.
func (h *Handlers) CompleteMultipart(c *gin.Context) {
	var req completeMultipartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_id, upload_id, and parts are required"})
		return
	}

	file, err := h.svc.CompleteMultipartUpload(c.Request.Context(), middleware.UserID(c), req.FileID, req.UploadID, req.Parts)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// abortMultipartRequest identifies the session to discard.
type abortMultipartRequest struct {
	FileID   string `json:"file_id" binding:"required"`
	UploadID string `json:"upload_id" binding:"required"`
}

// AbortMultipart handles POST /api/v2/files/multipart/abort: discards the
// session and its parts; the file record stays WAITING for a retry.
func (h *Handlers) AbortMultipart(c *gin.Context) {
	var req abortMultipartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_id and upload_id are required"})
		return
	}

	if err := h.svc.AbortMultipartUpload(c.Request.Context(), middleware.UserID(c), req.FileID, req.UploadID); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aborted": true})
}
