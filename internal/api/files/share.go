// share.go implements the share-token endpoints: creation (the raw token is
// shown exactly once), introspection, revocation, and the public exchanges
// that trade a raw token for a download URL, an upload grant, or a delete,
// each gated on its own capability flag.
package files

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/api/respond"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/telemetry"
)

// CreateShareToken handles POST /api/v2/files/:fileId/share-token.
func (h *Handlers) CreateShareToken(c *gin.Context) {
	var in services.ShareTokenInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	grant, err := h.svc.CreateShareToken(c.Request.Context(), middleware.UserID(c), c.Param("fileId"), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// Share handles POST /api/v2/files/:fileId/share: the dashboard variant of
// token creation. Same contract, but the token records a target email and is
// tagged with the dashboard source.
func (h *Handlers) Share(c *gin.Context) {
	var in services.ShareTokenInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if in.TargetEmail == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_email is required"})
		return
	}
	in.Source = models.ShareSourceDashboard

	grant, err := h.svc.CreateShareToken(c.Request.Context(), middleware.UserID(c), c.Param("fileId"), in)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// Permissions handles GET /api/v2/files/:fileId/permissions: every token
// issued for the file, hashes omitted.
func (h *Handlers) Permissions(c *gin.Context) {
	tokens, err := h.svc.ListShareTokens(c.Request.Context(), middleware.UserID(c), c.Param("fileId"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// ListShareTokens handles GET /api/v2/share-tokens?file_id=.
func (h *Handlers) ListShareTokens(c *gin.Context) {
	fileID := c.Query("file_id")
	if fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_id query parameter is required"})
		return
	}

	tokens, err := h.svc.ListShareTokens(c.Request.Context(), middleware.UserID(c), fileID)
	if err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// RevokeShareToken handles DELETE /api/v2/share-tokens/:tokenId.
func (h *Handlers) RevokeShareToken(c *gin.Context) {
	if err := h.svc.RevokeShareToken(c.Request.Context(), middleware.UserID(c), c.Param("tokenId")); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// SharedDownload handles GET /api/v2/shared/:token — the unauthenticated
// exchange of a raw share token for a presigned download URL. Unknown tokens
// are 404, expired 410, tokens without read 403; the ladder never reveals
// whether the underlying file exists.
func (h *Handlers) SharedDownload(c *gin.Context) {
	url, file, err := h.svc.SharedDownloadURL(c.Request.Context(), c.Param("token"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	telemetry.DownloadURLsTotal.WithLabelValues("share").Inc()
	c.JSON(http.StatusOK, gin.H{
		"url": url,
		"file": gin.H{
			"id":           file.ID,
			"name":         file.Name,
			"content_type": file.ContentType,
			"size":         file.Size,
		},
	})
}

// SharedUpload handles POST /api/v2/shared/:token/upload — the write
// counterpart of the download exchange. A token carrying the write capability
// is traded for a presigned PUT grant over the file's storage key.
func (h *Handlers) SharedUpload(c *gin.Context) {
	url, file, err := h.svc.SharedUploadURL(c.Request.Context(), c.Param("token"))
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_url": url,
		"file": gin.H{
			"id":           file.ID,
			"name":         file.Name,
			"content_type": file.ContentType,
		},
	})
}

// SharedDelete handles DELETE /api/v2/shared/:token. Requires the delete
// capability; deleting an already-deleted file succeeds idempotently.
func (h *Handlers) SharedDelete(c *gin.Context) {
	if err := h.svc.SharedDelete(c.Request.Context(), c.Param("token")); err != nil {
		respond.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
