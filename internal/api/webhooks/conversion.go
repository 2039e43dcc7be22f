// Package webhooks handles inbound deliveries from the conversion pipeline.
// Deliveries authenticate with a shared secret header and are deduplicated by
// their event id, so a redelivered event is acknowledged without being
// reapplied.
package webhooks

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/services"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

const eventSource = "conversion"

// ConversionHandler processes conversion pipeline results.
type ConversionHandler struct {
	files  *services.FileService
	events *repositories.EventRepository
	secret string
	logger *slog.Logger
}

// NewConversionHandler creates a conversion webhook handler.
func NewConversionHandler(files *services.FileService, events *repositories.EventRepository, secret string, logger *slog.Logger) *ConversionHandler {
	return &ConversionHandler{files: files, events: events, secret: secret, logger: logger}
}

type conversionPayload struct {
	EventID  string          `json:"eventId" binding:"required"`
	FileID   string          `json:"fileId" binding:"required"`
	Status   string          `json:"status" binding:"required"`
	Playlist json.RawMessage `json:"playlist,omitempty"`
}

// Handle processes POST /api/webhooks/conversion.
func (h *ConversionHandler) Handle(c *gin.Context) {
	if h.secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook secret not configured"})
		return
	}
	provided := c.GetHeader(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}

	var payload conversionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx := c.Request.Context()
	fresh, err := h.events.MarkProcessed(ctx, payload.EventID, eventSource)
	if err != nil {
		h.logger.Error("webhook dedupe failed", "event_id", payload.EventID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery not recorded"})
		return
	}
	if !fresh {
		h.logger.Info("duplicate webhook delivery acknowledged", "event_id", payload.EventID)
		c.JSON(http.StatusOK, gin.H{"message": "already processed"})
		return
	}

	file, err := h.files.ApplyConversion(ctx, payload.FileID, payload.Status, payload.Playlist)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("conversion apply failed",
				"event_id", payload.EventID, "file_id", payload.FileID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "conversion apply failed"})
		}
		return
	}

	h.logger.Info("conversion applied",
		"event_id", payload.EventID, "file_id", file.ID, "status", file.Status)
	c.JSON(http.StatusOK, gin.H{"file": file})
}
