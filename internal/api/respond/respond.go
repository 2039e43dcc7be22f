// Package respond maps service-layer errors onto HTTP responses. Every
// handler package funnels its error paths through here so the status-code
// taxonomy stays in one place: validation 400, not-found 404, forbidden 403,
// conflict 409, retention/share expiry 410, backend failures 502. Anything
// unrecognized is logged and returned as a generic 500 without leaking the
// underlying error text.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/storage"
)

// Error writes the JSON error response for err and returns the chosen status.
func Error(c *gin.Context, err error) int {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return status
	}
	c.JSON(status, gin.H{"error": err.Error()})
	return status
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrProviderInUse),
		errors.Is(err, storage.ErrIncompleteParts):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrRetentionExpired),
		errors.Is(err, services.ErrShareTokenExpired):
		return http.StatusGone
	case errors.Is(err, storage.ErrBackendUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
