// audit.go provides Gin middleware that records authenticated write
// operations to the audit log.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/easybits/easybits/internal/audit"
	"github.com/easybits/easybits/internal/config"
	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/safego"
)

// Audit records authenticated operations after the handler has run. By
// default only write operations are logged; set audit.log_read_operations to
// include GETs. The row is written asynchronously so audit persistence never
// adds latency to the request path. Any configured shippers receive a copy
// of each record after the row is written.
func Audit(auditRepo *repositories.AuditRepository, auditCfg *config.AuditConfig, shippers ...audit.Shipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodOptions {
			return
		}
		if auditCfg != nil && !auditCfg.Enabled {
			return
		}

		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		logReads := auditCfg != nil && auditCfg.LogReadOperations
		if isRead && !logReads {
			return
		}

		entry := &models.AuditLog{
			Action:     c.Request.Method,
			Resource:   routeTemplate(c),
			ResourceID: resourceID(c),
			Status:     c.Writer.Status(),
			IP:         c.ClientIP(),
			CreatedAt:  time.Now(),
		}
		if id := UserID(c); id != "" {
			uid := id
			entry.UserID = &uid
		}

		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := auditRepo.CreateAuditLog(ctx, entry); err != nil {
				slog.Error("failed to write audit log", "error", err, "resource", entry.Resource)
			}
			for _, shipper := range shippers {
				shipped := &audit.LogEntry{
					Timestamp:  entry.CreatedAt,
					Action:     entry.Action,
					Resource:   entry.Resource,
					ResourceID: entry.ResourceID,
					IP:         entry.IP,
					Status:     entry.Status,
				}
				if entry.UserID != nil {
					shipped.UserID = *entry.UserID
				}
				if err := shipper.Ship(ctx, shipped); err != nil {
					slog.Error("failed to ship audit log", "error", err)
				}
			}
		})
	}
}

// routeTemplate returns the matched route pattern rather than the raw URL so
// audit rows group naturally and share tokens never leak into the log.
func routeTemplate(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "<no-route>"
}

// resourceID pulls the subject identifier out of the route params, if any.
func resourceID(c *gin.Context) string {
	for _, name := range []string{"fileId", "providerId", "keyId", "websiteId", "tokenId"} {
		if v := c.Param(name); v != "" {
			return v
		}
	}
	return ""
}
