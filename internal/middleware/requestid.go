// requestid.go tags every request with a correlation identifier.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header carrying the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID so handlers
	// and the access logger can read it without touching response headers.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware ensures every request has a unique identifier. An
// inbound X-Request-ID (from a load balancer or the caller) is reused
// unchanged; otherwise a UUID is generated. The ID is stored in the context
// under RequestIDKey and echoed in the response header so clients can quote
// it when reporting a problem.
//
// Register it before the logging middleware so every access log line carries
// the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
