// Package events implements GET /api/v2/events, the server-sent events stream
// of file changes. Each connection subscribes to the in-process bus and
// forwards only the caller's own events; clients re-fetch on receipt.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	bus "github.com/easybits/easybits/internal/events"
	"github.com/easybits/easybits/internal/middleware"
	"github.com/easybits/easybits/internal/telemetry"
)

// heartbeatInterval keeps intermediaries from timing out idle streams.
const heartbeatInterval = 30 * time.Second

// Handlers bundles the event-stream endpoint.
type Handlers struct {
	bus *bus.Bus
}

// NewHandlers creates the event-stream handlers.
func NewHandlers(b *bus.Bus) *Handlers {
	return &Handlers{bus: b}
}

// Stream handles GET /api/v2/events. The connection stays open until the
// client disconnects; events for other users are dropped server-side.
func (h *Handlers) Stream(c *gin.Context) {
	userID := middleware.UserID(c)

	ch, cancel := h.bus.Subscribe(bus.TopicFileChanged)
	defer cancel()

	telemetry.SSESubscribers.Inc()
	defer telemetry.SSESubscribers.Dec()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.UserID != userID {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", evt.Topic, payload)
			c.Writer.Flush()
		}
	}
}
