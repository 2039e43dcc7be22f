package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	bus "github.com/easybits/easybits/internal/events"
	"github.com/easybits/easybits/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStreamRouter(b *bus.Bus, userID string) *gin.Engine {
	r := gin.New()
	r.GET("/api/v2/events", func(c *gin.Context) {
		c.Set(middleware.CtxUserID, userID)
	}, NewHandlers(b).Stream)
	return r
}

func TestStream_DeliversOwnEvents(t *testing.T) {
	b := bus.NewBus()
	r := newStreamRouter(b, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v2/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	// wait for the subscription before publishing
	for i := 0; i < 100 && b.SubscriberCount(bus.TopicFileChanged) == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if b.SubscriberCount(bus.TopicFileChanged) != 1 {
		cancel()
		t.Fatal("stream never subscribed")
	}

	b.Publish(bus.Event{Topic: bus.TopicFileChanged, UserID: "user-1", FileID: "file-1"})
	b.Publish(bus.Event{Topic: bus.TopicFileChanged, UserID: "someone-else", FileID: "file-9"})

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: file:changed") {
		t.Errorf("missing event frame: %q", body)
	}
	if !strings.Contains(body, `"fileId":"file-1"`) {
		t.Errorf("own event not delivered: %q", body)
	}
	if strings.Contains(body, "file-9") {
		t.Errorf("foreign event leaked: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestStream_UnsubscribesOnDisconnect(t *testing.T) {
	b := bus.NewBus()
	r := newStreamRouter(b, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v2/events", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}()

	for i := 0; i < 100 && b.SubscriberCount(bus.TopicFileChanged) == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if n := b.SubscriberCount(bus.TopicFileChanged); n != 0 {
		t.Errorf("subscribers after disconnect = %d, want 0", n)
	}
}
